// Package vecmath provides the small amount of vector arithmetic the
// clustering engine needs: cosine similarity, componentwise averaging, and
// prototype blending. All functions are total: malformed input (empty or
// mismatched vectors) yields a zero value instead of a panic, because
// embeddings come from an external service that occasionally misbehaves.
package vecmath

import "math"

// Cosine returns the cosine similarity of a and b.
// Returns 0 when either vector is empty, when lengths differ, or when either
// norm is zero.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, ma, mb float64
	for i := range a {
		dot += a[i] * b[i]
		ma += a[i] * a[i]
		mb += b[i] * b[i]
	}
	denom := math.Sqrt(ma) * math.Sqrt(mb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Average returns the componentwise mean of the given vectors, or nil for
// empty input. All vectors are assumed to share the first vector's length.
func Average(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	acc := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range acc {
			acc[i] += v[i]
		}
	}
	n := float64(len(vectors))
	for i := range acc {
		acc[i] /= n
	}
	return acc
}

// Prototype blends a content centroid with a label embedding at equal weight.
// Topics with few members have noisy content centroids; pulling toward the
// name's embedding keeps early matches sane. When no label embedding exists
// the centroid stands alone.
func Prototype(embedding, labelEmbedding []float64) []float64 {
	if len(labelEmbedding) == 0 {
		return embedding
	}
	return Average([][]float64{embedding, labelEmbedding})
}
