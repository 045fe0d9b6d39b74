package vecmath

import (
	"math"
	"testing"
)

func TestCosineMalformedInput(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
	}{
		{"both empty", nil, nil},
		{"left empty", nil, []float64{1, 2, 3}},
		{"right empty", []float64{1, 2, 3}, nil},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}},
		{"zero norm", []float64{0, 0}, []float64{1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cosine(tc.a, tc.b); got != 0 {
				t.Fatalf("Cosine(%v, %v) = %v, want 0", tc.a, tc.b, got)
			}
		})
	}
}

func TestCosineParallelAndOrthogonal(t *testing.T) {
	if got := Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("parallel vectors: got %v, want 1.0", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %v, want 0", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{-1, 0}); math.Abs(got+1.0) > 1e-9 {
		t.Fatalf("opposite vectors: got %v, want -1.0", got)
	}
}

func TestAverage(t *testing.T) {
	if got := Average(nil); got != nil {
		t.Fatalf("Average(nil) = %v, want nil", got)
	}

	got := Average([][]float64{{1, 2}, {3, 4}, {5, 6}})
	want := []float64{3, 4}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("Average = %v, want %v", got, want)
		}
	}
}

func TestPrototype(t *testing.T) {
	centroid := []float64{1, 1}
	label := []float64{3, 3}

	got := Prototype(centroid, label)
	for i, want := range []float64{2, 2} {
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("blended prototype = %v, want [2 2]", got)
		}
	}

	if got := Prototype(centroid, nil); &got[0] != &centroid[0] {
		t.Fatalf("prototype without label should return the centroid unchanged")
	}
}
