package topics

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/vecmath"
)

// palette holds the display colors assigned to new super categories.
var palette = []string{
	"#3B82F6", "#EF4444", "#10B981", "#F59E0B",
	"#8B5CF6", "#06B6D4", "#84CC16", "#F97316",
	"#EC4899", "#6366F1", "#14B8A6", "#EAB308",
}

// colorFor picks a palette color by name hash, so a category keeps the same
// color if the store is rebuilt from scratch.
func colorFor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return palette[h.Sum32()%uint32(len(palette))]
}

// CreateSuperCategory allocates a category with no member topics yet. The
// centroid seeds from the blend of the triggering topic's prototype and the
// category name's label embedding, mirroring topic creation.
func (s *Store) CreateSuperCategory(ctx context.Context, name string, seed, labelEmbedding []float64) (*SuperCategory, error) {
	norm := lexical.Normalize(name)
	if norm == "" {
		return nil, fmt.Errorf("creating category: name %q normalizes to empty", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	embedding := cloneVector(seed)
	if len(labelEmbedding) > 0 && len(seed) > 0 {
		embedding = vecmath.Average([][]float64{seed, labelEmbedding})
	} else if len(labelEmbedding) > 0 {
		embedding = cloneVector(labelEmbedding)
	}

	c := &SuperCategory{
		ID:             NewID("category"),
		Name:           norm,
		Aliases:        []string{},
		Embedding:      embedding,
		LabelEmbedding: cloneVector(labelEmbedding),
		TopicIDs:       []string{},
		Color:          colorFor(norm),
	}
	s.cats[c.ID] = c
	s.catOrder = append(s.catOrder, c.ID)

	if err := s.persistCats(ctx); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// AttachTopicToCategory files the topic under the category and recomputes
// the category centroid over its member topics' prototypes. A topic belongs
// to at most one category; a previous assignment is undone first.
func (s *Store) AttachTopicToCategory(ctx context.Context, categoryID, topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cats[categoryID]
	if !ok {
		return fmt.Errorf("attaching topic %q: category %q not found", topicID, categoryID)
	}
	t, ok := s.topics[topicID]
	if !ok {
		return fmt.Errorf("attaching topic %q: topic not found", topicID)
	}

	if t.CategoryID != "" && t.CategoryID != categoryID {
		if prev, ok := s.cats[t.CategoryID]; ok {
			out := prev.TopicIDs[:0]
			for _, id := range prev.TopicIDs {
				if id != topicID {
					out = append(out, id)
				}
			}
			prev.TopicIDs = out
			s.recomputeCategoryCentroidLocked(prev)
		}
	}

	if !contains(c.TopicIDs, topicID) {
		c.TopicIDs = append(c.TopicIDs, topicID)
	}
	t.CategoryID = categoryID
	s.recomputeCategoryCentroidLocked(c)

	if err := s.persistCats(ctx); err != nil {
		return err
	}
	return s.persistTopics(ctx)
}

// AddCategoryAlias records candidate as a category alias under the same
// rules as topic aliases.
func (s *Store) AddCategoryAlias(ctx context.Context, categoryID, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cats[categoryID]
	if !ok {
		return fmt.Errorf("adding alias to %q: category not found", categoryID)
	}
	candNorm := lexical.Normalize(candidate)
	if candNorm == "" || candNorm == lexical.Normalize(c.Name) {
		return nil
	}
	for _, a := range c.Aliases {
		if lexical.Normalize(a) == candNorm {
			return nil
		}
	}
	c.Aliases = append(c.Aliases, candidate)
	return s.persistCats(ctx)
}

// UpdateCategoryDisplayTag sets the cosmetic display label.
func (s *Store) UpdateCategoryDisplayTag(ctx context.Context, categoryID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cats[categoryID]
	if !ok {
		return fmt.Errorf("updating display tag of %q: category not found", categoryID)
	}
	c.DisplayTag = tag
	return s.persistCats(ctx)
}

// recomputeCategoryCentroidLocked averages the prototypes of the member
// topics. An emptied category keeps its stale centroid, like a topic.
func (s *Store) recomputeCategoryCentroidLocked(c *SuperCategory) {
	vecs := make([][]float64, 0, len(c.TopicIDs))
	for _, id := range c.TopicIDs {
		if t, ok := s.topics[id]; ok {
			if p := vecmath.Prototype(t.Embedding, t.LabelEmbedding); len(p) > 0 {
				vecs = append(vecs, p)
			}
		}
	}
	if len(vecs) == 0 {
		return
	}
	c.Embedding = vecmath.Average(vecs)
}
