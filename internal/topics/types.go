// Package topics holds the mutable Topic/Note state at the heart of the
// clustering engine: creation, attachment, detachment, aliasing, renames
// (including the split and merge-by-move paths), and the super-category
// layer above topics. Every mutation keeps two invariants:
//
//   - a topic's centroid is always the arithmetic mean of its members'
//     summary embeddings, recomputed from the authoritative note records;
//   - a note's TopicID and its owning topic's SummaryIDs agree: a note
//     belongs to exactly one topic, or to none after eviction.
package topics

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic is a cluster of semantically related notes.
type Topic struct {
	ID   string `json:"id"`
	Name string `json:"name"` // normalized semantic fingerprint

	// DisplayTag is a cosmetic human-readable label. Never used in matching.
	DisplayTag string `json:"display_tag,omitempty"`

	// Aliases are previously seen surface names for this topic, kept in
	// original casing, deduplicated by normalized form.
	Aliases []string `json:"aliases"`

	// Embedding is the centroid: mean of all member notes' summary
	// embeddings, recomputed on every membership change.
	Embedding []float64 `json:"embedding"`

	// LabelEmbedding is the embedding of the name's templated label text.
	// Kept separate from the content centroid; short label text and long
	// summary text live in different regions of embedding space.
	LabelEmbedding []float64 `json:"label_embedding,omitempty"`

	// SummaryIDs lists member note IDs in insertion order.
	SummaryIDs []string `json:"summary_ids"`

	CategoryID string `json:"category_id,omitempty"`
}

// Note is one ingested, summarized unit of content. Transcript, summary and
// embedding are immutable after creation; only TopicID changes, via rename
// splits, reassignment, or eviction.
type Note struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary"`

	// FullSummary carries the overall source summary on the primary note
	// of a multi-topic ingestion.
	FullSummary string `json:"full_summary,omitempty"`

	Embedding []float64 `json:"embedding"`
	TopicID   string    `json:"topic_id"`

	// CanonicalSuggested preserves the LLM's raw name suggestion even after
	// the user edits the topic name; rename aliasing depends on it.
	CanonicalSuggested string `json:"canonical_suggested"`

	Keywords []string `json:"keywords"`
	Subjects []string `json:"subjects"`

	VideoID     string  `json:"video_id,omitempty"`
	OriginalURL string  `json:"original_url,omitempty"`
	VideoTitle  string  `json:"video_title,omitempty"`
	Segments    []Segment `json:"segments,omitempty"`

	// Multi-topic bookkeeping: notes extracted from one source share a
	// VideoGroupID; Prominence is the sub-topic's share of the source
	// content (0-100).
	Prominence   int    `json:"prominence,omitempty"`
	VideoGroupID string `json:"video_group_id,omitempty"`
	IsPrimary    bool   `json:"is_primary,omitempty"`
}

// Segment is one timed span of the source transcript.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration,omitempty"`
}

// SuperCategory groups topics the way topics group notes: same name/alias
// shape, centroid over member topic prototypes.
type SuperCategory struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DisplayTag     string    `json:"display_tag,omitempty"`
	Aliases        []string  `json:"aliases"`
	Embedding      []float64 `json:"embedding"`
	LabelEmbedding []float64 `json:"label_embedding,omitempty"`
	TopicIDs       []string  `json:"topic_ids"`
	Color          string    `json:"color,omitempty"`
}

// NewID returns a prefixed unique identifier, e.g. "note_1f2d3c4b5a69".
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + raw[:12]
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneVector(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

// Clone returns a deep copy; snapshots handed to callers never alias
// internal state.
func (t *Topic) Clone() *Topic {
	c := *t
	c.Aliases = cloneStrings(t.Aliases)
	c.Embedding = cloneVector(t.Embedding)
	c.LabelEmbedding = cloneVector(t.LabelEmbedding)
	c.SummaryIDs = cloneStrings(t.SummaryIDs)
	return &c
}

// Clone returns a deep copy of the note.
func (n *Note) Clone() *Note {
	c := *n
	c.Embedding = cloneVector(n.Embedding)
	c.Keywords = cloneStrings(n.Keywords)
	c.Subjects = cloneStrings(n.Subjects)
	if n.Segments != nil {
		c.Segments = make([]Segment, len(n.Segments))
		copy(c.Segments, n.Segments)
	}
	return &c
}

// Clone returns a deep copy of the super category.
func (sc *SuperCategory) Clone() *SuperCategory {
	c := *sc
	c.Aliases = cloneStrings(sc.Aliases)
	c.Embedding = cloneVector(sc.Embedding)
	c.LabelEmbedding = cloneVector(sc.LabelEmbedding)
	c.TopicIDs = cloneStrings(sc.TopicIDs)
	return &c
}
