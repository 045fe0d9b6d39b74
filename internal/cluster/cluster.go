// Package cluster implements the incremental topic assignment policy: each
// new note lands on an existing topic via lexical name resolution or fused
// embedding similarity, or founds a topic of its own. Topics grow reluctant
// as they fill (raised threshold past the soft cap) and shed their least
// representative member past the hard cap.
package cluster

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gistlabs/gist/internal/embed"
	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/llm"
	"github.com/gistlabs/gist/internal/topics"
	"github.com/gistlabs/gist/internal/vecmath"
)

// Config holds the clustering tunables.
type Config struct {
	// NoteWeight and LabelWeight blend content and name similarity into the
	// fused score; they must sum to 1. Either signal alone misclassifies:
	// content similarity merges topics that merely mention the same
	// entities, name similarity misses one subject under two wordings.
	NoteWeight  float64
	LabelWeight float64

	// BaseThreshold admits a note into a topic below the soft cap;
	// RaisedThreshold applies at or above it, steering borderline notes
	// into new, more specific topics instead of enlarging a generalist one.
	BaseThreshold   float64
	RaisedThreshold float64
	SoftCapSize     int

	// HardCap is the maximum member count; the least representative member
	// is evicted after an attach pushes a topic past it.
	HardCap int

	// CategoryThreshold is the fused-score floor for filing a topic under
	// an existing super category. Lower than the note thresholds; category
	// grouping is deliberately broad.
	CategoryThreshold float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		NoteWeight:        0.7,
		LabelWeight:       0.3,
		BaseThreshold:     0.56,
		RaisedThreshold:   0.68,
		SoftCapSize:       6,
		HardCap:           10,
		CategoryThreshold: 0.74,
	}
}

// Engine runs the assignment policy over a topic store. Summarize and embed
// calls for different notes may run concurrently, but the decision-and-
// mutation phase is serialized: two in-flight ingestions must never both
// read a stale centroid and create duplicate near-identical topics.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	store      *topics.Store
	summarizer llm.Summarizer
	embedder   embed.Embedder
}

// NewEngine wires the policy to its collaborators.
func NewEngine(store *topics.Store, summarizer llm.Summarizer, embedder embed.Embedder, cfg Config) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		summarizer: summarizer,
		embedder:   embedder,
	}
}

// Store exposes the underlying topic store for read access.
func (e *Engine) Store() *topics.Store { return e.store }

// assignLocked decides the destination topic for an inserted note and
// attaches it there. Lexical resolution wins unconditionally; a near-exact
// name match is a stronger identity signal than any similarity score. The
// fused score comparison is strict greater-than, so the earliest topic in
// insertion order wins ties, and the threshold comparison is inclusive.
func (e *Engine) assignLocked(ctx context.Context, note *topics.Note, canonicalName string, labelEmb []float64) (string, error) {
	all := e.store.Topics()
	entries := make([]lexical.Entry, len(all))
	sizes := make(map[string]int, len(all))
	for i, t := range all {
		entries[i] = lexical.Entry{ID: t.ID, Name: t.Name, Aliases: t.Aliases}
		sizes[t.ID] = len(t.SummaryIDs)
	}

	destID := lexical.ResolveName(canonicalName, entries)
	if destID == "" {
		bestID, bestScore := "", 0.0
		for _, t := range all {
			score := e.fusedScore(note.Embedding, labelEmb, t.Embedding, t.LabelEmbedding)
			if score > bestScore {
				bestScore, bestID = score, t.ID
			}
		}
		if bestID != "" {
			threshold := e.cfg.BaseThreshold
			if sizes[bestID] >= e.cfg.SoftCapSize {
				threshold = e.cfg.RaisedThreshold
			}
			if bestScore >= threshold {
				destID = bestID
			}
		}
	}

	if destID == "" {
		t, err := e.store.CreateTopic(ctx, canonicalName, note.Embedding, labelEmb)
		if err != nil {
			return "", err
		}
		destID = t.ID
	} else {
		// Matched an existing topic under a differing surface name; remember
		// the wording for future lexical hits.
		if err := e.store.AddAlias(ctx, destID, canonicalName); err != nil {
			return "", err
		}
	}

	if err := e.store.AttachNote(ctx, destID, note.ID); err != nil {
		return "", err
	}
	if err := e.enforceCapLocked(ctx, destID); err != nil {
		return "", err
	}
	return destID, nil
}

// fusedScore blends content and label similarity against one topic. The
// label prototype falls back to the topic prototype when the topic carries
// no label embedding.
func (e *Engine) fusedScore(noteEmb, labelEmb, topicEmb, topicLabelEmb []float64) float64 {
	proto := vecmath.Prototype(topicEmb, topicLabelEmb)
	labelProto := topicLabelEmb
	if len(labelProto) == 0 {
		labelProto = proto
	}
	return e.cfg.NoteWeight*vecmath.Cosine(noteEmb, proto) +
		e.cfg.LabelWeight*vecmath.Cosine(labelEmb, labelProto)
}

// enforceCapLocked evicts the least representative members until the topic
// is back at the hard cap. Evicted notes survive as topicless orphans.
func (e *Engine) enforceCapLocked(ctx context.Context, topicID string) error {
	for {
		t := e.store.GetTopic(topicID)
		if t == nil || len(t.SummaryIDs) <= e.cfg.HardCap {
			return nil
		}
		worstID, worst := "", math.Inf(1)
		for _, id := range t.SummaryIDs {
			n := e.store.GetNote(id)
			if n == nil {
				continue
			}
			if sim := vecmath.Cosine(n.Embedding, t.Embedding); sim < worst {
				worst, worstID = sim, id
			}
		}
		if worstID == "" {
			return nil
		}
		if err := e.store.EvictNote(ctx, topicID, worstID); err != nil {
			return fmt.Errorf("evicting outlier from %q: %w", topicID, err)
		}
	}
}

// RenameTopic embeds the new name's label text and delegates to the store's
// rename semantics. The label embedding is best-effort; a rename must not
// fail just because the embedding provider is down. A merge-by-move can push
// the target past the hard cap, so the cap is enforced on the destination.
func (e *Engine) RenameTopic(ctx context.Context, topicID, noteID, newName string) (topics.RenameResult, error) {
	norm := lexical.Normalize(newName)
	if norm == "" {
		return topics.RenameResult{}, fmt.Errorf("renaming topic: name %q normalizes to empty", newName)
	}
	var labelEmb []float64
	if vec, err := e.embedder.Embed(ctx, lexical.LabelText(norm)); err == nil {
		labelEmb = vec
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.store.RenameTopic(ctx, topicID, noteID, newName, labelEmb)
	if err != nil {
		return topics.RenameResult{}, err
	}
	if res.Outcome == topics.RenameMovedToExisting {
		if err := e.enforceCapLocked(ctx, res.TopicID); err != nil {
			return topics.RenameResult{}, err
		}
	}
	return res, nil
}

// ReassignNote manually moves a note into another topic, then enforces the
// cap on the destination.
func (e *Engine) ReassignNote(ctx context.Context, noteID, targetTopicID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.ReassignNote(ctx, noteID, targetTopicID); err != nil {
		return err
	}
	return e.enforceCapLocked(ctx, targetTopicID)
}
