package topics

import (
	"context"
	"fmt"

	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/vecmath"
)

// RenameOutcome says which of the three rename paths ran.
type RenameOutcome int

const (
	// RenameInPlace relabeled the topic without touching membership.
	RenameInPlace RenameOutcome = iota
	// RenameMovedToExisting moved the edited note into a topic that already
	// carried the target name.
	RenameMovedToExisting
	// RenameSplit carved the edited note out into a brand-new topic.
	RenameSplit
)

func (o RenameOutcome) String() string {
	switch o {
	case RenameInPlace:
		return "renamed"
	case RenameMovedToExisting:
		return "merged"
	case RenameSplit:
		return "split"
	}
	return "unknown"
}

// RenameResult reports where the edited note ended up.
type RenameResult struct {
	Outcome RenameOutcome
	// TopicID is the topic holding the edited note after the rename. For an
	// in-place rename this is the original topic; for a move or split it is
	// the destination.
	TopicID string
}

// RenameTopic applies newName to the topic, with membership-preserving
// semantics: a single-member topic renames in place, while a multi-member
// topic never relabels all its members on the strength of one edit. Instead
// the edited note alone moves, either into an existing topic already named
// newName or into a fresh topic split off from the original.
//
// noteID identifies the note whose detail view triggered the rename; it may
// be empty for a single-member topic, where the sole member is implied.
// newLabelEmbedding is the embedding of the new name's label text and may be
// empty when the embedding fetch failed.
func (s *Store) RenameTopic(ctx context.Context, topicID, noteID, newName string, newLabelEmbedding []float64) (RenameResult, error) {
	norm := lexical.Normalize(newName)
	if norm == "" {
		return RenameResult{}, fmt.Errorf("renaming topic %q: name %q normalizes to empty", topicID, newName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[topicID]
	if !ok {
		return RenameResult{}, fmt.Errorf("renaming topic %q: not found", topicID)
	}
	if noteID == "" && len(t.SummaryIDs) == 1 {
		noteID = t.SummaryIDs[0]
	}

	if lexical.Normalize(t.Name) == norm {
		// Same name after normalization. Still take a fresh label embedding
		// if one was computed.
		if len(newLabelEmbedding) > 0 {
			t.LabelEmbedding = cloneVector(newLabelEmbedding)
			if err := s.persistTopics(ctx); err != nil {
				return RenameResult{}, err
			}
		}
		return RenameResult{Outcome: RenameInPlace, TopicID: topicID}, nil
	}

	if len(t.SummaryIDs) <= 1 {
		return s.renameInPlaceLocked(ctx, t, noteID, norm, newLabelEmbedding)
	}

	n, ok := s.notes[noteID]
	if !ok {
		return RenameResult{}, fmt.Errorf("renaming topic %q: note %q not found", topicID, noteID)
	}
	if n.TopicID != topicID {
		return RenameResult{}, fmt.Errorf("renaming topic %q: note %q belongs to %q", topicID, noteID, n.TopicID)
	}

	if target := s.findTopicByNameLocked(norm, topicID); target != nil {
		return s.renameMoveLocked(ctx, t, target, n)
	}
	return s.renameSplitLocked(ctx, t, n, norm, newLabelEmbedding)
}

// renameInPlaceLocked relabels a topic with at most one member. The old name
// is preserved as an alias only when it was never manually chosen (it still
// equals the member note's suggested canonical name) and no other topic
// carries it; either condition failing would make the alias misleading.
func (s *Store) renameInPlaceLocked(ctx context.Context, t *Topic, noteID, norm string, labelEmb []float64) (RenameResult, error) {
	oldName := t.Name
	oldNorm := lexical.Normalize(oldName)

	keepAlias := false
	if n, ok := s.notes[noteID]; ok {
		keepAlias = lexical.Normalize(n.CanonicalSuggested) == oldNorm &&
			s.findTopicByNameLocked(oldNorm, t.ID) == nil
	}

	t.Name = norm
	if keepAlias {
		addAliasLocked(t, oldName)
	}
	// Drop any alias the new name now shadows.
	kept := t.Aliases[:0]
	for _, a := range t.Aliases {
		if lexical.Normalize(a) != norm {
			kept = append(kept, a)
		}
	}
	t.Aliases = kept
	if len(labelEmb) > 0 {
		t.LabelEmbedding = cloneVector(labelEmb)
	}

	if err := s.persistTopics(ctx); err != nil {
		return RenameResult{}, err
	}
	return RenameResult{Outcome: RenameInPlace, TopicID: t.ID}, nil
}

// renameMoveLocked reassigns the edited note from src into target, which
// already carries the requested name.
func (s *Store) renameMoveLocked(ctx context.Context, src, target *Topic, n *Note) (RenameResult, error) {
	s.detachLocked(src, n.ID)
	if !contains(target.SummaryIDs, n.ID) {
		target.SummaryIDs = append(target.SummaryIDs, n.ID)
	}
	n.TopicID = target.ID
	s.recomputeCentroidLocked(target)

	if err := s.persistTopics(ctx); err != nil {
		return RenameResult{}, err
	}
	if err := s.persistNotes(ctx); err != nil {
		return RenameResult{}, err
	}
	return RenameResult{Outcome: RenameMovedToExisting, TopicID: target.ID}, nil
}

// renameSplitLocked carves the edited note out of src into a new topic named
// norm, seeded like any new topic from the note's embedding blended with the
// new label embedding. src keeps its name and remaining members.
func (s *Store) renameSplitLocked(ctx context.Context, src *Topic, n *Note, norm string, labelEmb []float64) (RenameResult, error) {
	seed := cloneVector(n.Embedding)
	if len(labelEmb) > 0 && len(seed) > 0 {
		seed = vecmath.Average([][]float64{n.Embedding, labelEmb})
	}

	fresh := &Topic{
		ID:             NewID("topic"),
		Name:           norm,
		Aliases:        []string{},
		Embedding:      seed,
		LabelEmbedding: cloneVector(labelEmb),
		SummaryIDs:     []string{n.ID},
	}
	s.topics[fresh.ID] = fresh
	s.topicOrder = append(s.topicOrder, fresh.ID)

	s.detachLocked(src, n.ID)
	n.TopicID = fresh.ID
	s.recomputeCentroidLocked(fresh)

	if err := s.persistTopics(ctx); err != nil {
		return RenameResult{}, err
	}
	if err := s.persistNotes(ctx); err != nil {
		return RenameResult{}, err
	}
	return RenameResult{Outcome: RenameSplit, TopicID: fresh.ID}, nil
}
