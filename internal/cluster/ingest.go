package cluster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/llm"
	"github.com/gistlabs/gist/internal/topics"
)

// IngestRequest describes one source to ingest.
type IngestRequest struct {
	Transcript string
	UserPrompt string

	// MultiTopic asks the summarizer to decompose the source into a primary
	// topic plus up to two secondary ones, each becoming its own note.
	MultiTopic bool

	VideoID     string
	OriginalURL string
	VideoTitle  string
	Segments    []topics.Segment
}

// IngestResult reports the created notes and their destination topics.
type IngestResult struct {
	NoteIDs  []string
	TopicIDs []string
}

// Ingest runs the full pipeline: summarize, embed, match, attach, evict.
// All network calls complete before the first store mutation, so a failed
// summarize or embed aborts with nothing half-created.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.MultiTopic {
		return e.ingestMulti(ctx, req)
	}
	return e.ingestSingle(ctx, req)
}

func (e *Engine) ingestSingle(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	res, err := e.summarizer.Summarize(ctx, req.Transcript, req.UserPrompt)
	if err != nil {
		return nil, fmt.Errorf("ingesting note: %w", err)
	}
	// A result that cannot name a topic must abort here; the mutation phase
	// inserts the note before the topic decision, and a CreateTopic failure
	// there would strand it.
	if strings.TrimSpace(res.Summary) == "" || lexical.Normalize(res.CanonicalName) == "" {
		return nil, fmt.Errorf("ingesting note: %w: unusable summarizer result", llm.ErrSummarization)
	}

	noteEmb, err := e.embedder.Embed(ctx, res.Summary)
	if err != nil {
		return nil, fmt.Errorf("ingesting note: %w", err)
	}
	labelEmb, err := e.embedder.Embed(ctx, lexical.LabelText(lexical.Normalize(res.CanonicalName)))
	if err != nil {
		return nil, fmt.Errorf("ingesting note: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	note := e.buildNote(req, res, noteEmb)
	if err := e.store.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	topicID, err := e.assignLocked(ctx, note, res.CanonicalName, labelEmb)
	if err != nil {
		return nil, err
	}
	return &IngestResult{NoteIDs: []string{note.ID}, TopicIDs: []string{topicID}}, nil
}

// ingestMulti decomposes the source and runs each sub-topic through the
// single-note pipeline independently. Embeddings for the sub-topics are
// fetched concurrently; the mutation phase stays serialized.
func (e *Engine) ingestMulti(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	dec, err := e.summarizer.Decompose(ctx, req.Transcript, req.UserPrompt)
	if err != nil {
		return nil, fmt.Errorf("ingesting multi-topic note: %w", err)
	}
	if len(dec.Topics) == 0 {
		return nil, fmt.Errorf("ingesting multi-topic note: %w: no topics", llm.ErrSummarization)
	}
	for _, st := range dec.Topics {
		if strings.TrimSpace(st.Summary) == "" || lexical.Normalize(st.Name) == "" {
			return nil, fmt.Errorf("ingesting multi-topic note: %w: unusable sub-topic", llm.ErrSummarization)
		}
	}

	noteEmbs := make([][]float64, len(dec.Topics))
	labelEmbs := make([][]float64, len(dec.Topics))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range dec.Topics {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, st.Summary)
			if err != nil {
				return err
			}
			noteEmbs[i] = vec
			return nil
		})
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, lexical.LabelText(lexical.Normalize(st.Name)))
			if err != nil {
				return err
			}
			labelEmbs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingesting multi-topic note: %w", err)
	}

	groupID := ""
	if len(dec.Topics) > 1 {
		groupID = topics.NewID("group")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result := &IngestResult{}
	for i, st := range dec.Topics {
		note := e.buildNote(req, llm.Result{
			Summary:       st.Summary,
			CanonicalName: st.Name,
			Keywords:      st.Keywords,
			Subjects:      st.Subjects,
		}, noteEmbs[i])
		note.Prominence = st.Prominence
		note.VideoGroupID = groupID
		note.IsPrimary = i == 0
		if i == 0 {
			note.FullSummary = dec.OverallSummary
		}

		if err := e.store.InsertNote(ctx, note); err != nil {
			return nil, err
		}
		topicID, err := e.assignLocked(ctx, note, st.Name, labelEmbs[i])
		if err != nil {
			return nil, err
		}
		result.NoteIDs = append(result.NoteIDs, note.ID)
		result.TopicIDs = append(result.TopicIDs, topicID)
	}
	return result, nil
}

func (e *Engine) buildNote(req IngestRequest, res llm.Result, embedding []float64) *topics.Note {
	return &topics.Note{
		ID:                 topics.NewID("note"),
		CreatedAt:          time.Now(),
		Transcript:         req.Transcript,
		Summary:            res.Summary,
		Embedding:          embedding,
		CanonicalSuggested: res.CanonicalName,
		Keywords:           res.Keywords,
		Subjects:           res.Subjects,
		VideoID:            req.VideoID,
		OriginalURL:        req.OriginalURL,
		VideoTitle:         req.VideoTitle,
		Segments:           req.Segments,
	}
}
