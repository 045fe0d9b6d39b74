package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/gistlabs/gist/internal/embed"
	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/llm"
	"github.com/gistlabs/gist/internal/storage"
	"github.com/gistlabs/gist/internal/topics"
)

type stubSummarizer struct {
	res llm.Result
	dec llm.Decomposition
	err error
}

func (s *stubSummarizer) Summarize(context.Context, string, string) (llm.Result, error) {
	return s.res, s.err
}

func (s *stubSummarizer) Decompose(context.Context, string, string) (llm.Decomposition, error) {
	return s.dec, s.err
}

// stubEmbedder returns canned vectors by exact text. Unknown texts get an
// empty vector, which contributes zero to every similarity score.
type stubEmbedder struct {
	vectors map[string][]float64
	failOn  string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if s.failOn != "" && text == s.failOn {
		return nil, embed.ErrEmbedding
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float64{}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestEngine(t *testing.T, sum *stubSummarizer, emb *stubEmbedder, cfg Config) *Engine {
	t.Helper()
	store, err := topics.NewStore(context.Background(), storage.NewMemoryRepository())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return NewEngine(store, sum, emb, cfg)
}

func TestIngestIntoEmptyStoreCreatesTopic(t *testing.T) {
	sum := &stubSummarizer{res: llm.Result{Summary: "warming trends", CanonicalName: "Climate Change"}}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"warming trends": {1, 0, 0},
	}}
	e := newTestEngine(t, sum, emb, DefaultConfig())

	res, err := e.Ingest(context.Background(), IngestRequest{Transcript: "raw text"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.NoteIDs) != 1 || len(res.TopicIDs) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	all := e.Store().Topics()
	if len(all) != 1 {
		t.Fatalf("expected one topic, got %d", len(all))
	}
	if all[0].Name != "climate change" {
		t.Fatalf("expected normalized topic name, got %q", all[0].Name)
	}
	if len(all[0].SummaryIDs) != 1 || all[0].SummaryIDs[0] != res.NoteIDs[0] {
		t.Fatalf("topic should hold the new note, got %v", all[0].SummaryIDs)
	}
	if n := e.Store().GetNote(res.NoteIDs[0]); n.CanonicalSuggested != "Climate Change" {
		t.Fatalf("note should preserve the raw suggestion, got %q", n.CanonicalSuggested)
	}
}

func TestIngestMatchesLexicallyBeforeEmbeddings(t *testing.T) {
	sum := &stubSummarizer{res: llm.Result{Summary: "warming trends", CanonicalName: "Climate Change"}}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"warming trends": {1, 0, 0},
		"sea levels":     {0, 1, 0}, // orthogonal: similarity alone would never match
	}}
	e := newTestEngine(t, sum, emb, DefaultConfig())
	ctx := context.Background()

	first, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	sum.res = llm.Result{Summary: "sea levels", CanonicalName: "climate-change"}
	second, err := e.Ingest(ctx, IngestRequest{Transcript: "t2"})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if second.TopicIDs[0] != first.TopicIDs[0] {
		t.Fatalf("normalized name equality must reuse the topic: %q vs %q", second.TopicIDs[0], first.TopicIDs[0])
	}
	tp := e.Store().GetTopic(first.TopicIDs[0])
	if len(tp.SummaryIDs) != 2 {
		t.Fatalf("topic should have both notes, got %v", tp.SummaryIDs)
	}
}

func TestIngestMatchesBySimilarityAndAliases(t *testing.T) {
	goLabel := lexical.LabelText("go")
	golangLabel := lexical.LabelText("golang internals")
	sum := &stubSummarizer{res: llm.Result{Summary: "notes on go", CanonicalName: "go"}}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"notes on go":   {1, 0, 0},
		"more about go": {1, 0, 0},
		goLabel:         {1, 0, 0},
		golangLabel:     {1, 0, 0},
	}}
	e := newTestEngine(t, sum, emb, DefaultConfig())
	ctx := context.Background()

	first, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// Lexically unrelated name, but identical embeddings: matched by score.
	sum.res = llm.Result{Summary: "more about go", CanonicalName: "golang internals"}
	second, err := e.Ingest(ctx, IngestRequest{Transcript: "t2"})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if second.TopicIDs[0] != first.TopicIDs[0] {
		t.Fatal("similarity match should reuse the topic")
	}
	tp := e.Store().GetTopic(first.TopicIDs[0])
	if len(tp.Aliases) != 1 || tp.Aliases[0] != "golang internals" {
		t.Fatalf("differing surface name should become an alias, got %v", tp.Aliases)
	}
}

func TestThresholdBoundaryIsInclusive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseThreshold = 0.7 // reached exactly by full content match, zero label match

	sum := &stubSummarizer{res: llm.Result{Summary: "first", CanonicalName: "alpha"}}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"first":  {1, 0, 0},
		"second": {1, 0, 0},
	}}
	e := newTestEngine(t, sum, emb, cfg)
	ctx := context.Background()

	first, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// Content cosine is exactly 1, label cosine exactly 0 (empty default
	// vectors), so fused = 0.7*1 + 0.3*0 = the threshold itself.
	sum.res = llm.Result{Summary: "second", CanonicalName: "beta"}
	second, err := e.Ingest(ctx, IngestRequest{Transcript: "t2"})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.TopicIDs[0] != first.TopicIDs[0] {
		t.Fatal("a score exactly at the threshold must be accepted")
	}
}

func TestSoftCapRaisesThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SoftCapSize = 2
	cfg.BaseThreshold = 0.7
	cfg.RaisedThreshold = 0.9

	sum := &stubSummarizer{res: llm.Result{Summary: "s1", CanonicalName: "alpha"}}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"s1": {1, 0, 0}, "s2": {1, 0, 0}, "s3": {1, 0, 0},
	}}
	e := newTestEngine(t, sum, emb, cfg)
	ctx := context.Background()

	first, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("ingest 1: %v", err)
	}
	sum.res = llm.Result{Summary: "s2", CanonicalName: "beta"}
	if _, err := e.Ingest(ctx, IngestRequest{Transcript: "t2"}); err != nil {
		t.Fatalf("ingest 2: %v", err)
	}

	// Two members now; the watermark switches the threshold to 0.9, which a
	// fused score of 0.7 no longer clears.
	sum.res = llm.Result{Summary: "s3", CanonicalName: "gamma"}
	third, err := e.Ingest(ctx, IngestRequest{Transcript: "t3"})
	if err != nil {
		t.Fatalf("ingest 3: %v", err)
	}
	if third.TopicIDs[0] == first.TopicIDs[0] {
		t.Fatal("raised threshold should force a new topic")
	}
	if got := len(e.Store().Topics()); got != 2 {
		t.Fatalf("expected 2 topics, got %d", got)
	}
}

func TestHardCapEvictsLeastRepresentativeMember(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HardCap = 3

	sum := &stubSummarizer{}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"s1": {1, 0, 0},
		"s2": {1, 0, 0},
		"s3": {0, 1, 0}, // the outlier
		"s4": {1, 0, 0},
	}}
	e := newTestEngine(t, sum, emb, cfg)
	ctx := context.Background()

	var topicID string
	var outlierNote string
	for i, s := range []string{"s1", "s2", "s3", "s4"} {
		sum.res = llm.Result{Summary: s, CanonicalName: "alpha"}
		res, err := e.Ingest(ctx, IngestRequest{Transcript: s})
		if err != nil {
			t.Fatalf("ingest %s: %v", s, err)
		}
		topicID = res.TopicIDs[0]
		if i == 2 {
			outlierNote = res.NoteIDs[0]
		}
	}

	tp := e.Store().GetTopic(topicID)
	if len(tp.SummaryIDs) != 3 {
		t.Fatalf("expected exactly %d members after eviction, got %d", cfg.HardCap, len(tp.SummaryIDs))
	}
	for _, id := range tp.SummaryIDs {
		if id == outlierNote {
			t.Fatal("the outlier should have been evicted")
		}
	}
	evicted := e.Store().GetNote(outlierNote)
	if evicted == nil {
		t.Fatal("evicted note must survive as a record")
	}
	if evicted.TopicID != "" {
		t.Fatalf("evicted note must be topicless, got %q", evicted.TopicID)
	}
}

func TestFailedEmbeddingAbortsBeforeMutation(t *testing.T) {
	sum := &stubSummarizer{res: llm.Result{Summary: "doomed", CanonicalName: "alpha"}}
	emb := &stubEmbedder{failOn: "doomed"}
	e := newTestEngine(t, sum, emb, DefaultConfig())

	if _, err := e.Ingest(context.Background(), IngestRequest{Transcript: "t"}); !errors.Is(err, embed.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if st := e.Store().Summary(); st.Topics != 0 || st.Notes != 0 {
		t.Fatalf("failed ingest must not touch the store, got %+v", st)
	}
}

func TestFailedSummarizationAborts(t *testing.T) {
	sum := &stubSummarizer{err: llm.ErrSummarization}
	e := newTestEngine(t, sum, &stubEmbedder{}, DefaultConfig())

	if _, err := e.Ingest(context.Background(), IngestRequest{Transcript: "t"}); !errors.Is(err, llm.ErrSummarization) {
		t.Fatalf("expected ErrSummarization, got %v", err)
	}
	if st := e.Store().Summary(); st.Notes != 0 {
		t.Fatalf("failed ingest must not touch the store, got %+v", st)
	}
}

func TestMultiTopicIngestCreatesLinkedNotes(t *testing.T) {
	sum := &stubSummarizer{dec: llm.Decomposition{
		OverallSummary: "a video about go and rust",
		Topics: []llm.SubTopic{
			{Name: "go", Summary: "go part", Prominence: 60},
			{Name: "rust", Summary: "rust part", Prominence: 40},
		},
	}}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"go part":   {1, 0, 0},
		"rust part": {0, 1, 0},
	}}
	e := newTestEngine(t, sum, emb, DefaultConfig())

	res, err := e.Ingest(context.Background(), IngestRequest{Transcript: "t", MultiTopic: true, VideoID: "abc123DEF45"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.NoteIDs) != 2 || len(e.Store().Topics()) != 2 {
		t.Fatalf("expected two notes in two topics, got %+v", res)
	}

	primary := e.Store().GetNote(res.NoteIDs[0])
	secondary := e.Store().GetNote(res.NoteIDs[1])
	if !primary.IsPrimary || secondary.IsPrimary {
		t.Fatal("only the first extracted topic is primary")
	}
	if primary.FullSummary != "a video about go and rust" || secondary.FullSummary != "" {
		t.Fatal("the overall summary lives on the primary note only")
	}
	if primary.VideoGroupID == "" || primary.VideoGroupID != secondary.VideoGroupID {
		t.Fatalf("notes from one source must share a group id: %q vs %q", primary.VideoGroupID, secondary.VideoGroupID)
	}
	if primary.Prominence != 60 || secondary.Prominence != 40 {
		t.Fatalf("prominence lost: %d/%d", primary.Prominence, secondary.Prominence)
	}
}

func TestMultiTopicIngestAbortsOnUnnamedSubTopic(t *testing.T) {
	sum := &stubSummarizer{dec: llm.Decomposition{
		OverallSummary: "o",
		Topics:         []llm.SubTopic{{Name: "", Summary: "valid summary text"}},
	}}
	e := newTestEngine(t, sum, &stubEmbedder{}, DefaultConfig())

	if _, err := e.Ingest(context.Background(), IngestRequest{Transcript: "t", MultiTopic: true}); !errors.Is(err, llm.ErrSummarization) {
		t.Fatalf("expected ErrSummarization, got %v", err)
	}
	if st := e.Store().Summary(); st.Topics != 0 || st.Notes != 0 || st.OrphanNotes != 0 {
		t.Fatalf("aborted ingest must leave nothing behind, got %+v", st)
	}
}

func TestIngestAbortsOnEmptyCanonicalName(t *testing.T) {
	sum := &stubSummarizer{res: llm.Result{Summary: "valid summary text", CanonicalName: "  "}}
	e := newTestEngine(t, sum, &stubEmbedder{}, DefaultConfig())

	if _, err := e.Ingest(context.Background(), IngestRequest{Transcript: "t"}); !errors.Is(err, llm.ErrSummarization) {
		t.Fatalf("expected ErrSummarization, got %v", err)
	}
	if st := e.Store().Summary(); st.Topics != 0 || st.Notes != 0 {
		t.Fatalf("aborted ingest must leave nothing behind, got %+v", st)
	}
}

func TestEngineRenameSplit(t *testing.T) {
	sum := &stubSummarizer{}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"s1": {1, 0, 0},
		"s2": {0, 1, 0},
	}}
	cfg := DefaultConfig()
	e := newTestEngine(t, sum, emb, cfg)
	ctx := context.Background()

	sum.res = llm.Result{Summary: "s1", CanonicalName: "science"}
	first, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("ingest 1: %v", err)
	}
	sum.res = llm.Result{Summary: "s2", CanonicalName: "science"}
	second, err := e.Ingest(ctx, IngestRequest{Transcript: "t2"})
	if err != nil {
		t.Fatalf("ingest 2: %v", err)
	}

	res, err := e.RenameTopic(ctx, first.TopicIDs[0], second.NoteIDs[0], "astronomy")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if res.Outcome != topics.RenameSplit {
		t.Fatalf("expected split, got %+v", res)
	}
	if got := len(e.Store().Topics()); got != 2 {
		t.Fatalf("expected 2 topics after split, got %d", got)
	}
}

func TestEngineRenameMergeEnforcesCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HardCap = 2

	sum := &stubSummarizer{}
	emb := &stubEmbedder{vectors: map[string][]float64{
		"s1": {1, 0, 0}, "s2": {0, 1, 0}, "s3": {0, 0, 1}, "s4": {0, 0, 1},
	}}
	e := newTestEngine(t, sum, emb, cfg)
	ctx := context.Background()

	sum.res = llm.Result{Summary: "s1", CanonicalName: "science"}
	sci, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("ingest 1: %v", err)
	}
	sum.res = llm.Result{Summary: "s2", CanonicalName: "science"}
	sci2, err := e.Ingest(ctx, IngestRequest{Transcript: "t2"})
	if err != nil {
		t.Fatalf("ingest 2: %v", err)
	}
	sum.res = llm.Result{Summary: "s3", CanonicalName: "space"}
	if _, err := e.Ingest(ctx, IngestRequest{Transcript: "t3"}); err != nil {
		t.Fatalf("ingest 3: %v", err)
	}
	sum.res = llm.Result{Summary: "s4", CanonicalName: "space"}
	if _, err := e.Ingest(ctx, IngestRequest{Transcript: "t4"}); err != nil {
		t.Fatalf("ingest 4: %v", err)
	}

	// space is already at the cap; merging a science note in must trigger
	// an eviction on the destination.
	res, err := e.RenameTopic(ctx, sci.TopicIDs[0], sci2.NoteIDs[0], "space")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if res.Outcome != topics.RenameMovedToExisting {
		t.Fatalf("expected merge-by-move, got %+v", res)
	}
	target := e.Store().GetTopic(res.TopicID)
	if len(target.SummaryIDs) != cfg.HardCap {
		t.Fatalf("merge destination should be back at the cap, got %v", target.SummaryIDs)
	}
}

func TestCategorizeTopicUsesSubjectsHint(t *testing.T) {
	sum := &stubSummarizer{res: llm.Result{
		Summary:       "s1",
		CanonicalName: "kubernetes",
		Subjects:      []string{"technology"},
	}}
	emb := &stubEmbedder{vectors: map[string][]float64{"s1": {1, 0, 0}}}
	e := newTestEngine(t, sum, emb, DefaultConfig())
	ctx := context.Background()

	res, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	catID, err := e.CategorizeTopic(ctx, res.TopicIDs[0])
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	cat := e.Store().GetCategory(catID)
	if cat == nil || cat.Name != "technology" {
		t.Fatalf("expected technology category, got %+v", cat)
	}
	if len(cat.TopicIDs) != 1 || cat.TopicIDs[0] != res.TopicIDs[0] {
		t.Fatalf("category should hold the topic, got %v", cat.TopicIDs)
	}
	if e.Store().GetTopic(res.TopicIDs[0]).CategoryID != catID {
		t.Fatal("topic should reference its category")
	}
}

func TestCategorizeSecondTopicJoinsExistingCategory(t *testing.T) {
	sum := &stubSummarizer{res: llm.Result{Summary: "s1", CanonicalName: "kubernetes", Subjects: []string{"technology"}}}
	emb := &stubEmbedder{vectors: map[string][]float64{"s1": {1, 0, 0}, "s2": {0, 1, 0}}}
	e := newTestEngine(t, sum, emb, DefaultConfig())
	ctx := context.Background()

	first, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("ingest 1: %v", err)
	}
	if _, err := e.CategorizeTopic(ctx, first.TopicIDs[0]); err != nil {
		t.Fatalf("categorize 1: %v", err)
	}

	sum.res = llm.Result{Summary: "s2", CanonicalName: "databases", Subjects: []string{"Technology"}}
	second, err := e.Ingest(ctx, IngestRequest{Transcript: "t2"})
	if err != nil {
		t.Fatalf("ingest 2: %v", err)
	}
	catID, err := e.CategorizeTopic(ctx, second.TopicIDs[0])
	if err != nil {
		t.Fatalf("categorize 2: %v", err)
	}

	cats := e.Store().Categories()
	if len(cats) != 1 {
		t.Fatalf("expected one shared category, got %d", len(cats))
	}
	if len(cats[0].TopicIDs) != 2 || cats[0].ID != catID {
		t.Fatalf("both topics should share the category, got %+v", cats[0])
	}
}

func TestCategorizeFallsBackToKeywordHeuristic(t *testing.T) {
	sum := &stubSummarizer{res: llm.Result{Summary: "s1", CanonicalName: "stock market analysis"}}
	emb := &stubEmbedder{vectors: map[string][]float64{"s1": {1, 0, 0}}}
	e := newTestEngine(t, sum, emb, DefaultConfig())
	ctx := context.Background()

	res, err := e.Ingest(ctx, IngestRequest{Transcript: "t1"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	catID, err := e.CategorizeTopic(ctx, res.TopicIDs[0])
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if cat := e.Store().GetCategory(catID); cat.Name != "business" {
		t.Fatalf(`"market" keyword should map to business, got %q`, cat.Name)
	}
}
