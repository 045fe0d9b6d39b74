package topics

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/storage"
	"github.com/gistlabs/gist/internal/vecmath"
)

// document is the persisted shape of one keyed map: flat id→record items
// plus an explicit insertion order, so iteration stays deterministic across
// restarts and across implementations of the repository.
type document[T any] struct {
	Items map[string]T `json:"items"`
	Order []string     `json:"order"`
}

// Store is the process-wide topic/note state container. All operations are
// atomic from the caller's view: they take the store lock, mutate, and
// persist the affected maps wholesale before returning.
type Store struct {
	mu   sync.Mutex
	repo storage.Repository

	topics     map[string]*Topic
	topicOrder []string
	notes      map[string]*Note
	noteOrder  []string
	cats       map[string]*SuperCategory
	catOrder   []string
}

// NewStore loads the persisted maps from repo. Missing or corrupt documents
// load as empty; the store never fails to start over bad persisted state.
func NewStore(ctx context.Context, repo storage.Repository) (*Store, error) {
	s := &Store{
		repo:   repo,
		topics: make(map[string]*Topic),
		notes:  make(map[string]*Note),
		cats:   make(map[string]*SuperCategory),
	}

	var topicDoc document[*Topic]
	if _, err := repo.Load(ctx, storage.KeyTopics, &topicDoc); err != nil {
		return nil, fmt.Errorf("loading topics: %w", err)
	}
	var noteDoc document[*Note]
	if _, err := repo.Load(ctx, storage.KeySummaries, &noteDoc); err != nil {
		return nil, fmt.Errorf("loading notes: %w", err)
	}
	var catDoc document[*SuperCategory]
	if _, err := repo.Load(ctx, storage.KeySuperCats, &catDoc); err != nil {
		return nil, fmt.Errorf("loading super categories: %w", err)
	}

	if topicDoc.Items != nil {
		s.topics = topicDoc.Items
	}
	if noteDoc.Items != nil {
		s.notes = noteDoc.Items
	}
	if catDoc.Items != nil {
		s.cats = catDoc.Items
	}
	s.topicOrder = repairOrder(topicDoc.Order, keysOf(s.topics))
	s.noteOrder = repairNoteOrder(noteDoc.Order, s.notes)
	s.catOrder = repairOrder(catDoc.Order, keysOf(s.cats))

	migrate(s)
	return s, nil
}

// migrate fills zero values that older persisted records may lack, so the
// record shape can grow optional fields without breaking old data.
func migrate(s *Store) {
	for _, t := range s.topics {
		if t.Aliases == nil {
			t.Aliases = []string{}
		}
		if t.SummaryIDs == nil {
			t.SummaryIDs = []string{}
		}
	}
	for _, n := range s.notes {
		if n.Keywords == nil {
			n.Keywords = []string{}
		}
		if n.Subjects == nil {
			n.Subjects = []string{}
		}
	}
	for _, c := range s.cats {
		if c.Aliases == nil {
			c.Aliases = []string{}
		}
		if c.TopicIDs == nil {
			c.TopicIDs = []string{}
		}
	}
}

func keysOf[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// repairOrder keeps the persisted order where valid, drops ids with no
// record, and appends unordered ids (sorted, for determinism).
func repairOrder(order, allIDs []string) []string {
	present := make(map[string]struct{}, len(allIDs))
	for _, id := range allIDs {
		present[id] = struct{}{}
	}
	out := make([]string, 0, len(allIDs))
	seen := make(map[string]struct{}, len(allIDs))
	for _, id := range order {
		if _, ok := present[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range allIDs {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// repairNoteOrder is repairOrder with stray ids appended in creation order
// rather than lexically; notes carry timestamps, so use them.
func repairNoteOrder(order []string, notes map[string]*Note) []string {
	seen := make(map[string]struct{}, len(notes))
	out := make([]string, 0, len(notes))
	for _, id := range order {
		if _, ok := notes[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	var strays []string
	for id := range notes {
		if _, ok := seen[id]; !ok {
			strays = append(strays, id)
		}
	}
	sort.Slice(strays, func(i, j int) bool {
		a, b := notes[strays[i]], notes[strays[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strays[i] < strays[j]
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return append(out, strays...)
}

// --- persistence ---

func (s *Store) persistTopics(ctx context.Context) error {
	doc := document[*Topic]{Items: s.topics, Order: s.topicOrder}
	if err := s.repo.Save(ctx, storage.KeyTopics, doc); err != nil {
		return fmt.Errorf("persisting topics: %w", err)
	}
	return nil
}

func (s *Store) persistNotes(ctx context.Context) error {
	doc := document[*Note]{Items: s.notes, Order: s.noteOrder}
	if err := s.repo.Save(ctx, storage.KeySummaries, doc); err != nil {
		return fmt.Errorf("persisting notes: %w", err)
	}
	return nil
}

func (s *Store) persistCats(ctx context.Context) error {
	doc := document[*SuperCategory]{Items: s.cats, Order: s.catOrder}
	if err := s.repo.Save(ctx, storage.KeySuperCats, doc); err != nil {
		return fmt.Errorf("persisting super categories: %w", err)
	}
	return nil
}

// --- snapshots ---

// Topics returns deep copies of all topics in insertion order.
func (s *Store) Topics() []*Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Topic, 0, len(s.topicOrder))
	for _, id := range s.topicOrder {
		out = append(out, s.topics[id].Clone())
	}
	return out
}

// Notes returns deep copies of all notes in insertion order.
func (s *Store) Notes() []*Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Note, 0, len(s.noteOrder))
	for _, id := range s.noteOrder {
		out = append(out, s.notes[id].Clone())
	}
	return out
}

// Categories returns deep copies of all super categories in insertion order.
func (s *Store) Categories() []*SuperCategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SuperCategory, 0, len(s.catOrder))
	for _, id := range s.catOrder {
		out = append(out, s.cats[id].Clone())
	}
	return out
}

// GetTopic returns a deep copy of the topic, or nil when absent.
func (s *Store) GetTopic(id string) *Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.topics[id]; ok {
		return t.Clone()
	}
	return nil
}

// GetNote returns a deep copy of the note, or nil when absent.
func (s *Store) GetNote(id string) *Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notes[id]; ok {
		return n.Clone()
	}
	return nil
}

// GetCategory returns a deep copy of the super category, or nil when absent.
func (s *Store) GetCategory(id string) *SuperCategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cats[id]; ok {
		return c.Clone()
	}
	return nil
}

// TopicEntries returns name/alias entries for lexical resolution, in
// insertion order so tie-breaking stays deterministic.
func (s *Store) TopicEntries() []lexical.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lexical.Entry, 0, len(s.topicOrder))
	for _, id := range s.topicOrder {
		t := s.topics[id]
		out = append(out, lexical.Entry{ID: t.ID, Name: t.Name, Aliases: cloneStrings(t.Aliases)})
	}
	return out
}

// CategoryEntries returns name/alias entries for the super-category layer.
func (s *Store) CategoryEntries() []lexical.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lexical.Entry, 0, len(s.catOrder))
	for _, id := range s.catOrder {
		c := s.cats[id]
		out = append(out, lexical.Entry{ID: c.ID, Name: c.Name, Aliases: cloneStrings(c.Aliases)})
	}
	return out
}

// Stats summarizes store contents.
type Stats struct {
	Topics      int
	Notes       int
	Categories  int
	OrphanNotes int // evicted notes with no owning topic
}

// Summary returns current store statistics.
func (s *Store) Summary() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Topics: len(s.topics), Notes: len(s.notes), Categories: len(s.cats)}
	for _, n := range s.notes {
		if n.TopicID == "" {
			st.OrphanNotes++
		}
	}
	return st
}

// --- mutations ---

// CreateTopic allocates a topic named by the normalized form of name, with
// no members yet. The centroid is seeded from the blend of the triggering
// note's embedding and the name's label embedding, not the note alone; a
// one-member centroid would otherwise be dominated by that note's
// idiosyncrasies and hurt the next match attempt.
func (s *Store) CreateTopic(ctx context.Context, name string, seed, labelEmbedding []float64) (*Topic, error) {
	norm := lexical.Normalize(name)
	if norm == "" {
		return nil, fmt.Errorf("creating topic: name %q normalizes to empty", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	embedding := cloneVector(seed)
	if len(labelEmbedding) > 0 && len(seed) > 0 {
		embedding = vecmath.Average([][]float64{seed, labelEmbedding})
	} else if len(labelEmbedding) > 0 {
		embedding = cloneVector(labelEmbedding)
	}

	t := &Topic{
		ID:             NewID("topic"),
		Name:           norm,
		Aliases:        []string{},
		Embedding:      embedding,
		LabelEmbedding: cloneVector(labelEmbedding),
		SummaryIDs:     []string{},
	}
	s.topics[t.ID] = t
	s.topicOrder = append(s.topicOrder, t.ID)

	if err := s.persistTopics(ctx); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// InsertNote records a new note. The note is not attached to any topic yet;
// callers follow up with AttachNote.
func (s *Store) InsertNote(ctx context.Context, n *Note) error {
	if n.ID == "" {
		return fmt.Errorf("inserting note: missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[n.ID]; exists {
		return fmt.Errorf("inserting note %q: already exists", n.ID)
	}
	stored := n.Clone()
	if stored.Keywords == nil {
		stored.Keywords = []string{}
	}
	if stored.Subjects == nil {
		stored.Subjects = []string{}
	}
	s.notes[n.ID] = stored
	s.noteOrder = append(s.noteOrder, n.ID)
	return s.persistNotes(ctx)
}

// AttachNote appends the note to the topic's membership and recomputes the
// centroid over the full, freshly resolved member set. If the note belonged
// to another topic it is detached there first, so ownership stays single.
func (s *Store) AttachNote(ctx context.Context, topicID, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[topicID]
	if !ok {
		return fmt.Errorf("attaching note %q: topic %q not found", noteID, topicID)
	}
	n, ok := s.notes[noteID]
	if !ok {
		return fmt.Errorf("attaching note %q: note not found", noteID)
	}

	if n.TopicID != "" && n.TopicID != topicID {
		if prev, ok := s.topics[n.TopicID]; ok {
			s.detachLocked(prev, noteID)
		}
	}

	if !contains(t.SummaryIDs, noteID) {
		t.SummaryIDs = append(t.SummaryIDs, noteID)
	}
	n.TopicID = topicID
	s.recomputeCentroidLocked(t)

	if err := s.persistTopics(ctx); err != nil {
		return err
	}
	return s.persistNotes(ctx)
}

// EvictNote removes the note from the topic and clears its TopicID. The
// note record survives as a topicless orphan; it is never deleted.
func (s *Store) EvictNote(ctx context.Context, topicID, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[topicID]
	if !ok {
		return fmt.Errorf("evicting note %q: topic %q not found", noteID, topicID)
	}
	s.detachLocked(t, noteID)
	if n, ok := s.notes[noteID]; ok && n.TopicID == topicID {
		n.TopicID = ""
	}

	if err := s.persistTopics(ctx); err != nil {
		return err
	}
	return s.persistNotes(ctx)
}

// ReassignNote moves a note into targetTopicID, detaching it from its
// current topic and recomputing both centroids.
func (s *Store) ReassignNote(ctx context.Context, noteID, targetTopicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[noteID]
	if !ok {
		return fmt.Errorf("reassigning note %q: note not found", noteID)
	}
	target, ok := s.topics[targetTopicID]
	if !ok {
		return fmt.Errorf("reassigning note %q: topic %q not found", noteID, targetTopicID)
	}
	// Already there. A detach/re-append would churn SummaryIDs order, which
	// display and eviction tie-breaking rely on.
	if n.TopicID == targetTopicID {
		return nil
	}

	if prev, ok := s.topics[n.TopicID]; ok {
		s.detachLocked(prev, noteID)
	}
	if !contains(target.SummaryIDs, noteID) {
		target.SummaryIDs = append(target.SummaryIDs, noteID)
	}
	n.TopicID = targetTopicID
	s.recomputeCentroidLocked(target)

	if err := s.persistTopics(ctx); err != nil {
		return err
	}
	return s.persistNotes(ctx)
}

// AddAlias records candidate as an alias of the topic, keeping the original
// casing. No-op when the candidate normalizes to the topic's own name or to
// an existing alias.
func (s *Store) AddAlias(ctx context.Context, topicID, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[topicID]
	if !ok {
		return fmt.Errorf("adding alias to %q: topic not found", topicID)
	}
	if !addAliasLocked(t, candidate) {
		return nil
	}
	return s.persistTopics(ctx)
}

// UpdateDisplayTag sets the cosmetic display label.
func (s *Store) UpdateDisplayTag(ctx context.Context, topicID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[topicID]
	if !ok {
		return fmt.Errorf("updating display tag of %q: topic not found", topicID)
	}
	t.DisplayTag = tag
	return s.persistTopics(ctx)
}

// ClearAll wipes all persisted and in-memory state.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topics = make(map[string]*Topic)
	s.notes = make(map[string]*Note)
	s.cats = make(map[string]*SuperCategory)
	s.topicOrder = nil
	s.noteOrder = nil
	s.catOrder = nil

	for _, key := range []string{storage.KeyTopics, storage.KeySummaries, storage.KeySuperCats} {
		if err := s.repo.Delete(ctx, key); err != nil {
			return fmt.Errorf("clearing store: %w", err)
		}
	}
	return nil
}

// --- internal helpers (store lock held) ---

func (s *Store) detachLocked(t *Topic, noteID string) {
	out := t.SummaryIDs[:0]
	for _, id := range t.SummaryIDs {
		if id != noteID {
			out = append(out, id)
		}
	}
	t.SummaryIDs = out
	// An emptied topic keeps its stale centroid: with no members there is
	// no valid mean, and the topic is unreachable through matching anyway.
	if len(t.SummaryIDs) > 0 {
		s.recomputeCentroidLocked(t)
	}
}

func (s *Store) recomputeCentroidLocked(t *Topic) {
	vecs := make([][]float64, 0, len(t.SummaryIDs))
	for _, id := range t.SummaryIDs {
		if n, ok := s.notes[id]; ok && len(n.Embedding) > 0 {
			vecs = append(vecs, n.Embedding)
		}
	}
	if len(vecs) == 0 {
		return
	}
	t.Embedding = vecmath.Average(vecs)
}

func (s *Store) findTopicByNameLocked(norm, excludeID string) *Topic {
	for _, id := range s.topicOrder {
		if id == excludeID {
			continue
		}
		if lexical.Normalize(s.topics[id].Name) == norm {
			return s.topics[id]
		}
	}
	return nil
}

func addAliasLocked(t *Topic, candidate string) bool {
	candNorm := lexical.Normalize(candidate)
	if candNorm == "" || candNorm == lexical.Normalize(t.Name) {
		return false
	}
	for _, a := range t.Aliases {
		if lexical.Normalize(a) == candNorm {
			return false
		}
	}
	t.Aliases = append(t.Aliases, candidate)
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
