package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/gistlabs/gist/internal/lexical"
	"github.com/gistlabs/gist/internal/topics"
	"github.com/gistlabs/gist/internal/vecmath"
)

// categoryHints maps common topic wording to a broad super category, used
// when no member note carries a subjects hint.
var categoryHints = []struct {
	keyword  string
	category string
}{
	{"politics", "politics"}, {"war", "politics"}, {"conflict", "politics"},
	{"election", "politics"}, {"government", "politics"}, {"policy", "politics"},
	{"technology", "technology"}, {"software", "technology"}, {"ai", "technology"},
	{"programming", "technology"}, {"computer", "technology"}, {"digital", "technology"},
	{"science", "science"}, {"research", "science"}, {"study", "science"},
	{"biology", "science"}, {"physics", "science"}, {"chemistry", "science"},
	{"business", "business"}, {"finance", "business"}, {"economy", "business"},
	{"market", "business"}, {"investment", "business"}, {"startup", "business"},
	{"health", "health"}, {"medicine", "health"}, {"medical", "health"},
	{"fitness", "health"}, {"wellness", "health"},
	{"education", "education"}, {"learning", "education"}, {"teaching", "education"},
	{"school", "education"}, {"university", "education"},
}

// CategorizeTopic files the topic under a super category, mirroring note
// assignment one level up: pick a candidate category name, try lexical
// resolution, then fused similarity against existing categories, then
// create a fresh category.
func (e *Engine) CategorizeTopic(ctx context.Context, topicID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.store.GetTopic(topicID)
	if t == nil {
		return "", fmt.Errorf("categorizing topic %q: not found", topicID)
	}

	candidate := e.candidateCategoryName(t)
	norm := lexical.Normalize(candidate)
	proto := vecmath.Prototype(t.Embedding, t.LabelEmbedding)

	labelEmb, err := e.embedder.Embed(ctx, lexical.LabelText(norm))
	if err != nil {
		return "", fmt.Errorf("categorizing topic %q: %w", topicID, err)
	}

	entries := e.store.CategoryEntries()
	catID := lexical.ResolveName(candidate, entries)
	if catID == "" {
		catID = e.aliasContainmentMatch(t.Name, entries)
	}
	matchedExisting := catID != ""

	if catID == "" {
		bestID, bestScore := "", 0.0
		for _, c := range e.store.Categories() {
			catProto := vecmath.Prototype(c.Embedding, c.LabelEmbedding)
			labelProto := c.LabelEmbedding
			if len(labelProto) == 0 {
				labelProto = catProto
			}
			score := e.cfg.NoteWeight*vecmath.Cosine(proto, catProto) +
				e.cfg.LabelWeight*vecmath.Cosine(labelEmb, labelProto)
			if score > bestScore {
				bestScore, bestID = score, c.ID
			}
		}
		if bestID != "" && bestScore >= e.cfg.CategoryThreshold {
			catID = bestID
			matchedExisting = true
		}
	}

	if catID == "" {
		c, err := e.store.CreateSuperCategory(ctx, candidate, proto, labelEmb)
		if err != nil {
			return "", err
		}
		catID = c.ID
	} else if matchedExisting {
		if err := e.store.AddCategoryAlias(ctx, catID, candidate); err != nil {
			return "", err
		}
	}

	if err := e.store.AttachTopicToCategory(ctx, catID, topicID); err != nil {
		return "", err
	}
	return catID, nil
}

// candidateCategoryName prefers a subjects hint from the topic's member
// notes (the summarizer already suggested broader categories per note) and
// falls back to the keyword table, then to "general".
func (e *Engine) candidateCategoryName(t *topics.Topic) string {
	for _, noteID := range t.SummaryIDs {
		n := e.store.GetNote(noteID)
		if n == nil {
			continue
		}
		for _, s := range n.Subjects {
			if strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	name := strings.ToLower(t.Name)
	for _, h := range categoryHints {
		if strings.Contains(name, h.keyword) {
			return h.category
		}
	}
	return "general"
}

// aliasContainmentMatch treats substring containment between the topic name
// and a category alias as a lexical hit; category aliases are broad labels
// where containment is meaningful ("middle east politics" under "politics").
func (e *Engine) aliasContainmentMatch(topicName string, entries []lexical.Entry) string {
	topicNorm := lexical.Normalize(topicName)
	if topicNorm == "" {
		return ""
	}
	for _, entry := range entries {
		for _, alias := range entry.Aliases {
			aliasNorm := lexical.Normalize(alias)
			if aliasNorm == "" {
				continue
			}
			if strings.Contains(topicNorm, aliasNorm) || strings.Contains(aliasNorm, topicNorm) {
				return entry.ID
			}
		}
	}
	return ""
}
