// Package lexical implements deterministic topic-name canonicalization and
// the string-level matching tiers that run before any embedding comparison.
//
// Two strings denote the same topic iff their normalized forms are
// byte-equal. On top of that, token-set equality and Jaccard overlap catch
// reorderings ("climate change" vs "change climate") and tiny wording
// differences that embeddings are unreliable on for short labels.
package lexical

import "strings"

// JaccardAcceptThreshold is the minimum token-overlap score at which the
// fuzzy tier of ResolveName accepts a match.
const JaccardAcceptThreshold = 0.6

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "and": {},
	"to": {}, "for": {}, "with": {}, "at": {}, "by": {}, "into": {},
	"from": {}, "as": {},
}

var separatorReplacer = strings.NewReplacer(
	"–", " ", // en dash
	"—", " ", // em dash
	"−", " ", // minus sign
	"-", " ",
	"/", " ",
	"_", " ",
	"&", " and ",
)

// Normalize canonicalizes a tag name: lowercase, separators unified to
// spaces, "&" expanded, everything outside [a-z0-9 ] stripped, whitespace
// collapsed. Total and idempotent.
func Normalize(s string) string {
	t := separatorReplacer.Replace(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Stem strips common English suffixes. Deliberately crude: it only has to
// make "summaries"/"summary" and "stopped"/"stop" collide, not be Porter.
func Stem(word string) string {
	if len(word) < 3 {
		return word
	}
	word = strings.ToLower(word)

	switch {
	case strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "es"), strings.HasSuffix(word, "ed"), strings.HasSuffix(word, "ing"):
		word = word[:len(word)-2]
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "ly"),
		strings.HasSuffix(word, "ment"), strings.HasSuffix(word, "ness"):
		word = word[:len(word)-1]
	}

	// stopped → stopp → stop
	if n := len(word); n >= 2 && word[n-1] == word[n-2] && isConsonant(word[n-1]) {
		word = word[:n-1]
	}
	return word
}

func isConsonant(c byte) bool {
	if c < 'a' || c > 'z' {
		return false
	}
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	}
	return true
}

// Tokens normalizes s, splits it on spaces, drops stopwords, and stems the
// remainder. The result is returned as a set.
func Tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Split(Normalize(s), " ") {
		if w == "" {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[Stem(w)] = struct{}{}
	}
	return out
}

// SameTokenSet reports whether a and b reduce to the same token set,
// ignoring order.
func SameTokenSet(a, b string) bool {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) != len(tb) {
		return false
	}
	for tok := range ta {
		if _, ok := tb[tok]; !ok {
			return false
		}
	}
	return true
}

// Jaccard returns |A∩B| / |A∪B| over the token sets of a and b.
// Two empty sets score 1.0.
func Jaccard(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Entry is a named, aliased thing that ResolveName can match against.
type Entry struct {
	ID      string
	Name    string
	Aliases []string
}

// ResolveName runs the three lexical tiers against entries (in the given
// order, first match wins) and returns the matching entry's ID, or "" when
// no tier produces a confident match and the caller should fall back to
// embedding similarity.
func ResolveName(candidate string, entries []Entry) string {
	norm := Normalize(candidate)

	// Tier 1: exact normalized name or alias.
	for _, e := range entries {
		if Normalize(e.Name) == norm {
			return e.ID
		}
		for _, alias := range e.Aliases {
			if Normalize(alias) == norm {
				return e.ID
			}
		}
	}

	// Tier 2: exact token set, order-insensitive.
	for _, e := range entries {
		if SameTokenSet(e.Name, candidate) {
			return e.ID
		}
	}

	// Tier 3: best Jaccard overlap, accepted above the fixed threshold.
	bestID, best := "", 0.0
	for _, e := range entries {
		if s := Jaccard(e.Name, candidate); s > best {
			best = s
			bestID = e.ID
		}
	}
	if best >= JaccardAcceptThreshold {
		return bestID
	}
	return ""
}

// LabelText wraps a normalized topic name in a short templated definition.
// Bare labels of one or two words embed unstably; the fixed template anchors
// them to a consistent region of embedding space.
func LabelText(name string) string {
	return "topic name: " + name + "\nmeaning: a subject category used to group notes about " + name
}

// TrimTitle flattens newlines and truncates to at most n runes, with an
// ellipsis when cut. Used for sidebar-style listings.
func TrimTitle(text string, n int) string {
	t := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	runes := []rune(t)
	if len(runes) <= n {
		return t
	}
	return string(runes[:n-1]) + "…"
}
