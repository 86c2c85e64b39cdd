package normalize

import (
	"sort"
	"strings"
)

// NormalizeCategory resolves free-form category input to a canonical root
// taxonomy id. Resolution order: exact id, synonym, regional term, model
// term table. Subcategory matches fold up to their root parent.
func NormalizeCategory(t *Taxonomy, input string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", false
	}

	if id, ok := resolveCategoryTerm(t, s); ok {
		return t.Root(id), true
	}
	// Fold plural and singular variants before giving up
	for _, v := range pluralVariants(s) {
		if id, ok := resolveCategoryTerm(t, v); ok {
			return t.Root(id), true
		}
	}
	return "", false
}

// NormalizeCategoryExact is NormalizeCategory without the fold to root; it
// returns the matched node itself. Used where subcategory precision matters.
func NormalizeCategoryExact(t *Taxonomy, input string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", false
	}
	if id, ok := resolveCategoryTerm(t, s); ok {
		return id, true
	}
	for _, v := range pluralVariants(s) {
		if id, ok := resolveCategoryTerm(t, v); ok {
			return id, true
		}
	}
	return "", false
}

func resolveCategoryTerm(t *Taxonomy, s string) (string, bool) {
	if _, ok := t.categories[s]; ok {
		return s, true
	}
	if id, ok := t.synonymIndex[s]; ok {
		return id, true
	}
	if id, ok := t.regionalIndex[s]; ok {
		return id, true
	}
	if id, ok := t.modelTerms[s]; ok {
		return id, true
	}
	return "", false
}

// pluralVariants returns candidate singular/plural spellings of a term
// using deterministic English rules.
func pluralVariants(s string) []string {
	var out []string

	// plural -> singular
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		out = append(out, s[:len(s)-3]+"y")
	case strings.HasSuffix(s, "ves") && len(s) > 3:
		out = append(out, s[:len(s)-3]+"f", s[:len(s)-3]+"fe")
	case strings.HasSuffix(s, "es") && len(s) > 2:
		stem := s[:len(s)-2]
		if strings.HasSuffix(stem, "s") || strings.HasSuffix(stem, "x") ||
			strings.HasSuffix(stem, "z") || strings.HasSuffix(stem, "ch") ||
			strings.HasSuffix(stem, "sh") {
			out = append(out, stem)
		} else {
			out = append(out, s[:len(s)-1])
		}
	case strings.HasSuffix(s, "s") && len(s) > 1:
		out = append(out, s[:len(s)-1])
	}

	// singular -> plural
	switch {
	case strings.HasSuffix(s, "y") && len(s) > 1 && !isVowel(s[len(s)-2]):
		out = append(out, s[:len(s)-1]+"ies")
	case strings.HasSuffix(s, "s") || strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") || strings.HasSuffix(s, "ch") ||
		strings.HasSuffix(s, "sh"):
		out = append(out, s+"es")
	default:
		out = append(out, s+"s")
	}

	return out
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// multiWordPhrases maps curated multi-word query patterns to category ids.
// Checked before tokenization so that phrases like "work out" survive the
// short-word filter.
var multiWordPhrases = map[string]string{
	"work out":       "fitness",
	"working out":    "fitness",
	"coffee shop":    "cafe",
	"coffee shops":   "cafe",
	"tea house":      "cafe",
	"fast food":      "fast_food",
	"street food":    "street_food",
	"fine dining":    "fine_dining",
	"yoga studio":    "yoga",
	"yoga studios":   "yoga",
	"beauty parlour": "beauty",
	"medical store":  "health",
	"car wash":       "automotive",
	"car repair":     "automotive",
	"petrol pump":    "automotive",
	"kirana store":   "grocery",
	"movie theatre":  "entertainment",
	"movie theater":  "entertainment",
}

// ExtractCategories finds every taxonomy category referenced by a query:
// curated multi-word phrases first, then per-word exact/synonym/regional
// matches with plural folding. Order of first occurrence is preserved.
func ExtractCategories(t *Taxonomy, query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var ids []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	// Phrase matches come first in a fixed order so the derived id list,
	// and with it the heuristic primary category, is stable across runs.
	phrases := make([]string, 0, len(multiWordPhrases))
	for phrase := range multiWordPhrases {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)
	for _, phrase := range phrases {
		if strings.Contains(q, phrase) {
			add(multiWordPhrases[phrase])
		}
	}

	for _, word := range strings.Fields(q) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := NormalizeCategoryExact(t, word); ok {
			add(id)
		}
	}

	// Two-word windows catch synonyms like "coffee shop" that are not in
	// the curated phrase table
	words := strings.Fields(q)
	for i := 0; i+1 < len(words); i++ {
		pair := strings.Trim(words[i], ".,!?;:\"'") + " " + strings.Trim(words[i+1], ".,!?;:\"'")
		if id, ok := NormalizeCategoryExact(t, pair); ok {
			add(id)
		}
	}

	return ids
}

// MatchesPhrase reports whether the word participates in a recognized
// multi-word phrase present in the query.
func MatchesPhrase(query, word string) bool {
	q := strings.ToLower(query)
	w := strings.ToLower(word)
	for phrase := range multiWordPhrases {
		if strings.Contains(q, phrase) && strings.Contains(phrase, w) {
			return true
		}
	}
	return false
}
