package search

import "strings"

// stopWords are filler words excluded from keyword matching.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "up": true, "about": true,
	"into": true, "over": true, "after": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"not": true, "no": true, "it": true, "its": true, "as": true, "if": true,
}

// extractKeywords lowercases text, strips punctuation, and drops stop words
// and short tokens.
func extractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] {
			continue
		}
		keywords = append(keywords, f)
	}
	return keywords
}

// keywordScore counts how many distinct query keywords appear in text.
func keywordScore(text string, queryKeywords []string) int {
	lower := strings.ToLower(text)
	score := 0
	seen := make(map[string]bool)
	for _, kw := range queryKeywords {
		if seen[kw] {
			continue
		}
		seen[kw] = true
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}
