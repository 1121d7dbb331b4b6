package signal

import (
	"strings"
	"unicode"
)

var apostrophes = strings.NewReplacer(
	"‘", "'", "’", "'", "ʼ", "'", "`", "'",
	"“", "\"", "”", "\"",
)

// Normalize lower-cases text, folds typographic quotes to ASCII and
// collapses runs of whitespace to a single space.
func Normalize(text string) string {
	s := apostrophes.Replace(strings.ToLower(text))
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize splits normalized text into word tokens. Apostrophes inside
// words are kept so contractions stay whole ("can't").
func Tokenize(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

// ContainsAny reports which of the phrases occur in normalized text.
// Single-word phrases must match a whole token.
func ContainsAny(normalized string, tokens []string, phrases []string) []string {
	var hits []string
	for _, p := range phrases {
		if strings.Contains(p, " ") {
			if strings.Contains(normalized, p) {
				hits = append(hits, p)
			}
			continue
		}
		for _, tok := range tokens {
			if tok == p {
				hits = append(hits, p)
				break
			}
		}
	}
	return hits
}
