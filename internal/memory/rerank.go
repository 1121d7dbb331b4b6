package memory

import (
	"sort"

	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// Blend weights for rerank.
const (
	similarityWeight = 0.5
	overlapWeight    = 0.5
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "can": true, "this": true, "that": true, "i": true, "you": true,
	"it": true, "we": true, "they": true, "my": true, "me": true, "so": true,
}

// terms returns the hint-relevant tokens of text.
func terms(text string) []string {
	tokens := signal.Tokenize(signal.Normalize(text))
	out := tokens[:0]
	for _, t := range tokens {
		if len(t) > 2 && !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

// termOverlap is the share of distinct query terms present in doc.
func termOverlap(query []string, doc []string) float64 {
	if len(query) == 0 {
		return 0
	}
	have := make(map[string]bool, len(doc))
	for _, t := range doc {
		have[t] = true
	}
	seen := make(map[string]bool, len(query))
	var hits, distinct int
	for _, t := range query {
		if seen[t] {
			continue
		}
		seen[t] = true
		distinct++
		if have[t] {
			hits++
		}
	}
	return float64(hits) / float64(distinct)
}

// Rerank orders entries by a blend of their similarity score and their
// term overlap with hint, rewriting Score to the blended value. A hint
// with no usable terms leaves the similarity order intact.
func Rerank(hint string, entries []Entry) []Entry {
	query := terms(hint)
	if len(query) == 0 {
		return entries
	}
	for i := range entries {
		overlap := termOverlap(query, terms(entries[i].Content))
		entries[i].Score = similarityWeight*entries[i].Score + overlapWeight*overlap
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
