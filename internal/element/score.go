package element

// Scores holds the keyword density for each element.
type Scores map[Element]float64

// Score computes per-element keyword density over a lower-cased token list.
// Densities are hits divided by token count, so they fall in [0,1].
func Score(tokens []string) Scores {
	scores := make(Scores, len(All))
	if len(tokens) == 0 {
		return scores
	}
	for _, tok := range tokens {
		if e, ok := Lookup(tok); ok {
			scores[e]++
		}
	}
	for e, hits := range scores {
		scores[e] = hits / float64(len(tokens))
	}
	return scores
}

// Dominant returns the highest-scoring element. Ties resolve in All order.
// Unknown is returned when no element scored.
func (s Scores) Dominant() (Element, float64) {
	best, bestScore := Unknown, 0.0
	for _, e := range All {
		if v := s[e]; v > bestScore {
			best, bestScore = e, v
		}
	}
	return best, bestScore
}

// Clarity reports how concentrated the scores are on the dominant element:
// 1 when a single element scored, approaching 1/5 when all scored evenly.
// Zero scores yield 0.
func (s Scores) Clarity() float64 {
	var total float64
	for _, e := range All {
		total += s[e]
	}
	if total == 0 {
		return 0
	}
	_, top := s.Dominant()
	return top / total
}
