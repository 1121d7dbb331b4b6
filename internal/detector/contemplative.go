package detector

import (
	"context"
	"strings"
)

// contemplativeThreshold is the cue weight needed to claim space.
const contemplativeThreshold = 0.5

var spacePhrases = family("space",
	`\bi need (a|some) (moment|minute|time|space)\b`,
	`\bgive me a (moment|minute|second)\b`,
	`\blet me (sit with|think about|think|breathe)\b`,
	`\bjust (listen|be here|be with me)\b`,
	`\b(need|want) (silence|quiet)\b`,
	`\bno (advice|solutions)\b`,
)

// ContemplativeSpace detects cues that silence or slower pacing is the
// right response rather than more words.
type ContemplativeSpace struct{}

// NewContemplativeSpace creates the detector.
func NewContemplativeSpace() *ContemplativeSpace { return &ContemplativeSpace{} }

func (c *ContemplativeSpace) ID() ID     { return ContemplativeID }
func (c *ContemplativeSpace) Tier() Tier { return P3 }

// Detect implements Detector.
func (c *ContemplativeSpace) Detect(ctx context.Context, in Input) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := in.Extraction
	var (
		cues  []string
		score float64
	)
	if hits := spacePhrases.matches(ext.Normalized); len(hits) > 0 {
		cues = append(cues, hits...)
		score += 0.6
	}
	if n := strings.Count(ext.Text, "...") + strings.Count(ext.Text, "…"); n >= 2 {
		cues = append(cues, "trailing ellipses")
		score += 0.3
	}
	if len(ext.Tokens) > 0 && len(ext.Tokens) <= 3 && ext.Intensity < 0.2 {
		cues = append(cues, "short low-energy reply")
		score += 0.3
	}
	if ext.Audio != nil && ext.Audio.PauseRatio >= 0.5 {
		cues = append(cues, "long pauses")
		score += 0.4
	}
	if score < contemplativeThreshold {
		return nil, nil
	}
	return &Claim{
		Source:     ContemplativeID,
		Tier:       P3,
		Confidence: clamp01(score),
		Hint:       ContemplativeHint{Cues: cues},
		Rationale:  "space cues: " + strings.Join(cues, ", "),
	}, nil
}
