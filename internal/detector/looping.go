package detector

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// DefaultLoopThreshold is the engage score used when no element override applies.
const DefaultLoopThreshold = 0.6

// DefaultLoopThresholds tunes the engage score by tone element: water invites
// reflection sooner, fire later.
var DefaultLoopThresholds = map[element.Element]float64{
	element.Water: 0.5,
	element.Fire:  0.7,
}

var (
	hedgePhrases = family("ambiguity",
		`\bmaybe\b`,
		`\b(sort|kind) of\b`,
		`\bi (don't|do not) know\b`,
		`\bnot sure\b`,
		`\bi guess\b`,
		`\bsomehow\b`,
		`\bconfus(ed|ing)\b`,
		`\bcomplicated\b`,
		`\bmixed (up|feelings)\b`,
		`\b(can't|cannot) (explain|describe|put (it )?into words)\b`,
	)
	correctionPhrases = family("self_correction",
		`\bno,? (it's|its|it is) more like\b`,
		`\bwhat i mean is\b`,
		`\bi mean\b`,
		`\bactually\b`,
		`\bmore like\b`,
		`\bor rather\b`,
		`\bthat's not (what i|quite|it)\b`,
		`\blet me (rephrase|try again)\b`,
	)
	depthPhrases = family("depth_request",
		`\bhelp me (understand|figure out|make sense)\b`,
		`\bgo deeper\b`,
		`\bdig (into|deeper)\b`,
		`\bexplore\b`,
		`\bwhy do i\b`,
		`\bwhat does (it|this|that) mean\b`,
		`\bi want to understand\b`,
	)
)

// LoopingTrigger scores whether the utterance warrants a clarification loop.
type LoopingTrigger struct {
	defaultThreshold float64
	thresholds       map[element.Element]float64
}

// NewLoopingTrigger creates the analyzer. Non-positive defaultThreshold uses
// DefaultLoopThreshold; a nil map uses DefaultLoopThresholds.
func NewLoopingTrigger(defaultThreshold float64, thresholds map[element.Element]float64) *LoopingTrigger {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultLoopThreshold
	}
	if thresholds == nil {
		thresholds = DefaultLoopThresholds
	}
	return &LoopingTrigger{defaultThreshold: defaultThreshold, thresholds: thresholds}
}

func (l *LoopingTrigger) ID() ID     { return LoopingTriggerID }
func (l *LoopingTrigger) Tier() Tier { return P2 }

// Threshold returns the engage threshold for a tone element.
func (l *LoopingTrigger) Threshold(e element.Element) float64 {
	if t, ok := l.thresholds[e]; ok && t > 0 {
		return t
	}
	return l.defaultThreshold
}

// Detect implements Detector. It stays silent while a loop is already
// running; the loop machine owns those turns.
func (l *LoopingTrigger) Detect(ctx context.Context, in Input) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.State.LoopActive {
		return nil, nil
	}
	text := in.Extraction.Normalized
	if text == "" {
		return nil, nil
	}

	hint := LoopHint{
		Intensity:      clamp01(in.Extraction.Intensity),
		Ambiguity:      clamp01(float64(len(hedgePhrases.matches(text))) / 3),
		SelfCorrection: clamp01(float64(len(correctionPhrases.matches(text))) / 2),
		DepthRequest:   clamp01(float64(len(depthPhrases.matches(text)))),
	}
	hint.Score = 0.35*hint.Intensity + 0.25*hint.Ambiguity + 0.25*hint.SelfCorrection + 0.15*hint.DepthRequest

	tone, _ := in.Extraction.Elements.Dominant()
	if tone == element.Unknown {
		tone = in.State.DominantElement
	}
	hint.Threshold = l.Threshold(tone)
	if hint.DepthRequest > 0 && hint.Score < hint.Threshold {
		hint.Score = hint.Threshold
	}
	if hint.Score < hint.Threshold {
		return nil, nil
	}
	return &Claim{
		Source:            LoopingTriggerID,
		Tier:              P2,
		Confidence:        clamp01(hint.Score),
		Hint:              hint,
		Rationale:         fmt.Sprintf("loop score %.2f >= %.2f (%s)", hint.Score, hint.Threshold, tone),
		ExpiresAfterTurns: 1,
	}, nil
}

// parseThresholds converts element-name keyed thresholds from configuration.
// Unknown names are ignored; a nil map keeps the defaults.
func parseThresholds(byName map[string]float64) map[element.Element]float64 {
	if byName == nil {
		return nil
	}
	out := make(map[element.Element]float64, len(byName))
	for name, v := range byName {
		if e, err := element.Parse(name); err == nil && e.Valid() {
			out[e] = v
		}
	}
	return out
}
