package detector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultNegationWindow is the number of characters inspected on either side
// of a negatable crisis phrase.
const DefaultNegationWindow = 40

// distressOverride is the sentiment at or below which a negated phrase still fires.
const distressOverride = -0.5

type crisisPattern struct {
	phrase    string
	category  CrisisCategory
	negatable bool
	re        *regexp.Regexp
}

func pattern(phrase string, category CrisisCategory, negatable bool, expr string) crisisPattern {
	return crisisPattern{
		phrase:    phrase,
		category:  category,
		negatable: negatable,
		re:        regexp.MustCompile(expr),
	}
}

var crisisPatterns = []crisisPattern{
	pattern("kill myself", CategorySuicidal, false, `\bkill(ing)? myself\b`),
	pattern("suicide", CategorySuicidal, false, `\bsuicid(e|al)\b`),
	pattern("want to die", CategorySuicidal, false, `\bwant(ing)? to die\b`),
	pattern("end my life", CategorySuicidal, false, `\bend(ing)? my (own )?life\b`),
	pattern("take my life", CategorySuicidal, false, `\btak(e|ing) my (own )?life\b`),
	pattern("better off dead", CategorySuicidal, false, `\bbetter off (dead|without me)\b`),
	pattern("no reason to live", CategorySuicidal, false, `\b(no|nothing) (reason|point) (to|in) (live|living|being alive)\b`),
	pattern("not worth living", CategorySuicidal, false, `\b(life|it) (is|isn't|is not) (not )?worth living\b|\bnot worth living\b`),
	pattern("don't want to be here", CategorySuicidal, false, `\b(don't|do not) want to (be here|exist|live) any ?more\b`),
	pattern("can't go on", CategorySuicidal, true, `\b(can't|cant|cannot|can not) go on\b`),
	pattern("end it all", CategorySuicidal, true, `\bend(ing)? it all\b`),
	pattern("hurt myself", CategorySelfHarm, false, `\b(hurt|hurting|harm|harming|cut|cutting|burn|burning) myself\b`),
	pattern("self harm", CategorySelfHarm, false, `\bself[- ]?harm`),
	pattern("overdose", CategoryAcuteDanger, false, `\boverdos(e|ed|ing)\b`),
	pattern("took pills", CategoryAcuteDanger, false, `\b(took|swallowed) (all |a bunch of )?(the |my )?pills\b`),
	pattern("going to hurt me", CategoryAcuteDanger, false, `\b(he|she|they)('s|'re| is| are)? (going to|gonna) (hurt|kill) me\b`),
	pattern("not safe", CategoryAcuteDanger, true, `\bi('m| am) not safe\b`),
}

// trailingComplement matches a continuation that turns a negatable phrase
// into an ordinary activity ("can't go on talking about this").
var trailingComplement = regexp.MustCompile(
	`^\s*(talking|discussing|explaining|arguing|repeating|working|reading|listening|writing|` +
		`doing this|with (this|that|the) (topic|conversation|subject|discussion|project|meeting|game|show|call)|` +
		`about (this|that|it)\b|at work|here at|for (long|much longer) (with|in) (this|the) (meeting|call|class))`)

// leadingDisclaimer matches text immediately before a negatable phrase that
// denies it ("not that I can't go on").
var leadingDisclaimer = regexp.MustCompile(
	`(not that|not saying|never said|doesn't mean|don't mean|didn't mean|wasn't saying)( that)?( i( am|'m)?)?\s*$`)

// CatastrophicGuard detects acute crisis signals. It fires at P0.
type CatastrophicGuard struct {
	window int
}

// NewCatastrophicGuard creates the guard with a ±window negation window.
// Non-positive windows use DefaultNegationWindow.
func NewCatastrophicGuard(window int) *CatastrophicGuard {
	if window <= 0 {
		window = DefaultNegationWindow
	}
	return &CatastrophicGuard{window: window}
}

func (g *CatastrophicGuard) ID() ID     { return CatastrophicGuardID }
func (g *CatastrophicGuard) Tier() Tier { return P0 }

// Detect implements Detector.
func (g *CatastrophicGuard) Detect(ctx context.Context, in Input) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := in.Extraction.Normalized
	if text == "" {
		return nil, nil
	}

	var (
		fired      []crisisPattern
		suppressed []crisisPattern
	)
	for _, p := range crisisPatterns {
		locs := p.re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		if !p.negatable {
			fired = append(fired, p)
			continue
		}
		negatedAll := true
		for _, loc := range locs {
			if !g.negated(text, loc[0], loc[1]) {
				negatedAll = false
				break
			}
		}
		if negatedAll {
			suppressed = append(suppressed, p)
		} else {
			fired = append(fired, p)
		}
	}

	switch {
	case len(fired) > 0:
		conf := 0.9
		if len(fired) > 1 {
			conf = 1.0
		} else if !fired[0].negatable {
			conf = 0.95
		}
		return g.claim(fired, conf, "crisis phrase detected"), nil
	case len(suppressed) > 0 && in.Extraction.Sentiment <= distressOverride:
		return g.claim(suppressed, 0.6, "negated crisis phrase under strong distress"), nil
	}
	return nil, nil
}

// negated reports whether the match at [start,end) is qualified away by the
// text within the window on either side.
func (g *CatastrophicGuard) negated(text string, start, end int) bool {
	after := text[end:min(len(text), end+g.window)]
	if trailingComplement.MatchString(after) {
		return true
	}
	before := text[max(0, start-g.window):start]
	return leadingDisclaimer.MatchString(before)
}

func (g *CatastrophicGuard) claim(hits []crisisPattern, confidence float64, why string) *Claim {
	phrases := make([]string, 0, len(hits))
	category := hits[0].category
	for _, h := range hits {
		phrases = append(phrases, h.phrase)
		if categoryRank(h.category) < categoryRank(category) {
			category = h.category
		}
	}
	sort.Strings(phrases)
	return &Claim{
		Source:     CatastrophicGuardID,
		Tier:       P0,
		Confidence: confidence,
		Hint:       CrisisHint{Category: category, Phrases: phrases},
		Rationale:  fmt.Sprintf("%s: %s", why, strings.Join(phrases, ", ")),
	}
}

// categoryRank orders categories by severity for multi-hit claims.
func categoryRank(c CrisisCategory) int {
	switch c {
	case CategoryAcuteDanger:
		return 0
	case CategorySuicidal:
		return 1
	case CategorySelfHarm:
		return 2
	}
	return 3
}
