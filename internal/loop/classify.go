package loop

import (
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// Response classifies a user's reply to a reflection.
type Response int

const (
	Neutral Response = iota
	Affirmative
	Confirmation
	Negative
	Correction
)

var responseNames = [...]string{"neutral", "affirmative", "confirmation", "negative", "correction"}

func (r Response) String() string {
	if r >= Neutral && r <= Correction {
		return responseNames[r]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (r Response) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Response) UnmarshalText(b []byte) error {
	for i, n := range responseNames {
		if n == string(b) {
			*r = Response(i)
			return nil
		}
	}
	return fmt.Errorf("unknown response %q", string(b))
}

var (
	// reframeRe marks a reply that replaces the paraphrase outright.
	reframeRe = regexp.MustCompile(
		`\b(more like|or rather|rather than|it's more|closer to|let me rephrase)\b|\bnot exactly,`)
	// contrastRe marks a reply that qualifies whatever it agrees with.
	contrastRe = regexp.MustCompile(`\b(but|though|however|except)\b`)
	// clarifyRe only signals a correction when nothing confirms the
	// paraphrase; "that's exactly what i meant" is a confirmation.
	clarifyRe = regexp.MustCompile(`\b(what i mean|i meant|actually)\b`)
	// leadingNoRe is a bare opening "no" that may just be an interjection.
	leadingNoRe = regexp.MustCompile(`^(no|nope|nah)\b`)
	denialRe    = regexp.MustCompile(
		`\b(not really|not quite|not exactly|that's not( it| right| what)|you're wrong|that's wrong|you missed)\b`)
	confirmationRe = regexp.MustCompile(
		`\b(exactly|precisely|that's it|that's right|spot on|you got it|nailed it|that's what i mean|yes,? that's)\b`)
	affirmativeRe = regexp.MustCompile(
		`^(yes|yeah|yep|yup|right|true|sure|kind of|i think so|mostly)\b`)
)

// Classify performs a lightweight affirmative/negative classification of a
// reply. A reframe outranks everything, so "yes, but it's more like…" is a
// correction. A confirmation qualified by a contrast is a correction too.
// A confirmation wins over a bare leading "no" and over clarifying words
// like "i meant" when nothing denies or qualifies it.
func Classify(text string) Response {
	norm := signal.Normalize(text)
	confirmed := confirmationRe.MatchString(norm)
	denied := denialRe.MatchString(norm)
	switch {
	case norm == "":
		return Neutral
	case reframeRe.MatchString(norm):
		return Correction
	case confirmed && !denied && contrastRe.MatchString(norm):
		return Correction
	case confirmed && !denied:
		return Confirmation
	case denied:
		return Negative
	case clarifyRe.MatchString(norm):
		return Correction
	case leadingNoRe.MatchString(norm):
		return Negative
	case affirmativeRe.MatchString(norm):
		return Affirmative
	}
	return Neutral
}
