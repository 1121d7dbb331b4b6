package detector

import (
	"encoding/json"
	"fmt"
)

// Tier is a claim priority. Lower values win arbitration.
type Tier int

const (
	P0 Tier = iota
	P1
	P2
	P3
	// TierNone marks a turn on which no claim was made.
	TierNone
)

var tierNames = [...]string{"P0", "P1", "P2", "P3", "none"}

func (t Tier) String() string {
	if t.Valid() || t == TierNone {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Valid reports whether t is one of P0..P3.
func (t Tier) Valid() bool {
	return t >= P0 && t <= P3
}

// Outranks reports whether t has strictly higher priority than o.
func (t Tier) Outranks(o Tier) bool {
	return t < o
}

// CompareTiers orders tiers by priority: negative when a outranks b.
func CompareTiers(a, b Tier) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MarshalJSON encodes the tier by name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier name.
func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for i, n := range tierNames {
		if n == s {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", s)
}
