// Package element defines the fixed five-way tone taxonomy used to color
// responses. Elements never gate safety decisions.
package element

import (
	"fmt"
	"strings"
)

// Element is one register of the tone taxonomy.
type Element int

const (
	Unknown Element = iota
	Fire
	Water
	Earth
	Air
	Aether
)

// All lists the elements in their deterministic tie-break order.
var All = []Element{Fire, Water, Earth, Air, Aether}

var names = map[Element]string{
	Unknown: "unknown",
	Fire:    "fire",
	Water:   "water",
	Earth:   "earth",
	Air:     "air",
	Aether:  "aether",
}

func (e Element) String() string {
	if n, ok := names[e]; ok {
		return n
	}
	return fmt.Sprintf("element(%d)", int(e))
}

// Valid reports whether e is one of the five named elements.
func (e Element) Valid() bool {
	return e >= Fire && e <= Aether
}

// Parse converts a name into an Element. Matching is case-insensitive.
func Parse(s string) (Element, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for e, n := range names {
		if n == key {
			return e, nil
		}
	}
	return Unknown, fmt.Errorf("unknown element %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (e Element) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Element) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
