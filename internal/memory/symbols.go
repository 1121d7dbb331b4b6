package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// SymbolEntries returns the elemental symbol library as symbolic tier
// entries, one per element, with stable IDs.
func SymbolEntries() []Entry {
	entries := make([]Entry, 0, len(element.All))
	for _, e := range element.All {
		symbol := element.Symbols[e]
		meanings := element.SymbolMeanings[e]
		entries = append(entries, Entry{
			ID:        "symbol-" + symbol,
			Content:   fmt.Sprintf("%s: %s, %s", symbol, strings.Join(meanings, ", "), e),
			CreatedAt: time.Unix(0, 0).UTC(),
			Metadata: map[string]string{
				"symbol":    symbol,
				"element":   e.String(),
				"archetype": element.Archetype(e),
			},
		})
	}
	return entries
}
