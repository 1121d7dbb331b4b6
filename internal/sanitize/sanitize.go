// Package sanitize normalizes identifiers used as storage names and
// validates identifiers received from clients.
//
// Vector collection names must match ^[a-z0-9_]{1,64}$.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxIdentifierLength is the longest identifier a collection name may carry.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of "_" plus an 8-char hash.
	HashSuffixLength = 9

	// DefaultIdentifier replaces inputs that sanitize to nothing.
	DefaultIdentifier = "default"
)

// Identifier lowercases s, maps every rune outside [a-z0-9_] to '_',
// collapses runs of '_' and trims them from both ends. Results longer than
// MaxIdentifierLength are truncated and suffixed with a hash of the full
// string so distinct inputs stay distinct.
//
//	"Session Summaries" -> "session_summaries"
//	"external-document" -> "external_document"
//	"" or "!!!"         -> "default"
func Identifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	underscore := false
	for _, r := range strings.ToLower(s) {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			if !underscore {
				b.WriteByte('_')
			}
			underscore = true
			continue
		}
		b.WriteRune(r)
		underscore = false
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return DefaultIdentifier
	}
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out)
	}
	return out
}

func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]
	return strings.TrimRight(s[:MaxIdentifierLength-HashSuffixLength], "_") + suffix
}

// CollectionName joins sanitized parts with '_' into a valid collection name.
//
//	CollectionName("dialogd", "symbolic") -> "dialogd_symbolic"
func CollectionName(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		clean = append(clean, Identifier(p))
	}
	if len(clean) == 0 {
		return DefaultIdentifier
	}
	name := strings.Join(clean, "_")
	if len(name) > MaxIdentifierLength {
		name = truncateWithHash(name)
	}
	return name
}
