package sanitize

import (
	"regexp"
	"strings"
	"testing"
)

var collectionPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already clean", input: "symbolic", expected: "symbolic"},
		{name: "uppercase", input: "Session", expected: "session"},
		{name: "hyphen", input: "external-document", expected: "external_document"},
		{name: "spaces", input: "Session Summaries", expected: "session_summaries"},
		{name: "collapsed runs", input: "foo___bar", expected: "foo_bar"},
		{name: "mixed runs", input: "foo-_-bar", expected: "foo_bar"},
		{name: "trimmed", input: "_foo_", expected: "foo"},
		{name: "unicode", input: "café", expected: "caf"},
		{name: "empty", input: "", expected: "default"},
		{name: "only invalid", input: "!!!", expected: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Identifier(tt.input); got != tt.expected {
				t.Errorf("Identifier(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIdentifier_LengthLimit(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := Identifier(long)
	if len(got) != MaxIdentifierLength {
		t.Fatalf("len = %d, want %d", len(got), MaxIdentifierLength)
	}
	if !collectionPattern.MatchString(got) {
		t.Errorf("%q is not a valid collection name", got)
	}
	if Identifier(long+"b") == got {
		t.Error("distinct long inputs collided")
	}
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		parts    []string
		expected string
	}{
		{[]string{"dialogd", "symbolic"}, "dialogd_symbolic"},
		{[]string{"dialogd", "external_document"}, "dialogd_external_document"},
		{[]string{"Dialogd", "", "Profile Facts"}, "dialogd_profile_facts"},
		{nil, "default"},
	}
	for _, tt := range tests {
		if got := CollectionName(tt.parts...); got != tt.expected {
			t.Errorf("CollectionName(%q) = %q, want %q", tt.parts, got, tt.expected)
		}
	}

	long := CollectionName(strings.Repeat("x", 40), strings.Repeat("y", 40))
	if !collectionPattern.MatchString(long) {
		t.Errorf("%q is not a valid collection name", long)
	}
}
