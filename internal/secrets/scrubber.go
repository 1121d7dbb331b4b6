package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding describes one redacted secret. The secret itself is never kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	StartCol    int    `json:"start_col"`
	EndCol      int    `json:"end_col"`
}

// Result is scrubbed text plus what was removed.
type Result struct {
	Text     string    `json:"text"`
	Findings []Finding `json:"findings,omitempty"`
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool { return len(r.Findings) > 0 }

// RuleIDs returns the distinct rule ids, sorted.
func (r Result) RuleIDs() []string {
	seen := make(map[string]bool, len(r.Findings))
	var ids []string
	for _, f := range r.Findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			ids = append(ids, f.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Scrubber redacts secrets from text.
type Scrubber interface {
	Scrub(text string) Result
}

// Detector is a Scrubber backed by the default gitleaks configuration.
type Detector struct {
	// gitleaks detectors accumulate state; calls are serialized.
	mu    sync.Mutex
	det   *detect.Detector
	allow []*regexp.Regexp
}

// New builds a detector. Matches of any allowList pattern are left in place.
func New(allowList []string) (*Detector, error) {
	det, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	allow := make([]*regexp.Regexp, 0, len(allowList))
	for _, p := range allowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow list pattern %q: %w", p, err)
		}
		allow = append(allow, re)
	}
	return &Detector{det: det, allow: allow}, nil
}

// Scrub implements Scrubber.
func (d *Detector) Scrub(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: text}
	}

	d.mu.Lock()
	found := d.det.DetectString(text)
	d.mu.Unlock()

	type hit struct {
		secret string
		rule   string
	}
	var hits []hit
	var findings []Finding
	for _, f := range found {
		if f.Secret == "" || d.allowed(f.Secret) {
			continue
		}
		hits = append(hits, hit{secret: f.Secret, rule: f.RuleID})
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			StartCol:    f.StartColumn,
			EndCol:      f.EndColumn,
		})
	}
	if len(hits) == 0 {
		return Result{Text: text}
	}

	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(hits, func(i, j int) bool { return len(hits[i].secret) > len(hits[j].secret) })
	out := text
	for _, h := range hits {
		out = strings.ReplaceAll(out, h.secret, marker(h.rule))
	}
	return Result{Text: out, Findings: findings}
}

func (d *Detector) allowed(secret string) bool {
	for _, re := range d.allow {
		if re.MatchString(secret) {
			return true
		}
	}
	return false
}

func marker(rule string) string {
	return "[REDACTED:" + rule + "]"
}

// Nop returns text unchanged.
type Nop struct{}

// Scrub implements Scrubber.
func (Nop) Scrub(text string) Result { return Result{Text: text} }
