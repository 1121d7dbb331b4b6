// Package crisis resolves the crisis resources attached to a safety bypass.
//
// A Router maps a region and crisis category to a list of resources. The
// FileRouter serves a YAML catalog and reloads it when the file changes.
// Resolve wraps any router so a bypass always carries at least the
// deployment's hardcoded fallback resource.
package crisis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/dialogd/internal/detector"
)

// ErrNoResources is returned when a router has nothing for a request.
var ErrNoResources = errors.New("no crisis resources")

const (
	// DefaultRegion is the catalog key consulted when a region has no entry.
	DefaultRegion = "default"
	// GeneralCategory is the catalog key consulted when a category has no entry.
	GeneralCategory = "general"
)

// Resource is one crisis contact.
type Resource struct {
	Name    string `yaml:"name" json:"name"`
	Contact string `yaml:"contact,omitempty" json:"contact,omitempty"`
	URL     string `yaml:"url,omitempty" json:"url,omitempty"`
	Note    string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Router resolves resources for a region and category.
type Router interface {
	ResourcesFor(ctx context.Context, region string, category detector.CrisisCategory) ([]Resource, error)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, region string, category detector.CrisisCategory) ([]Resource, error)

// ResourcesFor calls f.
func (f RouterFunc) ResourcesFor(ctx context.Context, region string, category detector.CrisisCategory) ([]Resource, error) {
	return f(ctx, region, category)
}

// DefaultFallback is used when no fallback text is configured.
var DefaultFallback = Resource{
	Name: "Emergency services",
	Note: "If you are in immediate danger, call your local emergency number now.",
}

// Fallback builds the hardcoded resource from configured text. Empty text
// yields DefaultFallback.
func Fallback(text string) Resource {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultFallback
	}
	return Resource{Name: DefaultFallback.Name, Note: text}
}

// Resolve asks r for resources and falls back to fallback when r is nil,
// fails, panics, outlasts ctx or returns nothing. The result is never
// empty. The returned error explains why the fallback was used and is nil
// otherwise. A router that ignores ctx is abandoned when ctx ends.
func Resolve(ctx context.Context, r Router, region string, category detector.CrisisCategory, fallback Resource) ([]Resource, error) {
	if fallback.Name == "" && fallback.Note == "" {
		fallback = DefaultFallback
	}
	if r == nil {
		return []Resource{fallback}, errors.New("no crisis router configured")
	}

	type result struct {
		res []Resource
		err error
	}
	done := make(chan result, 1)
	go func() {
		var out result
		defer func() {
			if p := recover(); p != nil {
				out = result{err: fmt.Errorf("crisis router panic: %v", p)}
			}
			done <- out
		}()
		out.res, out.err = r.ResourcesFor(ctx, region, category)
	}()

	var got result
	select {
	case got = <-done:
	case <-ctx.Done():
		got = result{err: ctx.Err()}
	}
	switch {
	case got.err != nil:
		return []Resource{fallback}, fmt.Errorf("crisis router: %w", got.err)
	case len(got.res) == 0:
		return []Resource{fallback}, ErrNoResources
	}
	return got.res, nil
}
