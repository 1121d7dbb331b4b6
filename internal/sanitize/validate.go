package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidSessionID indicates a session id is malformed.
	ErrInvalidSessionID = errors.New("invalid session ID format")

	// ErrInvalidRegion indicates a region code is malformed.
	ErrInvalidRegion = errors.New("invalid region code")
)

// Session ids are opaque to clients but restricted to URL-safe characters.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// Regions are ISO 3166-1 alpha-2 codes, optionally followed by a subdivision.
var regionPattern = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3})?$`)

// ValidatePath cleans path and returns its absolute form. It rejects
// traversal, and when allowedRoot is set the result must lie within it.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, path)
		}
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if allowedRoot == "" {
		return abs, nil
	}

	root, err := filepath.Abs(filepath.Clean(allowedRoot))
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %q", ErrPathTraversal, path, allowedRoot)
	}
	return abs, nil
}

// ValidateSessionID checks a client-supplied session id.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// NormalizeRegion upper-cases and validates a region code. An empty region
// is returned unchanged.
func NormalizeRegion(region string) (string, error) {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return "", nil
	}
	if !regionPattern.MatchString(region) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRegion, region)
	}
	return region, nil
}
