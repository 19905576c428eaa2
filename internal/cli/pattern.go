// Package cli provides shared utilities for CLI commands and the MCP server.
package cli

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ErrNoMatch is returned when a pattern matches no entry name.
var ErrNoMatch = errors.New("no entries match pattern")

// IsGlob reports whether pattern contains glob characters (*?[).
func IsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// ValidatePattern checks pattern syntax.
func ValidatePattern(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	return nil
}

// Match reports whether name matches pattern. Entry names use '/' as the
// only separator on every platform.
func Match(pattern, name string) (bool, error) {
	return path.Match(pattern, name)
}

// MatchAny reports whether name matches one of patterns. Invalid patterns
// never match.
func MatchAny(patterns []string, name string) (string, bool) {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// FilterNames returns the names matching pattern, in input order. An empty
// pattern matches everything and an empty result is not an error.
func FilterNames(pattern string, names []string) ([]string, error) {
	if pattern == "" {
		return append([]string(nil), names...), nil
	}
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		if ok, _ := path.Match(pattern, name); ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// ExpandPattern expands a glob pattern against available names.
// Without glob characters it is an exact lookup.
func ExpandPattern(pattern string, names []string) ([]string, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	if !IsGlob(pattern) {
		for _, name := range names {
			if name == pattern {
				return []string{pattern}, nil
			}
		}
		return nil, fmt.Errorf("entry '%s' not found", pattern)
	}

	matches, _ := FilterNames(pattern, names)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w '%s'", ErrNoMatch, pattern)
	}
	return matches, nil
}

// ExpandPatterns expands multiple patterns and returns unique names in
// order of first match.
func ExpandPatterns(patterns []string, names []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, names)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			if !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}
	return result, nil
}

// SortNames returns a sorted copy of names.
func SortNames(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return sorted
}
