// Package matcher provides pattern matching for block identifiers. Patterns
// are prefix, substring, glob or regex, always compared case-insensitively.
package matcher

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// PatternType represents the kind of pattern matching to use.
type PatternType int

const (
	// Contains matches when the pattern occurs anywhere in the input.
	Contains PatternType = iota
	// Prefix matches when the input starts with the pattern.
	Prefix
	// Glob uses shell-style glob patterns (*, ?, []).
	Glob
	// Regex uses regular expressions.
	Regex
	// Auto attempts to detect the pattern type.
	Auto
)

// Matcher is the interface for pattern matching operations.
type Matcher interface {
	// Match checks if the input matches the pattern
	Match(input string) bool
	// Pattern returns the original pattern string.
	Pattern() string
	// Type returns the pattern type being used.
	Type() PatternType
}

type matcher struct {
	pattern     string
	patternType PatternType
	normalized  string
	compiled    *regexp.Regexp
}

// New creates a new Matcher with the specified pattern and type.
func New(patternType PatternType, pattern string) (Matcher, error) {
	m := &matcher{
		pattern:     pattern,
		patternType: patternType,
	}

	if patternType == Auto {
		m.patternType = detectPatternType(pattern)
	}

	if err := m.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}

	return m, nil
}

// MustNew creates a new Matcher and panics if there's an error.
func MustNew(patternType PatternType, pattern string) Matcher {
	m, err := New(patternType, pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *matcher) compile() error {
	m.normalized = strings.ToUpper(strings.TrimSpace(m.pattern))

	switch m.patternType {
	case Contains, Prefix:
		if m.normalized == "" {
			return fmt.Errorf("empty pattern")
		}
	case Glob:
		if _, err := filepath.Match(m.normalized, ""); err != nil {
			return fmt.Errorf("invalid glob pattern: %w", err)
		}
	case Regex:
		pattern := strings.TrimSpace(m.pattern)
		if !strings.HasPrefix(pattern, "(?i)") {
			pattern = "(?i)" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		m.compiled = compiled
	default:
		return fmt.Errorf("unsupported pattern type: %v", m.patternType)
	}
	return nil
}

// Match checks if the input matches the pattern.
func (m *matcher) Match(input string) bool {
	in := strings.ToUpper(strings.TrimSpace(input))

	switch m.patternType {
	case Contains:
		return strings.Contains(in, m.normalized)
	case Prefix:
		return strings.HasPrefix(in, m.normalized)
	case Glob:
		matched, _ := filepath.Match(m.normalized, in)
		return matched
	case Regex:
		return m.compiled.MatchString(in)
	default:
		return false
	}
}

// Pattern returns the original pattern string.
func (m *matcher) Pattern() string {
	return m.pattern
}

// Type returns the pattern type being used.
func (m *matcher) Type() PatternType {
	return m.patternType
}

// detectPatternType guesses the type from metacharacters. Plain words are
// substring patterns.
func detectPatternType(pattern string) PatternType {
	regexIndicators := []string{
		"^", "$", "\\d", "\\w", "\\s", "\\D", "\\W", "\\S",
		"(?:", "(?i)", "{", "}", "+", "|", "(", ")",
	}

	for _, indicator := range regexIndicators {
		if strings.Contains(pattern, indicator) {
			return Regex
		}
	}

	if strings.ContainsAny(pattern, "*?[]") {
		return Glob
	}

	return Contains
}

// String returns a string representation of the PatternType.
func (pt PatternType) String() string {
	switch pt {
	case Contains:
		return "contains"
	case Prefix:
		return "prefix"
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParsePatternType parses a pattern type name. The empty string means Auto.
func ParsePatternType(s string) (PatternType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contains", "substring":
		return Contains, nil
	case "prefix":
		return Prefix, nil
	case "glob":
		return Glob, nil
	case "regex", "regexp":
		return Regex, nil
	case "", "auto":
		return Auto, nil
	default:
		return Auto, fmt.Errorf("unknown pattern type %q", s)
	}
}

// MultiMatcher matches when any of its patterns matches.
type MultiMatcher struct {
	matchers []Matcher
}

// NewMultiMatcher creates a matcher with multiple patterns. Blank patterns
// are ignored.
func NewMultiMatcher(patterns []string, patternType PatternType) (*MultiMatcher, error) {
	mm := &MultiMatcher{
		matchers: make([]Matcher, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		m, err := New(patternType, pattern)
		if err != nil {
			return nil, err
		}
		mm.matchers = append(mm.matchers, m)
	}

	return mm, nil
}

// Match returns true if any pattern matches. An empty MultiMatcher matches
// everything.
func (mm *MultiMatcher) Match(input string) bool {
	if len(mm.matchers) == 0 {
		return true
	}
	for _, m := range mm.matchers {
		if m.Match(input) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns.
func (mm *MultiMatcher) Len() int {
	return len(mm.matchers)
}
