// Package tags validates and generates equipment tag numbers under the two
// project tag formats.
package tags

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
)

// hierarchicalPattern is the plant-identification format: two or three
// hyphen-separated segments with an optional leading '+' or '='.
var hierarchicalPattern = regexp.MustCompile(`^[+=]?[A-Z0-9]{2,3}-[A-Z0-9]{2,5}(-[A-Z0-9]{1,4})?$`)

// segment length bounds for the hierarchical format, by position.
var segmentBounds = [][2]int{{2, 3}, {2, 5}, {1, 4}}

// Validation is the outcome of validating one tag.
type Validation struct {
	Valid      bool   `json:"valid" yaml:"valid"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// Validate checks tag against the rules of mode. Invalid results carry a
// reason and, when one can be derived, a suggested correction.
func Validate(tag string, mode equipment.TagMode) Validation {
	var reason string
	switch mode {
	case equipment.TagModeHierarchical:
		reason = hierarchicalReason(tag)
	default:
		reason = customReason(tag)
	}
	if reason == "" {
		return Validation{Valid: true}
	}

	v := Validation{Reason: reason}
	if s := Suggest(tag, mode); s != tag {
		v.Suggestion = s
	}
	return v
}

// ValidateErr is Validate returning a TagValidationError for invalid tags.
func ValidateErr(tag string, mode equipment.TagMode) error {
	v := Validate(tag, mode)
	if v.Valid {
		return nil
	}
	return errors.NewTagValidationError(tag, mode.String(), v.Reason, v.Suggestion)
}

func customReason(tag string) string {
	if len(tag) < 3 {
		return "must be at least 3 characters"
	}

	var letter, digitOrSep bool
	for _, r := range tag {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			letter = true
		case r >= '0' && r <= '9', r == '-', r == '_':
			digitOrSep = true
		case r == '.':
		default:
			return fmt.Sprintf("contains invalid character %q (allowed: letters, digits, '.', '_', '-')", r)
		}
	}
	if !letter {
		return "must contain at least one letter"
	}
	if !digitOrSep {
		return "must contain a digit or a '-' or '_' separator"
	}
	return ""
}

func hierarchicalReason(tag string) string {
	upper := strings.ToUpper(tag)
	if hierarchicalPattern.MatchString(upper) {
		return ""
	}

	body := strings.TrimLeft(upper, "+=")
	if len(upper)-len(body) > 1 {
		return "only one leading '+' or '=' is allowed"
	}
	segments := strings.Split(body, "-")
	if len(segments) < 2 || len(segments) > 3 {
		return fmt.Sprintf("expected 2 or 3 hyphen-separated segments, got %d", len(segments))
	}
	for i, seg := range segments {
		lo, hi := segmentBounds[i][0], segmentBounds[i][1]
		if len(seg) < lo || len(seg) > hi {
			return fmt.Sprintf("segment %d %q must be %d-%d characters", i+1, seg, lo, hi)
		}
		for _, r := range seg {
			if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
				return fmt.Sprintf("segment %d %q may only contain letters and digits", i+1, seg)
			}
		}
	}
	return "does not match the plant identification format"
}

// Suggest derives a corrected form of tag for mode.
func Suggest(tag string, mode equipment.TagMode) string {
	s := strings.ToUpper(stripSpaces(tag))
	if mode == equipment.TagModeHierarchical {
		return strings.ReplaceAll(s, "_", "-")
	}
	if strings.ContainsAny(s, "-_") {
		return s
	}
	for i := 1; i < len(s); i++ {
		if isLetter(s[i-1]) && isDigit(s[i]) {
			return s[:i] + "-" + s[i:]
		}
	}
	return s
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isLetter(b byte) bool { return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') }
func isDigit(b byte) bool  { return b >= '0' && b <= '9' }
