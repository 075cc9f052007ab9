package tags

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
)

// DefaultTypeCodes maps equipment types to their tag codes. Codes are two
// or three characters so that generated hierarchical tags validate.
var DefaultTypeCodes = map[string]string{
	"PUMP":           "PMP",
	"VALVE":          "VLV",
	"TANK":           "TNK",
	"VESSEL":         "VSL",
	"MOTOR":          "MTR",
	"HEAT EXCHANGER": "HEX",
	"COMPRESSOR":     "CMP",
	"FILTER":         "FLT",
	"INSTRUMENT":     "INS",
	"EQUIPMENT":      "EQP",
}

// Sequencer reports the highest sequence number already used under a tag
// prefix within a project.
type Sequencer interface {
	MaxSequenceForPrefix(ctx context.Context, projectID, prefix string) (int, error)
}

// Finder lists a project's active records.
type Finder interface {
	FindByProject(ctx context.Context, projectID string) ([]equipment.Record, error)
}

// Generator builds new tag numbers.
type Generator struct {
	codes map[string]string
}

// NewGenerator returns a Generator using DefaultTypeCodes plus overrides.
// Override keys are equipment type names; values must be 2-3 letters or
// digits so that generated hierarchical tags validate.
func NewGenerator(overrides map[string]string) (*Generator, error) {
	codes := make(map[string]string, len(DefaultTypeCodes)+len(overrides))
	for k, v := range DefaultTypeCodes {
		codes[k] = v
	}
	for k, v := range overrides {
		code := strings.ToUpper(strings.TrimSpace(v))
		if len(code) < 2 || len(code) > 3 || alnum(code) != code {
			return nil, errors.NewValidationError("type_code", v,
				fmt.Sprintf("code for %q must be 2-3 letters or digits", k))
		}
		codes[strings.ToUpper(strings.TrimSpace(k))] = code
	}
	return &Generator{codes: codes}, nil
}

// TypeCode returns the code for an equipment type. Unknown types use the
// first three letters or digits of the name.
func (g *Generator) TypeCode(equipmentType string) string {
	key := strings.ToUpper(strings.TrimSpace(equipmentType))
	if code, ok := g.codes[key]; ok {
		return code
	}
	code := alnum(key)
	if len(code) > 3 {
		code = code[:3]
	}
	if len(code) < 2 {
		return g.codes["EQUIPMENT"]
	}
	return code
}

// Prefix returns the tag prefix for a type and area: "AREA-CODE-" in the
// custom format (area optional) and "CODE-" in the hierarchical format.
func (g *Generator) Prefix(mode equipment.TagMode, equipmentType, area string) string {
	code := g.TypeCode(equipmentType)
	if mode == equipment.TagModeHierarchical {
		return code + "-"
	}
	if a := alnum(strings.ToUpper(area)); a != "" {
		return a + "-" + code + "-"
	}
	return code + "-"
}

// Generate returns the next free tag for the type and area in project.
func (g *Generator) Generate(ctx context.Context, seq Sequencer, project equipment.Project, equipmentType, area string) (string, error) {
	prefix := g.Prefix(project.TagMode, equipmentType, area)
	highest, err := seq.MaxSequenceForPrefix(ctx, project.ID, prefix)
	if err != nil {
		return "", fmt.Errorf("scan sequence for %s: %w", prefix, err)
	}
	tag := Format(prefix, highest+1)
	if err := ValidateErr(tag, project.TagMode); err != nil {
		return "", fmt.Errorf("generated tag for %s: %w", equipmentType, err)
	}
	return tag, nil
}

// Format renders prefix plus a zero-padded sequence number.
func Format(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, constants.SequenceWidth, n)
}

// Sequence parses the sequence number of tag under prefix. The prefix is
// compared case-insensitively; separators in the remainder are ignored and
// the leading run of digits is parsed.
func Sequence(tag, prefix string) (int, bool) {
	if prefix == "" || len(tag) < len(prefix) || !strings.EqualFold(tag[:len(prefix)], prefix) {
		return 0, false
	}
	rest := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.', ' ':
			return -1
		}
		return r
	}, tag[len(prefix):])

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxSequence returns the highest Sequence among tagNumbers, or 0.
func MaxSequence(tagNumbers []string, prefix string) int {
	highest := 0
	for _, t := range tagNumbers {
		if n, ok := Sequence(t, prefix); ok && n > highest {
			highest = n
		}
	}
	return highest
}

// CheckUnique returns a DuplicateTagError when an active record in the
// project other than excludeID already uses tag.
func CheckUnique(ctx context.Context, f Finder, projectID, tag, excludeID string) error {
	records, err := f.FindByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if existing := FindTag(records, tag); existing != nil && existing.ID != excludeID {
		return errors.NewDuplicateTagError(projectID, tag, existing.ID, errors.StageTag)
	}
	return nil
}

// FindTag returns the active record using tag, compared case-insensitively.
func FindTag(records []equipment.Record, tag string) *equipment.Record {
	want := equipment.NormalizeTag(tag)
	for i := range records {
		if records[i].IsActive && equipment.NormalizeTag(records[i].TagNumber) == want {
			return &records[i]
		}
	}
	return nil
}

func alnum(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if isLetter(s[i]) || isDigit(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
