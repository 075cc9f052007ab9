package equipment

import (
	"fmt"
	"strings"
	"time"
)

// TagMode selects one of the two mutually exclusive tag formats.
type TagMode string

// Tag modes.
const (
	TagModeCustom       TagMode = "custom"
	TagModeHierarchical TagMode = "hierarchical"
)

// String returns the mode name.
func (m TagMode) String() string {
	return string(m)
}

// ParseTagMode parses a mode name. "kks" and "plant" are accepted aliases
// for the hierarchical plant-identification format.
func ParseTagMode(s string) (TagMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "custom":
		return TagModeCustom, nil
	case "hierarchical", "kks", "plant":
		return TagModeHierarchical, nil
	default:
		return "", fmt.Errorf("unknown tag mode %q: must be custom or hierarchical", s)
	}
}

// Project groups equipment records. Its tag mode is fixed once tags exist.
type Project struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	TagMode   TagMode   `json:"tag_mode" yaml:"tag_mode"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// RunSummary is the per-pass count summary kept for every reconciliation.
type RunSummary struct {
	ID              string    `json:"id" yaml:"id"`
	ProjectID       string    `json:"project_id" yaml:"project_id"`
	DrawingID       string    `json:"drawing_id" yaml:"drawing_id"`
	Direction       string    `json:"direction" yaml:"direction"`
	Added           int       `json:"added" yaml:"added"`
	Updated         int       `json:"updated" yaml:"updated"`
	UpdatedInSource int       `json:"updated_in_source" yaml:"updated_in_source"`
	Missing         int       `json:"missing" yaml:"missing"`
	Warnings        int       `json:"warnings" yaml:"warnings"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
}
