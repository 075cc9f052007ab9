package equipment

import (
	"strings"
	"time"
)

// LearnedMapping associates a normalized block identifier with an
// equipment type and a confidence earned through repeated use.
type LearnedMapping struct {
	BlockIdentifier string    `json:"block" yaml:"block"`
	EquipmentType   string    `json:"equipment_type" yaml:"equipment_type"`
	UsageCount      int       `json:"usage_count" yaml:"usage_count"`
	FirstUsedAt     time.Time `json:"first_used_at" yaml:"first_used_at"`
	LastUsedAt      time.Time `json:"last_used_at" yaml:"last_used_at"`
	ConfirmedByUser bool      `json:"confirmed" yaml:"confirmed"`
	ConfidenceScore float64   `json:"confidence" yaml:"confidence"`
}

// NormalizeBlock trims and upper-cases a block identifier.
func NormalizeBlock(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
