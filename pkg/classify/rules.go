package classify

import (
	"fmt"

	"github.com/agentstation/tagsync/internal/matcher"
)

// Rule maps block identifiers matching Pattern to an equipment type.
// Match is one of prefix, contains, glob or regex; empty means auto-detect.
type Rule struct {
	Match   string `mapstructure:"match" yaml:"match" json:"match"`
	Pattern string `mapstructure:"pattern" yaml:"pattern" json:"pattern"`
	Type    string `mapstructure:"type" yaml:"type" json:"type"`
}

type compiledRule struct {
	Rule
	m matcher.Matcher
}

// DefaultRules returns the built-in ordered rule list. Short codes are
// prefix rules so that they do not fire inside unrelated names.
func DefaultRules() []Rule {
	return []Rule{
		{Match: "contains", Pattern: "PUMP", Type: "Pump"},
		{Match: "prefix", Pattern: "PMP", Type: "Pump"},
		{Match: "contains", Pattern: "VALVE", Type: "Valve"},
		{Match: "prefix", Pattern: "VLV", Type: "Valve"},
		{Match: "contains", Pattern: "TANK", Type: "Tank"},
		{Match: "prefix", Pattern: "TNK", Type: "Tank"},
		{Match: "contains", Pattern: "VESSEL", Type: "Vessel"},
		{Match: "prefix", Pattern: "VSL", Type: "Vessel"},
		{Match: "contains", Pattern: "MOTOR", Type: "Motor"},
		{Match: "prefix", Pattern: "MTR", Type: "Motor"},
		{Match: "contains", Pattern: "EXCHANGER", Type: "Heat Exchanger"},
		{Match: "prefix", Pattern: "EXCH", Type: "Heat Exchanger"},
		{Match: "prefix", Pattern: "HEX", Type: "Heat Exchanger"},
		{Match: "prefix", Pattern: "HX", Type: "Heat Exchanger"},
		{Match: "contains", Pattern: "COMPRESSOR", Type: "Compressor"},
		{Match: "prefix", Pattern: "COMP", Type: "Compressor"},
		{Match: "prefix", Pattern: "CMP", Type: "Compressor"},
		{Match: "contains", Pattern: "FILTER", Type: "Filter"},
		{Match: "prefix", Pattern: "FLT", Type: "Filter"},
		{Match: "contains", Pattern: "TRANSMITTER", Type: "Instrument"},
		{Match: "prefix", Pattern: "XMTR", Type: "Instrument"},
		{Match: "prefix", Pattern: "INST", Type: "Instrument"},
	}
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Type == "" {
			return nil, fmt.Errorf("rule %d (%q) has no type", i, r.Pattern)
		}
		kind, err := matcher.ParsePatternType(r.Match)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		m, err := matcher.New(kind, r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, compiledRule{Rule: r, m: m})
	}
	return out, nil
}
