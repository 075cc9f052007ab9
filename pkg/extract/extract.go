// Package extract reads equipment observations out of a drawing. It is
// read-only: nothing in this package writes to the host.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync/internal/matcher"
	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/logging"
)

// Stats summarizes one extraction pass.
type Stats struct {
	Scanned  int      `json:"scanned" yaml:"scanned"`
	Matched  int      `json:"matched" yaml:"matched"`
	Skipped  int      `json:"skipped" yaml:"skipped"`
	Problems []string `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// Extractor turns raw drawing objects into observations.
type Extractor struct {
	config   Config
	patterns *matcher.MultiMatcher
	logger   *zerolog.Logger
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithClock overrides the extraction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an Extractor. Unset configuration falls back to defaults.
func New(config Config, opts ...Option) *Extractor {
	e := &Extractor{
		config: config.withDefaults(),
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	// substring patterns only fail to compile when blank, and blanks are skipped
	e.patterns, _ = matcher.NewMultiMatcher(e.config.EquipmentPrefixes, matcher.Contains)
	return e
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config {
	return e.config
}

// Extract scans the drawing and returns one observation per equipment
// object. A host read failure is a fatal DrawingAccessError; a malformed
// object is skipped and counted.
func (e *Extractor) Extract(ctx context.Context, host drawing.Host) ([]equipment.Observation, Stats, error) {
	var stats Stats

	raw, err := host.ExtractRaw(ctx)
	if err != nil {
		return nil, stats, errors.NewDrawingAccessError(host.Name(), errors.StageExtract, err)
	}

	extractedAt := e.now().UTC()
	observations := make([]equipment.Observation, 0, len(raw))

	for _, obj := range raw {
		stats.Scanned++

		if !e.Matches(obj.BlockName) {
			continue
		}

		obs, err := e.observe(obj, extractedAt)
		if err != nil {
			stats.Skipped++
			stats.Problems = append(stats.Problems, err.Error())
			e.logger.Warn().
				Str("handle", obj.Handle).
				Str("block", obj.BlockName).
				Err(err).
				Msg("Skipping malformed drawing object")
			continue
		}

		stats.Matched++
		observations = append(observations, obs)
	}

	e.logger.Debug().
		Str("drawing", host.Name()).
		Int("scanned", stats.Scanned).
		Int("matched", stats.Matched).
		Int("skipped", stats.Skipped).
		Msg("Extraction finished")

	return observations, stats, nil
}

// Matches reports whether a block name is selected by the configured
// equipment patterns. Blank names are selected so that they are counted as
// malformed rather than silently dropped.
func (e *Extractor) Matches(blockName string) bool {
	if equipment.NormalizeBlock(blockName) == "" {
		return true
	}
	return e.patterns.Match(blockName)
}

func (e *Extractor) observe(obj drawing.Object, extractedAt time.Time) (equipment.Observation, error) {
	if strings.TrimSpace(obj.Handle) == "" {
		return equipment.Observation{}, fmt.Errorf("object with block %q has no handle", obj.BlockName)
	}
	if strings.TrimSpace(obj.BlockName) == "" {
		return equipment.Observation{}, fmt.Errorf("object %s has no block name", obj.Handle)
	}

	marker, err := e.parseMarker(obj.Marker)
	if err != nil {
		return equipment.Observation{}, fmt.Errorf("object %s: %w", obj.Handle, err)
	}

	attrs := make(map[string]string, len(obj.Attributes))
	for k, v := range obj.Attributes {
		attrs[k] = v
	}

	obs := equipment.Observation{
		SourceHandle:    obj.Handle,
		BlockIdentifier: strings.TrimSpace(obj.BlockName),
		Position:        obj.Position,
		Rotation:        obj.Rotation,
		Scale:           obj.Scale,
		Layer:           obj.Layer,
		Attributes:      attrs,
		Marker:          marker,
		ExtractedAt:     extractedAt,
	}
	if _, tag, ok := obs.Attribute(e.config.TagAttributes...); ok {
		obs.TagAttribute = strings.TrimSpace(tag)
	}
	return obs, nil
}

// parseMarker decodes the opaque marker payload. An absent payload, or one
// written by another tool, yields nil.
func (e *Extractor) parseMarker(payload map[string]string) (*equipment.Marker, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	name := payload[drawing.MarkerKeyName]
	if !strings.EqualFold(name, e.config.MarkerName) {
		return nil, nil
	}
	tag := strings.TrimSpace(payload[drawing.MarkerKeyTag])
	if tag == "" {
		return nil, errors.NewParseError("marker", "", "marker has no tag value", nil)
	}

	var stamp time.Time
	if raw := strings.TrimSpace(payload[drawing.MarkerKeyTimestamp]); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, errors.NewParseError("marker", "", fmt.Sprintf("bad timestamp %q", raw), err)
		}
		stamp = parsed
	}

	return &equipment.Marker{Name: name, Timestamp: stamp, Tag: tag}, nil
}

// TypeHint returns an explicit equipment type attribute, if the object has one.
func (e *Extractor) TypeHint(obs equipment.Observation) string {
	_, v, ok := obs.Attribute(e.config.TypeAttributes...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// FieldValue returns an observation's value for a merge field and the
// attribute name holding it. The layer comes from the object itself.
func (e *Extractor) FieldValue(obs equipment.Observation, field string) (attr, value string) {
	if field == equipment.FieldLayer {
		return "", strings.TrimSpace(obs.Layer)
	}
	names := e.config.FieldNames(field)
	if name, v, ok := obs.Attribute(names...); ok {
		return name, strings.TrimSpace(v)
	}
	if len(names) > 0 {
		return names[0], ""
	}
	return "", ""
}
