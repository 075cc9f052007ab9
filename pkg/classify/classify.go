// Package classify maps block identifiers to equipment types. Learned
// mappings take precedence over the ordered static rules, and each learned
// mapping carries a confidence that grows with repeated use.
package classify

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/logging"
)

// Confidence computes the score for a usage count. Usage saturates at
// constants.ConfidenceSaturation; unconfirmed mappings are weighted down.
func Confidence(usage int, confirmed bool) float64 {
	score := math.Min(1.0, float64(usage)/constants.ConfidenceSaturation)
	if !confirmed {
		score *= constants.UnconfirmedWeight
	}
	return score
}

// Classifier classifies block identifiers and learns from observations.
// It is safe for concurrent use.
type Classifier struct {
	mu       sync.Mutex
	store    MappingStore
	rules    []compiledRule
	mappings map[string]equipment.LearnedMapping
	loaded   bool
	degraded bool
	warned   bool
	dirty    bool
	logger   *zerolog.Logger
	now      func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithStore sets the durable mapping store.
func WithStore(store MappingStore) Option {
	return func(c *Classifier) error {
		c.store = store
		return nil
	}
}

// WithRules replaces the default rule list.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) error {
		compiled, err := compileRules(rules)
		if err != nil {
			return errors.NewConfigError("classify", "invalid rule", err)
		}
		c.rules = compiled
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Classifier) error {
		c.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for usage timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) error {
		c.now = now
		return nil
	}
}

// New creates a Classifier. Without WithStore the learned table lives in
// memory only.
func New(opts ...Option) (*Classifier, error) {
	rules, err := compileRules(DefaultRules())
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		store:  NewMemoryStore(),
		rules:  rules,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Classify returns the equipment type for a block identifier and the
// confidence in it. Rule-based guesses have confidence 0.
func (c *Classifier) Classify(blockIdentifier string) (string, float64) {
	key := equipment.NormalizeBlock(blockIdentifier)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	if m, ok := c.mappings[key]; ok {
		return m.EquipmentType, m.ConfidenceScore
	}
	return c.ruleType(key), 0.0
}

// RuleType returns the static-rule classification, ignoring learned mappings.
func (c *Classifier) RuleType(blockIdentifier string) string {
	return c.ruleType(equipment.NormalizeBlock(blockIdentifier))
}

func (c *Classifier) ruleType(key string) string {
	if key == "" {
		return constants.DefaultEquipmentType
	}
	for _, r := range c.rules {
		if r.m.Match(key) {
			return r.Type
		}
	}
	return constants.DefaultEquipmentType
}

// Learn records one use of blockIdentifier as equipmentType. The confirmed
// flag is sticky once set. Learning a different type for an identifier
// restarts its history.
func (c *Classifier) Learn(blockIdentifier, equipmentType string, confirmed bool) (equipment.LearnedMapping, error) {
	key := equipment.NormalizeBlock(blockIdentifier)
	if key == "" {
		return equipment.LearnedMapping{}, errors.NewValidationError("block", blockIdentifier, "block identifier is empty")
	}
	equipmentType = strings.TrimSpace(equipmentType)
	if equipmentType == "" {
		return equipment.LearnedMapping{}, errors.NewValidationError("type", equipmentType, "equipment type is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	now := c.now().UTC()
	m, ok := c.mappings[key]
	if ok && m.ConfirmedByUser && !confirmed && !strings.EqualFold(m.EquipmentType, equipmentType) {
		// an unconfirmed observation never overrides the operator
		c.logger.Debug().
			Str("block", key).
			Str("type", m.EquipmentType).
			Str("observed", equipmentType).
			Msg("Keeping confirmed mapping")
		return m, nil
	}
	if !ok || !strings.EqualFold(m.EquipmentType, equipmentType) {
		m = equipment.LearnedMapping{
			BlockIdentifier: key,
			EquipmentType:   equipmentType,
			FirstUsedAt:     now,
		}
	}

	m.UsageCount++
	m.LastUsedAt = now
	m.ConfirmedByUser = m.ConfirmedByUser || confirmed
	m.ConfidenceScore = Confidence(m.UsageCount, m.ConfirmedByUser)

	c.mappings[key] = m
	c.dirty = true
	return m, nil
}

// Confirm marks an existing mapping as operator-confirmed without counting
// another use.
func (c *Classifier) Confirm(blockIdentifier string) (equipment.LearnedMapping, error) {
	key := equipment.NormalizeBlock(blockIdentifier)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	m, ok := c.mappings[key]
	if !ok {
		return equipment.LearnedMapping{}, errors.NewNotFoundError("mapping", key)
	}
	m.ConfirmedByUser = true
	m.ConfidenceScore = Confidence(m.UsageCount, true)
	c.mappings[key] = m
	c.dirty = true
	return m, nil
}

// Mappings returns the learned table sorted by block identifier.
func (c *Classifier) Mappings() []equipment.LearnedMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()
	return c.sorted()
}

// Export is an alias for Mappings, for symmetry with Import.
func (c *Classifier) Export() []equipment.LearnedMapping {
	return c.Mappings()
}

// Import merges mappings into the table, replacing entries with the same
// normalized identifier. Confidence is recomputed from usage. It returns
// the number of entries imported.
func (c *Classifier) Import(mappings []equipment.LearnedMapping) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	n := 0
	for _, m := range mappings {
		key := equipment.NormalizeBlock(m.BlockIdentifier)
		if key == "" || strings.TrimSpace(m.EquipmentType) == "" {
			continue
		}
		m.BlockIdentifier = key
		if m.UsageCount < 0 {
			m.UsageCount = 0
		}
		m.ConfidenceScore = Confidence(m.UsageCount, m.ConfirmedByUser)
		c.mappings[key] = m
		n++
	}
	if n > 0 {
		c.dirty = true
	}
	return n
}

// Reset drops every learned mapping and persists the empty table.
func (c *Classifier) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mappings = map[string]equipment.LearnedMapping{}
	c.loaded = true
	c.degraded = false
	c.dirty = true
	return c.save()
}

// Save persists pending changes. A failure is returned as a
// ClassificationError and logged once; classification keeps working from
// memory.
func (c *Classifier) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	return c.save()
}

// Degraded reports whether the durable table could not be loaded.
func (c *Classifier) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()
	return c.degraded
}

func (c *Classifier) save() error {
	if c.degraded {
		// the unreadable table is left untouched on disk
		return nil
	}
	if err := c.store.Save(c.sorted()); err != nil {
		cerr := errors.NewClassificationError(c.location(), "save", err)
		c.warnOnce(cerr)
		return cerr
	}
	c.dirty = false
	return nil
}

func (c *Classifier) ensureLoaded() {
	if c.loaded {
		return
	}
	c.loaded = true

	mappings, err := c.store.Load()
	if err != nil {
		c.degraded = true
		c.mappings = map[string]equipment.LearnedMapping{}
		c.warnOnce(errors.NewClassificationError(c.location(), "load", err))
		return
	}
	if mappings == nil {
		mappings = map[string]equipment.LearnedMapping{}
	}
	c.mappings = mappings
}

func (c *Classifier) location() string {
	if p, ok := c.store.(interface{ Path() string }); ok {
		return p.Path()
	}
	return "mapping store"
}

func (c *Classifier) warnOnce(err error) {
	if c.warned {
		return
	}
	c.warned = true
	c.logger.Warn().Err(err).Msg("Learned mappings unavailable, using rule-based classification")
}

func (c *Classifier) sorted() []equipment.LearnedMapping {
	out := make([]equipment.LearnedMapping, 0, len(c.mappings))
	for _, m := range c.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BlockIdentifier < out[j].BlockIdentifier
	})
	return out
}
