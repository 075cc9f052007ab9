package classify_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/classify"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/logging"
)

type failingStore struct {
	loadErr error
	saveErr error
	saves   int
}

func (s *failingStore) Load() (map[string]equipment.LearnedMapping, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return map[string]equipment.LearnedMapping{}, nil
}

func (s *failingStore) Save([]equipment.LearnedMapping) error {
	s.saves++
	return s.saveErr
}

func newClassifier(t *testing.T, opts ...classify.Option) *classify.Classifier {
	t.Helper()
	base := []classify.Option{
		classify.WithLogger(logging.NewNopLogger()),
		classify.WithClock(func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }),
	}
	c, err := classify.New(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClassifyRules(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		block string
		want  string
	}{
		{"PMP-CENTRIFUGAL", "Pump"},
		{"  centrifugal_pump ", "Pump"},
		{"VLV-GATE", "Valve"},
		{"STORAGE-TANK", "Tank"},
		{"HX-SHELL", "Heat Exchanger"},
		{"XPMP", "Equipment"},
		{"TITLEBLOCK", "Equipment"},
		{"", "Equipment"},
	}
	for _, tt := range tests {
		t.Run(tt.block, func(t *testing.T) {
			got, conf := c.Classify(tt.block)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, conf)
		})
	}
}

func TestCustomRulesFirstMatchWins(t *testing.T) {
	c := newClassifier(t, classify.WithRules([]classify.Rule{
		{Match: "regex", Pattern: `^P\d+$`, Type: "Pump"},
		{Match: "contains", Pattern: "P", Type: "Pipe"},
	}))

	got, _ := c.Classify("p101")
	assert.Equal(t, "Pump", got)
	got, _ = c.Classify("SPOOL-P")
	assert.Equal(t, "Pipe", got)
	assert.Equal(t, "Equipment", c.RuleType("VALVE"))

	_, err := classify.New(classify.WithRules([]classify.Rule{{Pattern: "X"}}))
	require.Error(t, err)
}

func TestLearnedMappingWins(t *testing.T) {
	c := newClassifier(t)

	_, err := c.Learn(" pmp-special ", "Blower", false)
	require.NoError(t, err)

	got, conf := c.Classify("PMP-SPECIAL")
	assert.Equal(t, "Blower", got)
	assert.InDelta(t, 0.08, conf, 1e-9)
}

func TestConfidenceProgression(t *testing.T) {
	c := newClassifier(t)

	var m equipment.LearnedMapping
	var err error
	prev := 0.0
	for i := 0; i < 3; i++ {
		m, err = c.Learn("PMP-A", "Pump", false)
		require.NoError(t, err)
		assert.Greater(t, m.ConfidenceScore, prev)
		prev = m.ConfidenceScore
	}
	assert.Equal(t, 3, m.UsageCount)
	assert.InDelta(t, 0.24, m.ConfidenceScore, 1e-9)

	m, err = c.Confirm("pmp-a")
	require.NoError(t, err)
	assert.Equal(t, 3, m.UsageCount)
	assert.True(t, m.ConfirmedByUser)
	assert.InDelta(t, 0.3, m.ConfidenceScore, 1e-9)

	// confirmation is sticky across later unconfirmed uses
	m, err = c.Learn("PMP-A", "Pump", false)
	require.NoError(t, err)
	assert.True(t, m.ConfirmedByUser)
	assert.InDelta(t, 0.4, m.ConfidenceScore, 1e-9)
}

func TestConfidenceSaturates(t *testing.T) {
	c := newClassifier(t)
	var m equipment.LearnedMapping
	for i := 0; i < 25; i++ {
		m, _ = c.Learn("VLV", "Valve", false)
	}
	assert.InDelta(t, 0.8, m.ConfidenceScore, 1e-9)

	m, _ = c.Learn("VLV", "Valve", true)
	assert.InDelta(t, 1.0, m.ConfidenceScore, 1e-9)

	assert.InDelta(t, 0.4, classify.Confidence(4, true), 1e-9)
	assert.InDelta(t, 0.32, classify.Confidence(4, false), 1e-9)
}

func TestLearnDifferentTypeRestarts(t *testing.T) {
	c := newClassifier(t)
	_, _ = c.Learn("BLK", "Pump", false)
	_, _ = c.Learn("BLK", "Pump", false)

	m, err := c.Learn("BLK", "Motor", false)
	require.NoError(t, err)
	assert.Equal(t, "Motor", m.EquipmentType)
	assert.Equal(t, 1, m.UsageCount)
	assert.False(t, m.ConfirmedByUser)
}

func TestLearnKeepsConfirmedMapping(t *testing.T) {
	c := newClassifier(t)
	_, _ = c.Learn("BLK", "Pump", true)
	_, _ = c.Learn("BLK", "Pump", true)

	m, err := c.Learn("BLK", "Motor", false)
	require.NoError(t, err)
	assert.Equal(t, "Pump", m.EquipmentType)
	assert.Equal(t, 2, m.UsageCount)
	assert.True(t, m.ConfirmedByUser)

	typ, _ := c.Classify("BLK")
	assert.Equal(t, "Pump", typ)

	// The operator can still change a confirmed mapping.
	m, err = c.Learn("BLK", "Motor", true)
	require.NoError(t, err)
	assert.Equal(t, "Motor", m.EquipmentType)
	assert.Equal(t, 1, m.UsageCount)
	assert.True(t, m.ConfirmedByUser)
}

func TestLearnRejectsEmptyInput(t *testing.T) {
	c := newClassifier(t)
	_, err := c.Learn("  ", "Pump", false)
	assert.True(t, errors.IsValidationError(err))
	_, err = c.Learn("PMP", "", false)
	assert.True(t, errors.IsValidationError(err))

	_, err = c.Confirm("UNKNOWN")
	assert.True(t, errors.IsNotFound(err))
}

func TestFileStorePersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "block-mappings.yaml")

	c := newClassifier(t, classify.WithStore(classify.NewFileStore(path)))
	_, err := c.Learn("PMP-A", "Pump", true)
	require.NoError(t, err)
	require.NoError(t, c.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PMP-A")

	restarted := newClassifier(t, classify.WithStore(classify.NewFileStore(path)))
	got, conf := restarted.Classify("pmp-a")
	assert.Equal(t, "Pump", got)
	assert.InDelta(t, 0.1, conf, 1e-9)
	assert.False(t, restarted.Degraded())
}

func TestCorruptFileDegradesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "block-mappings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mappings: not-a-list"), 0o644))

	tl := logging.NewTestLogger(t)
	c, err := classify.New(
		classify.WithStore(classify.NewFileStore(path)),
		classify.WithLogger(tl.Logger),
	)
	require.NoError(t, err)

	got, conf := c.Classify("PMP-1")
	assert.Equal(t, "Pump", got)
	assert.Zero(t, conf)
	_, _ = c.Classify("VLV-1")
	_, err = c.Learn("PMP-1", "Pump", false)
	require.NoError(t, err)
	require.NoError(t, c.Save())

	assert.True(t, c.Degraded())
	assert.Equal(t, 1, tl.Count("Learned mappings unavailable"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mappings: not-a-list", string(data), "unreadable table is not overwritten")
}

func TestSaveFailureIsClassificationError(t *testing.T) {
	store := &failingStore{saveErr: stderrors.New("disk full")}
	tl := logging.NewTestLogger(t)
	c, err := classify.New(classify.WithStore(store), classify.WithLogger(tl.Logger))
	require.NoError(t, err)

	_, _ = c.Learn("PMP", "Pump", false)
	err = c.Save()
	require.Error(t, err)

	var cerr *errors.ClassificationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "save", cerr.Operation)
	assert.Equal(t, errors.StageClassify, cerr.Stage)

	_ = c.Save()
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, 1, tl.Count("Learned mappings unavailable"))

	// classification still answers from memory
	got, _ := c.Classify("PMP")
	assert.Equal(t, "Pump", got)
}

func TestSaveSkipsWhenClean(t *testing.T) {
	store := &failingStore{}
	c := newClassifier(t, classify.WithStore(store))
	require.NoError(t, c.Save())
	assert.Zero(t, store.saves)
}

func TestImportExportReset(t *testing.T) {
	c := newClassifier(t)
	n := c.Import([]equipment.LearnedMapping{
		{BlockIdentifier: "vlv-gate", EquipmentType: "Valve", UsageCount: 5},
		{BlockIdentifier: "tnk", EquipmentType: "Tank", UsageCount: 20, ConfirmedByUser: true, ConfidenceScore: 7},
		{BlockIdentifier: "", EquipmentType: "Ignored"},
	})
	assert.Equal(t, 2, n)

	out := c.Export()
	require.Len(t, out, 2)
	assert.Equal(t, "TNK", out[0].BlockIdentifier)
	assert.InDelta(t, 1.0, out[0].ConfidenceScore, 1e-9)
	assert.Equal(t, "VLV-GATE", out[1].BlockIdentifier)
	assert.InDelta(t, 0.4, out[1].ConfidenceScore, 1e-9)

	require.NoError(t, c.Reset())
	assert.Empty(t, c.Mappings())
}

func TestEncodeDecode(t *testing.T) {
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	data, err := classify.Encode([]equipment.LearnedMapping{
		{BlockIdentifier: "VLV", EquipmentType: "Valve", UsageCount: 2, FirstUsedAt: stamp, LastUsedAt: stamp, ConfidenceScore: 0.16},
		{BlockIdentifier: "PMP", EquipmentType: "Pump", UsageCount: 1, FirstUsedAt: stamp, LastUsedAt: stamp, ConfidenceScore: 0.08},
	})
	require.NoError(t, err)

	decoded, err := classify.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "Valve", decoded["VLV"].EquipmentType)
	assert.True(t, stamp.Equal(decoded["PMP"].FirstUsedAt))

	_, err = classify.Decode([]byte("mappings: 42"))
	require.Error(t, err)
}
