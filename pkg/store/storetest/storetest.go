// Package storetest holds the behavior suite every store backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises a backend against the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Projects", testProjects},
		{"TagModeLocked", testTagModeLocked},
		{"AddFindCommit", testAddFindCommit},
		{"Rollback", testRollback},
		{"DuplicateTag", testDuplicateTag},
		{"InactiveTagReuse", testInactiveTagReuse},
		{"UpdateRecord", testUpdateRecord},
		{"MaxSequence", testMaxSequence},
		{"Runs", testRuns},
		{"TxDone", testTxDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewProject creates a project for a test.
func NewProject(t *testing.T, s store.Store, name string, mode equipment.TagMode) equipment.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), equipment.Project{Name: name, TagMode: mode})
	require.NoError(t, err)
	return p
}

// NewRecord builds an active record for a project.
func NewRecord(projectID, tag string) *equipment.Record {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &equipment.Record{
		ID:            equipment.NewID(),
		ProjectID:     projectID,
		TagNumber:     tag,
		EquipmentType: "Pump",
		Status:        equipment.StatusNew,
		CreatedAt:     now,
		ModifiedAt:    now,
		IsActive:      true,
	}
}

// Seed commits records in one transaction.
func Seed(t *testing.T, s store.Store, records ...*equipment.Record) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, tx.Add(ctx, r))
	}
	require.NoError(t, tx.Commit(ctx))
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()

	p := NewProject(t, s, "Unit 100", "")
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, equipment.TagModeCustom, p.TagMode)
	assert.False(t, p.CreatedAt.IsZero())

	NewProject(t, s, "Alpha", equipment.TagModeHierarchical)

	_, err := s.CreateProject(ctx, equipment.Project{Name: "unit 100"})
	assert.True(t, errors.IsAlreadyExists(err))

	_, err = s.CreateProject(ctx, equipment.Project{Name: "  "})
	assert.True(t, errors.IsValidationError(err))

	byID, err := s.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Unit 100", byID.Name)

	byName, err := s.Project(ctx, "UNIT 100")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	_, err = s.Project(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	all, err := s.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alpha", all[0].Name)
	assert.Equal(t, equipment.TagModeHierarchical, all[0].TagMode)
}

func testTagModeLocked(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)

	require.NoError(t, s.SetTagMode(ctx, p.ID, equipment.TagModeHierarchical))
	got, err := s.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, equipment.TagModeHierarchical, got.TagMode)

	Seed(t, s, NewRecord(p.ID, "PMP-001"))
	err = s.SetTagMode(ctx, p.ID, equipment.TagModeCustom)
	assert.True(t, errors.IsValidationError(err))

	assert.True(t, errors.IsNotFound(s.SetTagMode(ctx, "nope", equipment.TagModeCustom)))
}

func testAddFindCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)
	other := NewProject(t, s, "Other", equipment.TagModeCustom)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	r := NewRecord(p.ID, "PMP-002")
	r.Description = "Feed pump"
	r.SourceHandle = equipment.Ptr("1A")
	require.NoError(t, tx.Add(ctx, r))
	require.NoError(t, tx.Add(ctx, NewRecord(p.ID, "PMP-001")))
	require.NoError(t, tx.Add(ctx, NewRecord(other.ID, "PMP-001")))

	inTx, err := tx.FindByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, inTx, 2, "transaction sees its own writes")

	before, err := s.FindByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, before, "uncommitted writes are invisible")

	require.NoError(t, tx.Commit(ctx))

	got, err := s.FindByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "PMP-001", got[0].TagNumber)
	assert.Equal(t, "PMP-002", got[1].TagNumber)
	assert.Equal(t, "Feed pump", got[1].Description)
	assert.Equal(t, "1A", equipment.Deref(got[1].SourceHandle))
	assert.Nil(t, got[1].UpstreamID)
	assert.True(t, got[1].CreatedAt.Equal(r.CreatedAt))
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Add(ctx, NewRecord(p.ID, "PMP-001")))
	require.NoError(t, tx.RecordRun(ctx, equipment.RunSummary{ProjectID: p.ID, Direction: "SourceToStore"}))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx), "second rollback is a no-op")

	got, err := s.FindByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	runs, err := s.Runs(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func testDuplicateTag(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)
	first := NewRecord(p.ID, "PMP-001")
	Seed(t, s, first)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.Add(ctx, NewRecord(p.ID, "pmp-001"))
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))

	var dup *errors.DuplicateTagError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.ID, dup.ExistingID)
}

func testInactiveTagReuse(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)
	old := NewRecord(p.ID, "PMP-009")
	Seed(t, s, old)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	old.Deactivate(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, tx.Update(ctx, old))
	require.NoError(t, tx.Add(ctx, NewRecord(p.ID, "PMP-009")))
	require.NoError(t, tx.Commit(ctx))

	active, err := s.FindByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.NotEqual(t, old.ID, active[0].ID)

	n, err := s.MaxSequenceForPrefix(ctx, p.ID, "PMP-")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func testUpdateRecord(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)
	a := NewRecord(p.ID, "PMP-001")
	b := NewRecord(p.ID, "PMP-002")
	Seed(t, s, a, b)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	a.Manufacturer = "KSB"
	a.DownstreamID = equipment.Ptr(b.ID)
	a.ModifiedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tx.Update(ctx, a))

	clash := *b
	clash.TagNumber = "PMP-001"
	err = tx.Update(ctx, &clash)
	assert.True(t, errors.IsAlreadyExists(err))

	self := *b
	self.UpstreamID = equipment.Ptr(b.ID)
	assert.True(t, errors.IsValidationError(tx.Update(ctx, &self)))

	missing := NewRecord(p.ID, "PMP-404")
	assert.True(t, errors.IsNotFound(tx.Update(ctx, missing)))

	require.NoError(t, tx.Commit(ctx))

	got, err := s.FindByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "KSB", got[0].Manufacturer)
	assert.Equal(t, b.ID, equipment.Deref(got[0].DownstreamID))
	assert.True(t, got[0].ModifiedAt.Equal(a.ModifiedAt))
	if diff := cmp.Diff(*a, got[0]); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}
}

func testMaxSequence(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)
	Seed(t, s,
		NewRecord(p.ID, "PMP-001"),
		NewRecord(p.ID, "pmp-017"),
		NewRecord(p.ID, "PMP-TAG-001"),
		NewRecord(p.ID, "U1-PMP-040"),
		NewRecord(p.ID, "VLV-099"),
	)

	n, err := s.MaxSequenceForPrefix(ctx, p.ID, "PMP-")
	require.NoError(t, err)
	assert.Equal(t, 17, n)

	n, err = s.MaxSequenceForPrefix(ctx, p.ID, "U1-PMP-")
	require.NoError(t, err)
	assert.Equal(t, 40, n)

	n, err = s.MaxSequenceForPrefix(ctx, p.ID, "TNK-")
	require.NoError(t, err)
	assert.Zero(t, n)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	require.NoError(t, tx.Add(ctx, NewRecord(p.ID, "PMP-018")))
	n, err = tx.MaxSequenceForPrefix(ctx, p.ID, "PMP-")
	require.NoError(t, err)
	assert.Equal(t, 18, n, "pending adds count toward the sequence")
}

func testRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)

	for i, dir := range []string{"SourceToStore", "Both"} {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		started := time.Date(2026, 4, 1, i, 0, 0, 0, time.UTC)
		require.NoError(t, tx.RecordRun(ctx, equipment.RunSummary{
			ProjectID:  p.ID,
			DrawingID:  "unit-100.yaml",
			Direction:  dir,
			Added:      3,
			Updated:    i,
			Missing:    1,
			StartedAt:  started,
			FinishedAt: started.Add(time.Second),
		}))
		require.NoError(t, tx.Commit(ctx))
	}

	runs, err := s.Runs(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "Both", runs[0].Direction)
	assert.Equal(t, 1, runs[0].Updated)
	assert.Equal(t, 3, runs[1].Added)
	assert.NotEmpty(t, runs[1].ID)
	assert.Equal(t, "unit-100.yaml", runs[1].DrawingID)
}

func testTxDone(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := NewProject(t, s, "P", equipment.TagModeCustom)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Add(ctx, NewRecord(p.ID, "PMP-001")), store.ErrTxDone)
	assert.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
}
