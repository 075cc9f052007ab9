package sqlite

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/store"
	"github.com/agentstation/tagsync/pkg/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tagsync.db"))
	require.NoError(t, err)
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTemp(t) })
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tagsync.db")

	s, err := Open(path)
	require.NoError(t, err)
	p := storetest.NewProject(t, s, "Unit 100", equipment.TagModeHierarchical)
	storetest.Seed(t, s, storetest.NewRecord(p.ID, "PMP-001"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PMP-001", got[0].TagNumber)
	assert.True(t, got[0].IsActive)

	proj, err := s.Project(ctx, "unit 100")
	require.NoError(t, err)
	assert.Equal(t, equipment.TagModeHierarchical, proj.TagMode)
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, isBusy(stderrors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isBusy(nil))
	assert.True(t, isUniqueViolation(stderrors.New("constraint failed: UNIQUE constraint failed: index 'equipment_active_tag' (2067)")))
	assert.False(t, isUniqueViolation(stderrors.New("no such table")))
}
