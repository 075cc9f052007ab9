package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/store"
	"github.com/agentstation/tagsync/pkg/store/storetest"
)

// TestContract runs against a live database named by TAGSYNC_TEST_POSTGRES_DSN.
// Each subtest starts from empty tables.
func TestContract(t *testing.T) {
	dsn := os.Getenv("TAGSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TAGSYNC_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `TRUNCATE sync_runs, equipment, projects`)
		require.NoError(t, err)
		return s
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(nil))
}

func TestOpenRejectsBadDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	require.Error(t, err)
}
