package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/errors"
)

func TestSentinelMatching(t *testing.T) {
	cause := stderrors.New("disk gone")

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"drawing access", errors.NewDrawingAccessError("plant.yaml", errors.StageExtract, cause), errors.ErrDrawingAccess},
		{"classification", errors.NewClassificationError("mappings.yaml", "load", cause), errors.ErrClassification},
		{"tag validation", errors.NewTagValidationError("PU", "custom", "too short", "PU"), errors.ErrInvalidInput},
		{"duplicate", errors.NewDuplicateTagError("p1", "PMP-001", "r1", errors.StageCommit), errors.ErrAlreadyExists},
		{"transaction", errors.NewStoreTransactionError("p1", errors.StageCommit, cause), errors.ErrTransaction},
		{"partial apply", errors.NewPartialApplyWarning("H1", "PMP-001", "DESC", cause), errors.ErrPartialApply},
		{"not found", errors.NewNotFoundError("project", "p1"), errors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.target))
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := stderrors.New("locked")
	err := errors.NewStoreTransactionError("p1", errors.StageCommit, cause)
	assert.True(t, errors.Is(err, cause))

	warn := errors.NewPartialApplyWarning("H7", "VLV-002", "", cause)
	assert.True(t, errors.Is(warn, cause))
	assert.Equal(t, errors.StageDrawing, warn.Stage)
	assert.Contains(t, warn.Error(), "H7")
}

func TestTagValidationErrorMessage(t *testing.T) {
	err := errors.NewTagValidationError("pump101", "custom", "lowercase", "PUMP-101")
	assert.Contains(t, err.Error(), `suggested: "PUMP-101"`)

	same := errors.NewTagValidationError("AB", "hierarchical", "one segment", "AB")
	assert.NotContains(t, same.Error(), "suggested")
}

func TestWrapTransaction(t *testing.T) {
	assert.NoError(t, errors.WrapTransaction("p1", errors.StageCommit, nil))

	first := errors.WrapTransaction("p1", errors.StageApply, stderrors.New("boom"))
	var txErr *errors.StoreTransactionError
	require.True(t, errors.As(first, &txErr))
	assert.Equal(t, errors.StageApply, txErr.Stage)

	// an existing transaction error keeps its original stage
	again := errors.WrapTransaction("p1", errors.StageCommit, first)
	require.True(t, errors.As(again, &txErr))
	assert.Equal(t, errors.StageApply, txErr.Stage)
}

func TestDuplicateCarriesIdentifiers(t *testing.T) {
	err := errors.NewDuplicateTagError("proj", "P-101", "", errors.StageTag)
	var dup *errors.DuplicateTagError
	require.True(t, errors.As(fmt.Errorf("adding: %w", err), &dup))
	assert.Equal(t, "P-101", dup.Tag)
	assert.Equal(t, "proj", dup.ProjectID)
	assert.True(t, errors.IsAlreadyExists(err))
}
