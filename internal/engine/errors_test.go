package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/orchard/internal/store"
)

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrCodeNotFound, Op: "accept", Message: "consultation missing", EntityID: "c-1"}
	assert.Equal(t, "accept: NOT_FOUND: consultation missing (id=c-1)", err.Error())

	err = &Error{Code: ErrCodeValidationFailure, Op: "request", Message: "orchard id is required"}
	assert.Equal(t, "request: VALIDATION_FAILURE: orchard id is required", err.Error())
}

func TestCodeOf(t *testing.T) {
	base := &Error{Code: ErrCodeInvalidTransition, Op: "issue"}
	assert.Equal(t, ErrCodeInvalidTransition, CodeOf(base))
	assert.Equal(t, ErrCodeInvalidTransition, CodeOf(fmt.Errorf("wrapped: %w", base)))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"not found", &store.Error{Op: "get", Message: "missing", Kind: store.ErrNotFound}, ErrCodeNotFound},
		{"status conflict", &store.Error{Op: "update", Message: "is COMPLETED", Kind: store.ErrStatusConflict}, ErrCodeInvalidTransition},
		{"unique violation", &store.Error{Op: "insert", Message: "UNIQUE constraint failed", Kind: store.ErrUniqueViolation}, ErrCodeInvalidTransition},
		{"driver failure", &store.Error{Op: "insert", Message: "database is locked"}, ErrCodeStoreFailure},
		{"plain error", errors.New("boom"), ErrCodeStoreFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", "id-1", tt.err)
			assert.Equal(t, tt.want, CodeOf(got))
			assert.ErrorIs(t, got, tt.err, "the store error stays in the chain")
			assert.Contains(t, got.Error(), tt.err.Error())
		})
	}
}

func TestClassify_PassesEngineErrorsThrough(t *testing.T) {
	orig := transitionError("issue", "c-1", "already has a prescription")
	assert.Same(t, orig, classify("other", "x", orig))
	assert.Nil(t, classify("op", "id", nil))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsNotFound(&Error{Code: ErrCodeNotFound}))
	assert.True(t, IsInvalidTransition(&Error{Code: ErrCodeInvalidTransition}))
	assert.True(t, IsStoreFailure(&Error{Code: ErrCodeStoreFailure}))
	assert.True(t, IsValidationFailure(&Error{Code: ErrCodeValidationFailure}))
	assert.False(t, IsNotFound(errors.New("not found")))
}
