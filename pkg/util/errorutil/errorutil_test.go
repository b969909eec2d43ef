package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		kind       error
		wantCode   string
		wantStatus int
	}{
		{"validation", NewValidationError("title required", nil), ErrValidation, "VALIDATION_FAILED", http.StatusBadRequest},
		{"field", NewFieldError("title", "title required"), ErrValidation, "VALIDATION_FAILED", http.StatusBadRequest},
		{"not found", NewNotFound("ticket", nil), ErrNotFound, "NOT_FOUND", http.StatusNotFound},
		{"unauthorized", NewUnauthorized("missing token"), ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
		{"forbidden", NewForbidden("admin only"), ErrUnauthorized, "FORBIDDEN", http.StatusForbidden},
		{"conflict", NewConflict("email taken", nil), ErrConflict, "CONFLICT", http.StatusConflict},
		{"store", NewStoreFailure(errors.New("dial tcp: refused")), ErrStoreFailure, "STORE_FAILURE", http.StatusServiceUnavailable},
		{"unavailable", NewUnavailable("reset disabled"), ErrUnavailable, "UNAVAILABLE", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			de := ToDomainError(tt.err)
			require.NotNil(t, de)
			assert.Equal(t, tt.wantCode, de.Code)
			assert.Equal(t, tt.wantStatus, de.HTTPStatus)
		})
	}
}

func TestStoreFailureKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStoreFailure(fmt.Errorf("postgres: get ticket: %w", cause))

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	de := ToDomainError(errors.New("boom"))

	require.NotNil(t, de)
	assert.Equal(t, "INTERNAL_ERROR", de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Nil(t, ToDomainError(nil))
}

func TestToDomainErrorFindsWrapped(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", NewNotFound("ticket", map[string]any{"id": "t-1"}))

	de := ToDomainError(wrapped)
	assert.Equal(t, "NOT_FOUND", de.Code)
	assert.Equal(t, "t-1", de.Details["id"])
}
