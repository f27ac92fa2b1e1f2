package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{name: "tagged error", err: NotFound("match 1 not found"), expected: KindNotFound},
		{name: "wrapped tagged error", err: fmt.Errorf("handler: %w", AlreadyInMatch("busy")), expected: KindAlreadyInMatch},
		{name: "untagged error", err: errors.New("plain"), expected: KindUnknown},
		{name: "nil", err: nil, expected: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("store down", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "store down")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsKind(t *testing.T) {
	err := Conflict("seq contention")
	assert.True(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(err, KindBadRequest))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "unauthorized", KindUnauthorized.String())
	assert.Equal(t, "already_in_match", KindAlreadyInMatch.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
