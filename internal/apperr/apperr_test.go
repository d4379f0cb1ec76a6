package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := New(KindConflict, CodeSeatAlreadyHeld, "seat %d is held", 7)
	wrapped := fmt.Errorf("hold seats: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSeatAlreadyHeld))
	assert.False(t, errors.Is(wrapped, ErrSeatUnavailable))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, CodeSeatAlreadyHeld, CodeOf(wrapped))
	assert.Equal(t, "SEAT_ALREADY_HELD: seat 7 is held", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, CodeInternal, CodeOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, KindExternalFailure, CodeGatewayFailure, "charge failed")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrGatewayFailure)
	assert.Contains(t, err.Error(), "connection reset")
}
