package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindValuesAreStable(t *testing.T) {
	tests := []struct {
		kind Kind
		code int
	}{
		{Success, 0},
		{InvalidParameter, 1},
		{OutOfMemory, 2},
		{HandshakeFailed, 3},
		{EncryptionFailed, 4},
		{DecryptionFailed, 5},
		{BufferTooSmall, 6},
		{InvalidState, 7},
		{ProtocolError, 8},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.code, int(tt.kind))
		})
	}
	assert.Contains(t, Kind(42).String(), "unknown")
}

func TestKindOf(t *testing.T) {
	base := newError(InvalidState, "encrypt", ErrNotEstablished)
	wrapped := fmt.Errorf("outer: %w", base)

	assert.Equal(t, Success, KindOf(nil))
	assert.Equal(t, InvalidState, KindOf(base))
	assert.Equal(t, InvalidState, KindOf(wrapped))
	assert.Equal(t, ProtocolError, KindOf(errors.New("plain")))
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("ctx: %w", newError(DecryptionFailed, "decrypt", ErrClosed))

	assert.True(t, errors.Is(err, &Error{Kind: DecryptionFailed}))
	assert.True(t, errors.Is(err, &Error{Kind: DecryptionFailed, Op: "decrypt"}))
	assert.False(t, errors.Is(err, &Error{Kind: DecryptionFailed, Op: "encrypt"}))
	assert.False(t, errors.Is(err, &Error{Kind: InvalidState}))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, "decrypt: decryption failed: session closed", errors.Unwrap(err).Error())
}
