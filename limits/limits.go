package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMessageLen is the Noise Protocol limit for a single message (65535 bytes)
	MaxMessageLen = 65535

	// TagLen is the ChaCha20-Poly1305 authentication tag appended to every
	// transport message
	TagLen = 16

	// MaxPayloadLen is the largest plaintext that fits in one transport message
	MaxPayloadLen = MaxMessageLen - TagLen

	// SequenceHeaderLen is the size of the big-endian counter prefixed to
	// sequenced frames
	SequenceHeaderLen = 8

	// MaxSequencedPayloadLen is the largest plaintext accepted by a sequenced send
	MaxSequencedPayloadLen = MaxPayloadLen - SequenceHeaderLen

	// KeyLen is the size of Curve25519 public and private keys
	KeyLen = 32
)

var (
	// ErrMessageEmpty indicates an empty message was provided where one is required
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageTooShort indicates a ciphertext shorter than its fixed overhead
	ErrMessageTooShort = errors.New("message too short")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidatePayload checks a transport plaintext. Empty payloads are allowed.
func ValidatePayload(plaintext []byte) error {
	if len(plaintext) > MaxPayloadLen {
		return fmt.Errorf("%w: payload size %d exceeds limit %d", ErrMessageTooLarge, len(plaintext), MaxPayloadLen)
	}
	return nil
}

// ValidateSequencedPayload checks a plaintext destined for a sequenced frame.
func ValidateSequencedPayload(plaintext []byte) error {
	if len(plaintext) > MaxSequencedPayloadLen {
		return fmt.Errorf("%w: sequenced payload size %d exceeds limit %d",
			ErrMessageTooLarge, len(plaintext), MaxSequencedPayloadLen)
	}
	return nil
}

// ValidateCiphertext checks that a transport ciphertext is at least one tag
// long and no longer than MaxMessageLen.
func ValidateCiphertext(ciphertext []byte) error {
	if len(ciphertext) < TagLen {
		return fmt.Errorf("%w: ciphertext size %d below tag length %d", ErrMessageTooShort, len(ciphertext), TagLen)
	}
	if len(ciphertext) > MaxMessageLen {
		return fmt.Errorf("%w: ciphertext size %d exceeds limit %d", ErrMessageTooLarge, len(ciphertext), MaxMessageLen)
	}
	return nil
}

// ValidateHandshakeMessage checks an inbound handshake message. Handshake
// messages always carry at least an ephemeral key, so empty input is invalid.
func ValidateHandshakeMessage(message []byte) error {
	return ValidateMessageSize(message, MaxMessageLen)
}

// CiphertextLen returns the transport ciphertext size for a plaintext length.
func CiphertextLen(plaintextLen int) int {
	return plaintextLen + TagLen
}

// SequencedFrameLen returns the sequenced frame size for a plaintext length.
func SequencedFrameLen(plaintextLen int) int {
	return SequenceHeaderLen + plaintextLen + TagLen
}
