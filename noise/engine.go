package noise

import (
	"errors"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrHandshakeConsumed indicates IntoTransport was already called
	ErrHandshakeConsumed = errors.New("handshake state already consumed")
	// ErrOutOfTurn indicates a write was attempted when a read was expected, or vice versa
	ErrOutOfTurn = errors.New("handshake message out of turn")
	// ErrNoStaticKey indicates the pattern carries no static key for this side
	ErrNoStaticKey = errors.New("no static key for this pattern")
	// ErrAuthentication indicates an AEAD tag mismatch or malformed ciphertext
	ErrAuthentication = errors.New("message authentication failed")
	// ErrNonceExhausted indicates the transport nonce space is used up
	ErrNonceExhausted = errors.New("transport nonce exhausted")
	// ErrNonceReused indicates an explicit nonce at or below one already used for sending
	ErrNonceReused = errors.New("transport nonce already used")
	// ErrDestroyed indicates the engine was destroyed
	ErrDestroyed = errors.New("engine destroyed")
)

// HandshakeEngine produces and consumes handshake-pattern messages. Once
// IsComplete reports true, IntoTransport yields the transport engine exactly
// once; the handshake engine is unusable afterwards.
type HandshakeEngine interface {
	WriteMessage(payload []byte) ([]byte, error)
	ReadMessage(message []byte) ([]byte, error)
	IsComplete() bool
	NextOverhead() (int, error)
	IntoTransport() (TransportEngine, error)
	LocalStaticKey() []byte
	Destroy()
}

// TransportEngine performs authenticated encryption after the handshake.
//
// Encrypt and Decrypt use implicit, strictly increasing nonces: ciphertexts
// must be decrypted in the order they were produced. EncryptWithNonce and
// DecryptWithNonce take the nonce from the caller, which allows out-of-order
// delivery when the nonce travels with the message.
type TransportEngine interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	EncryptWithNonce(n uint64, ad, plaintext []byte) ([]byte, error)
	DecryptWithNonce(n uint64, ad, ciphertext []byte) ([]byte, error)
	SendNonce() uint64
	RemoteStaticKey() []byte
	HandshakeHash() []byte
	Destroy()
}

// Factory builds a handshake engine from a configuration. Sessions accept a
// Factory so tests can substitute engines.
type Factory func(cfg Config) (HandshakeEngine, error)

// DefaultFactory builds flynn/noise backed engines.
func DefaultFactory(cfg Config) (HandshakeEngine, error) {
	return NewHandshake(cfg)
}
