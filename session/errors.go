package session

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The numeric values are the error codes exposed
// across the foreign-call boundary and must not change.
type Kind int

const (
	Success Kind = iota
	InvalidParameter
	OutOfMemory
	HandshakeFailed
	EncryptionFailed
	DecryptionFailed
	BufferTooSmall
	InvalidState
	ProtocolError
)

var kindNames = [...]string{
	Success:          "success",
	InvalidParameter: "invalid parameter",
	OutOfMemory:      "out of memory",
	HandshakeFailed:  "handshake failed",
	EncryptionFailed: "encryption failed",
	DecryptionFailed: "decryption failed",
	BufferTooSmall:   "buffer too small",
	InvalidState:     "invalid state",
	ProtocolError:    "protocol error",
}

// String returns a human readable description of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("unknown error (%d)", int(k))
	}
	return kindNames[k]
}

// Error is the error type returned by Session operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so callers can write
// errors.Is(err, &session.Error{Kind: session.InvalidState}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

var (
	// ErrNotHandshaking is wrapped when a handshake call is made outside the handshake phase
	ErrNotHandshaking = errors.New("session is not handshaking")
	// ErrNotEstablished is wrapped when a transport call is made before the handshake completes
	ErrNotEstablished = errors.New("session is not established")
	// ErrClosed is wrapped for any call on a closed session
	ErrClosed = errors.New("session closed")
	// ErrNoRemoteKey is wrapped when the pattern never learns the peer's static key
	ErrNoRemoteKey = errors.New("pattern does not authenticate the remote static key")
)

// KindOf returns the Kind carried by err. Errors that do not wrap an *Error
// are reported as ProtocolError; nil is Success.
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ProtocolError
}
