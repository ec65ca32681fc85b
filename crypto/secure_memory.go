package crypto

import (
	"errors"
	"runtime"
)

// SecureWipe overwrites the contents of a byte slice containing sensitive
// data with zeros. It returns an error if the byte slice is nil.
//
//go:noinline
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	for i := range data {
		data[i] = 0
	}

	// Keep data live until after the loop so the stores are not elided
	runtime.KeepAlive(&data)
	return nil
}

// ZeroBytes erases the contents of a byte slice containing sensitive data.
// Nil and empty slices are ignored.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyPair securely erases both halves of a KeyPair.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return errors.New("cannot wipe nil KeyPair")
	}
	ZeroBytes(kp.Public[:])
	return SecureWipe(kp.Private[:])
}

// CloneBytes returns a copy of b, or nil for an empty input. Used wherever a
// caller-owned buffer must not alias session-owned memory.
func CloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
