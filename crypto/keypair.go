package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// ErrZeroKey is returned when a private key consists solely of zero bytes.
var ErrZeroKey = errors.New("invalid secret key: all zeros")

// KeyPair represents a Curve25519 static key pair used as a Noise identity.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random Curve25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPairFrom(rand.Reader)
}

func generateKeyPairFrom(r io.Reader) (*KeyPair, error) {
	var secret [32]byte
	if _, err := io.ReadFull(r, secret[:]); err != nil {
		return nil, fmt.Errorf("failed to read key entropy: %w", err)
	}
	defer ZeroBytes(secret[:])
	return FromSecretKey(secret)
}

// FromSecretKey creates a key pair from an existing private key, deriving
// the public half with X25519 against the base point.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, ErrZeroKey
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], public)
	return kp, nil
}

// FromSecretKeyBytes is FromSecretKey for slices. The key must be exactly
// 32 bytes long.
func FromSecretKeyBytes(secretKey []byte) (*KeyPair, error) {
	if len(secretKey) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(secretKey))
	}
	var arr [32]byte
	copy(arr[:], secretKey)
	defer ZeroBytes(arr[:])
	return FromSecretKey(arr)
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
