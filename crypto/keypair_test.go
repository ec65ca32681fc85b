package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestGenerateKeyPair(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, kp1.Private, kp2.Private, "two generated keys must differ")
	assert.NotEqual(t, [32]byte{}, kp1.Public)

	derived, err := curve25519.X25519(kp1.Private[:], curve25519.Basepoint)
	require.NoError(t, err)
	assert.Equal(t, derived, kp1.Public[:], "public key must be X25519(private, base)")
}

func TestFromSecretKeyDeterministic(t *testing.T) {
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i + 1)
	}

	kp1, err := FromSecretKey(secret)
	require.NoError(t, err)
	kp2, err := FromSecretKey(secret)
	require.NoError(t, err)

	assert.Equal(t, kp1.Public, kp2.Public)
	assert.Equal(t, secret, kp1.Private)
}

func TestFromSecretKeyRejectsZeroKey(t *testing.T) {
	_, err := FromSecretKey([32]byte{})
	if !errors.Is(err, ErrZeroKey) {
		t.Fatalf("expected ErrZeroKey, got %v", err)
	}
}

func TestFromSecretKeyBytes(t *testing.T) {
	_, err := FromSecretKeyBytes(make([]byte, 16))
	assert.Error(t, err)

	key := bytes.Repeat([]byte{0x42}, 32)
	kp, err := FromSecretKeyBytes(key)
	require.NoError(t, err)
	assert.Equal(t, key, kp.Private[:])
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 32), key, "input slice must not be modified")
}
