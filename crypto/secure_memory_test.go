package crypto

import (
	"testing"
)

func TestSecureWipe(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	if err := SecureWipe(data); err != nil {
		t.Fatalf("SecureWipe failed: %v", err)
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}

	if err := SecureWipe(nil); err == nil {
		t.Error("expected error wiping nil data")
	}
}

func TestWipeKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}

	if err := WipeKeyPair(kp); err != nil {
		t.Fatalf("WipeKeyPair failed: %v", err)
	}
	if kp.Private != [32]byte{} || kp.Public != [32]byte{} {
		t.Fatal("key pair was not wiped")
	}

	if err := WipeKeyPair(nil); err == nil {
		t.Error("expected error wiping nil KeyPair")
	}
}

func TestZeroBytesToleratesEmpty(t *testing.T) {
	ZeroBytes(nil)
	ZeroBytes([]byte{})
}

func TestCloneBytes(t *testing.T) {
	if CloneBytes(nil) != nil {
		t.Error("clone of nil should be nil")
	}
	src := []byte{9, 8, 7}
	dst := CloneBytes(src)
	dst[0] = 0
	if src[0] != 9 {
		t.Error("clone must not alias the source")
	}
}
