package noise

import (
	"testing"
)

// FuzzHandshakeMessage feeds arbitrary bytes to a responder expecting the
// first XX message. It must return an error or a payload, never panic.
func FuzzHandshakeMessage(f *testing.F) {
	initiator, err := NewHandshake(Config{Role: Initiator})
	if err != nil {
		f.Fatal(err)
	}
	msg1, err := initiator.WriteMessage(nil)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(msg1)
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add(make([]byte, 1024))

	f.Fuzz(func(t *testing.T, data []byte) {
		responder, err := NewHandshake(Config{Role: Responder})
		if err != nil {
			t.Fatal(err)
		}
		_, _ = responder.ReadMessage(data)
	})
}

// FuzzTransportDecrypt checks that arbitrary ciphertexts never decrypt and
// never panic.
func FuzzTransportDecrypt(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 16))
	f.Add(make([]byte, 64))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, rt := transportPair(t)
		if _, err := rt.Decrypt(data); err == nil {
			t.Fatalf("random %d-byte input decrypted", len(data))
		}
	})
}
