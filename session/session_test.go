package session

import (
	"bytes"
	"errors"
	"testing"

	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/limits"
	"github.com/opd-ai/noisemobile/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handshakePair runs a complete handshake and returns both established sessions.
func handshakePair(t testing.TB, opts ...Option) (*Session, *Session) {
	t.Helper()
	initiator, err := New(Initiator, opts...)
	require.NoError(t, err)
	responder, err := New(Responder, opts...)
	require.NoError(t, err)
	completeHandshake(t, initiator, responder)
	return initiator, responder
}

func completeHandshake(t testing.TB, initiator, responder *Session) {
	t.Helper()
	sender, receiver := initiator, responder
	for !initiator.IsEstablished() || !responder.IsEstablished() {
		msg, err := sender.WriteHandshakeMessage(nil)
		require.NoError(t, err)
		_, err = receiver.ReadHandshakeMessage(msg)
		require.NoError(t, err)
		sender, receiver = receiver, sender
	}
}

func TestEndToEndXX(t *testing.T) {
	initiator, err := New(Initiator)
	require.NoError(t, err)
	responder, err := New(Responder)
	require.NoError(t, err)
	defer initiator.Close()
	defer responder.Close()

	msg1, err := initiator.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	assert.Len(t, msg1, 32)
	_, err = responder.ReadHandshakeMessage(msg1)
	require.NoError(t, err)

	msg2, err := responder.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	assert.Len(t, msg2, 96)
	_, err = initiator.ReadHandshakeMessage(msg2)
	require.NoError(t, err)
	assert.False(t, initiator.IsEstablished())

	msg3, err := initiator.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	assert.Len(t, msg3, 64)
	assert.True(t, initiator.IsEstablished(), "writing the final message establishes the writer")
	assert.False(t, responder.IsEstablished())

	_, err = responder.ReadHandshakeMessage(msg3)
	require.NoError(t, err)
	assert.True(t, responder.IsEstablished())

	ct, err := initiator.Encrypt([]byte("hello"))
	require.NoError(t, err)
	assert.Len(t, ct, 21)

	pt, err := responder.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))
}

func TestPublicKeysAreExchanged(t *testing.T) {
	initiator, responder := handshakePair(t)

	initLocal, err := initiator.LocalPublicKey()
	require.NoError(t, err)
	respLocal, err := responder.LocalPublicKey()
	require.NoError(t, err)

	initRemote, err := initiator.RemotePublicKey()
	require.NoError(t, err)
	respRemote, err := responder.RemotePublicKey()
	require.NoError(t, err)

	assert.Equal(t, respLocal, initRemote)
	assert.Equal(t, initLocal, respRemote)

	h1, err := initiator.HandshakeHash()
	require.NoError(t, err)
	h2, err := responder.HandshakeHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestNewWithStaticKey(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	s, err := NewWithStaticKey(Initiator, kp.Private[:])
	require.NoError(t, err)
	pub, err := s.LocalPublicKey()
	require.NoError(t, err)
	assert.Equal(t, kp.Public[:], pub)

	tests := []struct {
		name string
		key  []byte
		kind Kind
	}{
		{"nil key", nil, InvalidParameter},
		{"short key", make([]byte, 31), InvalidParameter},
		{"long key", make([]byte, 33), InvalidParameter},
		{"zero key", make([]byte, 32), HandshakeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithStaticKey(Responder, tt.key)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestStateGating(t *testing.T) {
	s, err := New(Initiator)
	require.NoError(t, err)

	_, err = s.Encrypt([]byte("early"))
	assert.Equal(t, InvalidState, KindOf(err))
	_, err = s.Decrypt(make([]byte, 32))
	assert.Equal(t, InvalidState, KindOf(err))
	_, err = s.RemotePublicKey()
	assert.Equal(t, InvalidState, KindOf(err))
	_, err = s.HandshakeHash()
	assert.Equal(t, InvalidState, KindOf(err))
	_, err = s.SendNonce()
	assert.Equal(t, InvalidState, KindOf(err))

	initiator, responder := handshakePair(t)
	_, err = initiator.WriteHandshakeMessage(nil)
	assert.Equal(t, InvalidState, KindOf(err))
	_, err = responder.ReadHandshakeMessage(make([]byte, 64))
	assert.Equal(t, InvalidState, KindOf(err))
	assert.True(t, responder.IsEstablished(), "state errors are not terminal")
}

func TestOutOfTurnIsNotTerminal(t *testing.T) {
	responder, err := New(Responder)
	require.NoError(t, err)

	_, err = responder.WriteHandshakeMessage(nil)
	assert.Equal(t, InvalidState, KindOf(err))
	assert.True(t, responder.IsHandshaking())

	initiator, err := New(Initiator)
	require.NoError(t, err)
	completeHandshake(t, initiator, responder)
}

func TestMalformedHandshakeIsTerminal(t *testing.T) {
	initiator, err := New(Initiator)
	require.NoError(t, err)
	responder, err := New(Responder)
	require.NoError(t, err)

	msg1, err := initiator.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadHandshakeMessage(msg1)
	require.NoError(t, err)
	msg2, err := responder.WriteHandshakeMessage(nil)
	require.NoError(t, err)

	msg2[40] ^= 0xff
	_, err = initiator.ReadHandshakeMessage(msg2)
	require.Error(t, err)
	assert.Equal(t, ProtocolError, KindOf(err))
	assert.True(t, initiator.IsFailed())
	assert.False(t, initiator.IsHandshaking())
	assert.False(t, initiator.IsEstablished())

	// No retry on a failed session
	_, err = initiator.ReadHandshakeMessage(msg2)
	assert.Equal(t, InvalidState, KindOf(err))
	_, err = initiator.WriteHandshakeMessage(nil)
	assert.Equal(t, InvalidState, KindOf(err))
}

func TestHandshakeInputValidation(t *testing.T) {
	responder, err := New(Responder)
	require.NoError(t, err)

	_, err = responder.ReadHandshakeMessage(nil)
	assert.Equal(t, InvalidParameter, KindOf(err))
	_, err = responder.ReadHandshakeMessage(make([]byte, 65536))
	assert.Equal(t, InvalidParameter, KindOf(err))
	assert.True(t, responder.IsHandshaking(), "parameter errors are not terminal")

	initiator, err := New(Initiator)
	require.NoError(t, err)
	_, err = initiator.WriteHandshakeMessage(make([]byte, 65520))
	assert.Equal(t, InvalidParameter, KindOf(err))
	assert.True(t, initiator.IsHandshaking())
}

func TestHandshakePayloadLimit(t *testing.T) {
	initiator, err := New(Initiator)
	require.NoError(t, err)
	responder, err := New(Responder)
	require.NoError(t, err)

	// msg1 of XX carries 32 bytes of ephemeral key in front of the payload
	_, err = initiator.WriteHandshakeMessage(make([]byte, limits.MaxPayloadLen))
	assert.Equal(t, InvalidParameter, KindOf(err))
	assert.ErrorIs(t, err, limits.ErrMessageTooLarge)
	_, err = initiator.WriteHandshakeMessage(make([]byte, limits.MaxMessageLen-31))
	assert.Equal(t, InvalidParameter, KindOf(err))
	assert.True(t, initiator.IsHandshaking(), "an oversized payload is not terminal")
	assert.Equal(t, uint64(0), initiator.Stats().HandshakeMessages)

	largest := make([]byte, limits.MaxMessageLen-32)
	msg1, err := initiator.WriteHandshakeMessage(largest)
	require.NoError(t, err)
	assert.Len(t, msg1, limits.MaxMessageLen)
	p, err := responder.ReadHandshakeMessage(msg1)
	require.NoError(t, err)
	assert.Len(t, p, len(largest))

	// msg2 adds 96 bytes
	_, err = responder.WriteHandshakeMessage(make([]byte, limits.MaxMessageLen-95))
	assert.Equal(t, InvalidParameter, KindOf(err))
	msg2, err := responder.WriteHandshakeMessage(make([]byte, limits.MaxMessageLen-96))
	require.NoError(t, err)
	assert.Len(t, msg2, limits.MaxMessageLen)
	_, err = initiator.ReadHandshakeMessage(msg2)
	require.NoError(t, err)

	msg3, err := initiator.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadHandshakeMessage(msg3)
	require.NoError(t, err)
	assert.True(t, responder.IsEstablished())
}

func TestHandshakePayloads(t *testing.T) {
	initiator, err := New(Initiator)
	require.NoError(t, err)
	responder, err := New(Responder)
	require.NoError(t, err)

	msg1, err := initiator.WriteHandshakeMessage([]byte("one"))
	require.NoError(t, err)
	p, err := responder.ReadHandshakeMessage(msg1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(p))

	msg2, err := responder.WriteHandshakeMessage([]byte("two"))
	require.NoError(t, err)
	p, err = initiator.ReadHandshakeMessage(msg2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(p))

	msg3, err := initiator.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	p, err = responder.ReadHandshakeMessage(msg3)
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestHandshakeOverhead(t *testing.T) {
	initiator, err := New(Initiator)
	require.NoError(t, err)
	n, err := initiator.HandshakeOverhead()
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	msg, err := initiator.WriteHandshakeMessage([]byte("abc"))
	require.NoError(t, err)
	assert.Len(t, msg, n+3)

	n, err = initiator.HandshakeOverhead()
	require.NoError(t, err)
	assert.Equal(t, 96, n, "overhead of the message we expect to read")
}

func TestRoundTripSizes(t *testing.T) {
	initiator, responder := handshakePair(t)

	for _, size := range []int{0, 1, 15, 16, 17, 255, 1024, 4096, 32768, 65518, 65519} {
		plaintext := bytes.Repeat([]byte{byte(size)}, size)
		ct, err := initiator.Encrypt(plaintext)
		require.NoError(t, err, "size %d", size)
		assert.Len(t, ct, size+16)

		pt, err := responder.Decrypt(ct)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, len(plaintext), len(pt))
		assert.True(t, bytes.Equal(plaintext, pt))
	}

	_, err := initiator.Encrypt(make([]byte, 65520))
	assert.Equal(t, InvalidParameter, KindOf(err))
}

func TestTamperRejectionKeepsSessionUsable(t *testing.T) {
	initiator, responder := handshakePair(t)

	ct, err := initiator.Encrypt([]byte("sensitive"))
	require.NoError(t, err)

	for i := 0; i < len(ct)*8; i++ {
		tampered := append([]byte(nil), ct...)
		tampered[i/8] ^= 1 << (i % 8)
		_, err := responder.Decrypt(tampered)
		require.Error(t, err)
		require.Equal(t, DecryptionFailed, KindOf(err))
	}
	assert.True(t, responder.IsEstablished())
	assert.Equal(t, uint64(len(ct)*8), responder.Stats().AuthFailures)

	pt, err := responder.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "sensitive", string(pt))
}

func TestDecryptShortInput(t *testing.T) {
	_, responder := handshakePair(t)
	_, err := responder.Decrypt(make([]byte, 10))
	assert.Equal(t, DecryptionFailed, KindOf(err))
	_, err = responder.Decrypt(make([]byte, 65536))
	assert.Equal(t, InvalidParameter, KindOf(err))
}

func TestProcessAndGenerateMessage(t *testing.T) {
	initiator, err := New(Initiator)
	require.NoError(t, err)
	responder, err := New(Responder)
	require.NoError(t, err)

	sender, receiver := initiator, responder
	for i := 0; i < 3; i++ {
		msg, err := sender.GenerateMessage(nil)
		require.NoError(t, err)
		_, err = receiver.ProcessMessage(msg)
		require.NoError(t, err)
		sender, receiver = receiver, sender
	}
	require.True(t, initiator.IsEstablished())
	require.True(t, responder.IsEstablished())

	ct, err := responder.GenerateMessage([]byte("data"))
	require.NoError(t, err)
	pt, err := initiator.ProcessMessage(ct)
	require.NoError(t, err)
	assert.Equal(t, "data", string(pt))
}

func TestStats(t *testing.T) {
	initiator, responder := handshakePair(t)
	assert.Equal(t, uint64(3), initiator.Stats().HandshakeMessages)
	assert.Equal(t, uint64(3), responder.Stats().HandshakeMessages)

	for i := 0; i < 3; i++ {
		ct, err := initiator.Encrypt([]byte("x"))
		require.NoError(t, err)
		_, err = responder.Decrypt(ct)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(3), initiator.Stats().MessagesEncrypted)
	assert.Equal(t, uint64(3), responder.Stats().MessagesDecrypted)
}

func TestExplicitNonceOutOfOrder(t *testing.T) {
	initiator, responder := handshakePair(t)

	n, err := initiator.SendNonce()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	ct0, err := initiator.EncryptWithNonce(0, []byte("ad"), []byte("first"))
	require.NoError(t, err)
	ct1, err := initiator.EncryptWithNonce(1, []byte("ad"), []byte("second"))
	require.NoError(t, err)

	pt, err := responder.DecryptWithNonce(1, []byte("ad"), ct1)
	require.NoError(t, err)
	assert.Equal(t, "second", string(pt))
	pt, err = responder.DecryptWithNonce(0, []byte("ad"), ct0)
	require.NoError(t, err)
	assert.Equal(t, "first", string(pt))

	_, err = initiator.EncryptWithNonce(1, nil, nil)
	assert.Equal(t, EncryptionFailed, KindOf(err))
	assert.True(t, errors.Is(err, noise.ErrNonceReused))
}

func TestNNPattern(t *testing.T) {
	initiator, responder := handshakePair(t, WithPattern(noise.PatternNN))

	_, err := initiator.LocalPublicKey()
	assert.Equal(t, InvalidState, KindOf(err))
	_, err = responder.RemotePublicKey()
	assert.Equal(t, InvalidState, KindOf(err))
	assert.True(t, errors.Is(err, ErrNoRemoteKey))

	ct, err := initiator.Encrypt([]byte("anon"))
	require.NoError(t, err)
	pt, err := responder.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "anon", string(pt))
}

func TestIKPattern(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	initiator, err := New(Initiator, WithPattern(noise.PatternIK), WithPeerStatic(kp.Public[:]))
	require.NoError(t, err)
	responder, err := NewWithStaticKey(Responder, kp.Private[:], WithPattern(noise.PatternIK))
	require.NoError(t, err)

	completeHandshake(t, initiator, responder)
	assert.Equal(t, uint64(2), initiator.Stats().HandshakeMessages)
	assert.Equal(t, uint64(2), responder.Stats().HandshakeMessages)

	remote, err := initiator.RemotePublicKey()
	require.NoError(t, err)
	assert.Equal(t, kp.Public[:], remote)

	_, err = New(Initiator, WithPattern(noise.PatternIK))
	assert.Equal(t, HandshakeFailed, KindOf(err))
}

func TestPrologueMismatchFails(t *testing.T) {
	initiator, err := New(Initiator, WithPrologue([]byte("app v1")))
	require.NoError(t, err)
	responder, err := New(Responder, WithPrologue([]byte("app v2")))
	require.NoError(t, err)

	msg1, err := initiator.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadHandshakeMessage(msg1)
	require.NoError(t, err)
	msg2, err := responder.WriteHandshakeMessage(nil)
	require.NoError(t, err)
	_, err = initiator.ReadHandshakeMessage(msg2)
	assert.Equal(t, ProtocolError, KindOf(err))
	assert.True(t, initiator.IsFailed())
}

func TestCloseIsIdempotent(t *testing.T) {
	initiator, _ := handshakePair(t)

	require.NoError(t, initiator.Close())
	require.NoError(t, initiator.Close())

	assert.False(t, initiator.IsEstablished())
	_, err := initiator.Encrypt([]byte("late"))
	assert.Equal(t, InvalidState, KindOf(err))
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = initiator.LocalPublicKey()
	assert.Equal(t, InvalidState, KindOf(err))
}

func TestCloseDuringHandshake(t *testing.T) {
	fake := &fakeEngine{}
	s, err := New(Initiator, WithFactory(func(noise.Config) (noise.HandshakeEngine, error) {
		return fake, nil
	}))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, fake.destroyed)
	_, err = s.WriteHandshakeMessage(nil)
	assert.Equal(t, InvalidState, KindOf(err))
}

func TestFactoryFailure(t *testing.T) {
	_, err := New(Initiator, WithFactory(func(noise.Config) (noise.HandshakeEngine, error) {
		return nil, errors.New("no engine")
	}))
	assert.Equal(t, HandshakeFailed, KindOf(err))
}

func TestTransitionFailureIsTerminal(t *testing.T) {
	fake := &fakeEngine{completeAfterWrite: true, transportErr: errors.New("split failed")}
	s, err := New(Initiator, WithFactory(func(noise.Config) (noise.HandshakeEngine, error) {
		return fake, nil
	}))
	require.NoError(t, err)

	_, err = s.WriteHandshakeMessage(nil)
	assert.Equal(t, HandshakeFailed, KindOf(err))
	assert.True(t, s.IsFailed())
	assert.True(t, fake.destroyed)
}

func TestEngineWriteFailureIsTerminal(t *testing.T) {
	fake := &fakeEngine{writeErr: errors.New("rng failure")}
	s, err := New(Initiator, WithFactory(func(noise.Config) (noise.HandshakeEngine, error) {
		return fake, nil
	}))
	require.NoError(t, err)

	_, err = s.WriteHandshakeMessage(nil)
	assert.Equal(t, HandshakeFailed, KindOf(err))
	assert.True(t, s.IsFailed())
}

// fakeEngine is a scripted HandshakeEngine.
type fakeEngine struct {
	writeErr           error
	transportErr       error
	completeAfterWrite bool
	complete           bool
	destroyed          bool
}

func (f *fakeEngine) WriteMessage(payload []byte) ([]byte, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.complete = f.completeAfterWrite
	return append([]byte{0x01}, payload...), nil
}

func (f *fakeEngine) ReadMessage(message []byte) ([]byte, error) {
	return message, nil
}

func (f *fakeEngine) IsComplete() bool { return f.complete }

func (f *fakeEngine) NextOverhead() (int, error) { return 1, nil }

func (f *fakeEngine) IntoTransport() (noise.TransportEngine, error) {
	if f.transportErr != nil {
		return nil, f.transportErr
	}
	return nil, errors.New("fake engine has no transport")
}

func (f *fakeEngine) LocalStaticKey() []byte { return make([]byte, 32) }

func (f *fakeEngine) Destroy() { f.destroyed = true }
