package noise

import (
	"fmt"
	"math"

	"github.com/flynn/noise"
	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/limits"
)

// Transport implements TransportEngine on top of the split flynn/noise
// ciphers. Nonces are tracked here rather than inside noise.CipherState so
// the explicit-nonce path can share the same monotonic send counter.
type Transport struct {
	send         noise.Cipher
	recv         noise.Cipher
	sendNonce    uint64
	recvNonce    uint64
	remoteStatic []byte
	hash         []byte
}

var _ TransportEngine = (*Transport)(nil)

func newTransport(send, recv noise.Cipher, remoteStatic, hash []byte) *Transport {
	return &Transport{
		send:         send,
		recv:         recv,
		remoteStatic: crypto.CloneBytes(remoteStatic),
		hash:         crypto.CloneBytes(hash),
	}
}

// Encrypt seals plaintext under the next implicit send nonce.
func (t *Transport) Encrypt(plaintext []byte) ([]byte, error) {
	if t.send == nil {
		return nil, ErrDestroyed
	}
	// 2^64-1 is reserved by the Noise specification
	if t.sendNonce == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	out := t.send.Encrypt(make([]byte, 0, len(plaintext)+limits.TagLen), t.sendNonce, nil, plaintext)
	t.sendNonce++
	return out, nil
}

// Decrypt opens ciphertext under the next implicit receive nonce. The nonce
// only advances on success, so a forged message does not desynchronise the
// stream.
func (t *Transport) Decrypt(ciphertext []byte) ([]byte, error) {
	if t.recv == nil {
		return nil, ErrDestroyed
	}
	if len(ciphertext) < limits.TagLen {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrAuthentication)
	}
	if t.recvNonce == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	out, err := t.recv.Decrypt(nil, t.recvNonce, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	t.recvNonce++
	return out, nil
}

// EncryptWithNonce seals plaintext under nonce n. n must not be below the
// current send nonce; afterwards the send nonce is n+1.
func (t *Transport) EncryptWithNonce(n uint64, ad, plaintext []byte) ([]byte, error) {
	if t.send == nil {
		return nil, ErrDestroyed
	}
	if n == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	if n < t.sendNonce {
		return nil, fmt.Errorf("%w: nonce %d below next %d", ErrNonceReused, n, t.sendNonce)
	}
	out := t.send.Encrypt(make([]byte, 0, len(plaintext)+limits.TagLen), n, ad, plaintext)
	t.sendNonce = n + 1
	return out, nil
}

// DecryptWithNonce opens ciphertext under nonce n without touching the
// implicit receive nonce. Replay detection is the caller's job.
func (t *Transport) DecryptWithNonce(n uint64, ad, ciphertext []byte) ([]byte, error) {
	if t.recv == nil {
		return nil, ErrDestroyed
	}
	if n == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	if len(ciphertext) < limits.TagLen {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrAuthentication)
	}
	out, err := t.recv.Decrypt(nil, n, ad, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return out, nil
}

// SendNonce returns the nonce the next Encrypt will use.
func (t *Transport) SendNonce() uint64 {
	return t.sendNonce
}

// RemoteStaticKey returns a copy of the peer's static key, or nil when the
// pattern does not authenticate the peer.
func (t *Transport) RemoteStaticKey() []byte {
	return crypto.CloneBytes(t.remoteStatic)
}

// HandshakeHash returns a copy of the final handshake transcript hash.
func (t *Transport) HandshakeHash() []byte {
	return crypto.CloneBytes(t.hash)
}

// Destroy drops the ciphers and wipes the copies held here. The AEAD key
// schedule inside flynn/noise is unexported and is released to the garbage
// collector.
func (t *Transport) Destroy() {
	t.send, t.recv = nil, nil
	crypto.ZeroBytes(t.remoteStatic)
	crypto.ZeroBytes(t.hash)
	t.remoteStatic, t.hash = nil, nil
}
