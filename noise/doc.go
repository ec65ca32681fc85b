// Package noise provides the Noise Protocol engines used by noisemobile
// sessions.
//
// Handshake token processing, Diffie-Hellman, AEAD and transcript hashing
// are delegated to the formally specified flynn/noise library. This package
// adapts it to two small interfaces, [HandshakeEngine] and [TransportEngine],
// and enforces that a completed handshake is converted into a transport
// exactly once.
//
// # Pattern Selection Guide
//
//	Pattern │ Messages │ Remote static key after handshake
//	────────┼──────────┼──────────────────────────────────
//	XX      │ 3        │ yes (default)
//	IK      │ 2        │ yes, initiator must know it up-front
//	NN      │ 2        │ no
//
// All patterns use Curve25519, ChaCha20-Poly1305 and BLAKE2s, for example
// Noise_XX_25519_ChaChaPoly_BLAKE2s.
//
// With empty payloads the XX messages are 32, 96 and 64 bytes long:
//
//	Initiator                              Responder
//	─────────                              ─────────
//	-> e                 (32)
//	                                       <- e, ee, s, es   (96)
//	-> s, se             (64)
//	[transport established]
//
// # Example
//
//	hs, err := noise.NewHandshake(noise.Config{Role: noise.Initiator})
//	if err != nil {
//	    return err
//	}
//	msg1, err := hs.WriteMessage(nil)
//	// send msg1, receive msg2
//	_, err = hs.ReadMessage(msg2)
//	msg3, err := hs.WriteMessage(nil)
//	// send msg3
//	transport, err := hs.IntoTransport()
//	ciphertext, err := transport.Encrypt([]byte("hello"))
//
// # Nonces
//
// [TransportEngine.Encrypt] and [TransportEngine.Decrypt] use implicit
// counters, so ciphertexts must be decrypted in production order. The
// explicit-nonce variants let a caller carry the nonce on the wire and decrypt
// out of order; they share the monotonic send counter with Encrypt, so a
// nonce can never be used twice for sending.
//
// # Error Handling
//
//   - ErrOutOfTurn: a write was attempted where a read was expected
//   - ErrHandshakeComplete / ErrHandshakeConsumed: the handshake is finished
//   - ErrAuthentication: tag mismatch or truncated ciphertext
//   - ErrNonceExhausted / ErrNonceReused: nonce space violations
//
// Engines are not safe for concurrent use.
package noise
