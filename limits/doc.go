// Package limits provides centralized message size constants and validation
// functions for Noise sessions. Every layer (session, replay guard, batch
// scheduler and the C boundary) enforces the same limits through this package.
//
// # Message Size Hierarchy
//
//   - MaxMessageLen (65535 bytes): the Noise Protocol maximum for any single
//     message, handshake or transport, including the AEAD tag.
//
//   - MaxPayloadLen (65519 bytes): the largest plaintext a single transport
//     message can carry. This is MaxMessageLen minus TagLen.
//
//   - MaxSequencedPayloadLen (65511 bytes): the largest plaintext a sequenced
//     frame can carry once the 8-byte counter header is accounted for.
//
// # Validation Functions
//
//	if err := limits.ValidatePayload(plaintext); err != nil {
//	    // errors.Is(err, limits.ErrMessageTooLarge)
//	}
//
// Unlike handshake messages, transport payloads may be empty: an empty
// plaintext still produces a 16-byte authenticated message.
package limits
