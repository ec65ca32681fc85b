// Package session implements the lifecycle of a Noise channel: a Session
// starts in the handshake phase, exchanges handshake messages through a
// noise.HandshakeEngine and, when the pattern completes, swaps that engine
// for the transport engine it yields. From then on it encrypts and decrypts
// transport messages.
//
//	init, _ := session.New(session.Initiator)
//	resp, _ := session.New(session.Responder)
//
//	msg1, _ := init.WriteHandshakeMessage(nil) // 32 bytes
//	resp.ReadHandshakeMessage(msg1)
//	msg2, _ := resp.WriteHandshakeMessage(nil) // 96 bytes
//	init.ReadHandshakeMessage(msg2)
//	msg3, _ := init.WriteHandshakeMessage(nil) // 64 bytes
//	resp.ReadHandshakeMessage(msg3)
//
//	ct, _ := init.Encrypt([]byte("hello")) // 21 bytes
//	pt, _ := resp.Decrypt(ct)
//
// A handshake failure moves the session to the terminal Failed phase.
// Transport failures are rejected one message at a time and leave the
// session usable.
//
// Errors are *Error values carrying a Kind. KindOf recovers the Kind through
// any wrapping; the numeric Kind values are the codes used by the C API.
package session
