// Package noisemobile provides Noise Protocol channels for mobile and other
// native hosts.
//
// A Channel wraps a session.Session through its whole life: the handshake,
// the switch to transport encryption, and the optional replay guard and
// batch scheduler that are attached once the handshake completes.
//
// # Getting Started
//
//	options := noisemobile.NewOptions()
//
//	alice, err := noisemobile.NewChannel(noisemobile.Initiator, options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer alice.Close()
//
//	bob, _ := noisemobile.NewChannel(noisemobile.Responder, options)
//	defer bob.Close()
//
//	// Noise_XX: three messages of 32, 96 and 64 bytes
//	msg1, _ := alice.WriteHandshakeMessage(nil)
//	bob.ReadHandshakeMessage(msg1)
//	msg2, _ := bob.WriteHandshakeMessage(nil)
//	alice.ReadHandshakeMessage(msg2)
//	msg3, _ := alice.WriteHandshakeMessage(nil)
//	bob.ReadHandshakeMessage(msg3)
//
//	frame, _ := alice.EncryptSequenced([]byte("hello"))
//	plaintext, _ := bob.DecryptSequenced(frame)
//
// # Core Types
//
//   - [Channel]: a session plus its replay guard and batch scheduler
//   - [Options]: configuration for creating a channel
//
// The building blocks live in subpackages: session (lifecycle and errors),
// noise (flynn/noise engines), replay (sequenced frames and the sliding
// window), batch (queued crypto passes), crypto (keys, key storage, logging
// helpers) and limits (message size rules).
//
// # Delivery Modes
//
// Encrypt and Decrypt use the Noise transport nonce implicitly; ciphertexts
// must be decrypted in the order they were produced. EncryptSequenced and
// DecryptSequenced carry an explicit counter, tolerate reordering inside the
// replay window and reject duplicates. A channel should receive in one mode
// only. With both replay guard and batching enabled, batch flushes produce
// and consume sequenced frames.
//
// # Concurrency
//
// A Channel is not safe for concurrent use. Hosts that call from several
// threads must serialize access. The library starts no goroutines and owns
// no timers; ShouldAutoFlush tells the host when queued work is due.
//
// # C API
//
// The capi directory builds the package as a C shared library exposing the
// same operations through opaque handles and integer error codes.
package noisemobile
