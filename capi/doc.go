// Package main builds noisemobile as a C shared library for mobile and
// other native hosts.
//
// # Build Instructions
//
//	go build -buildmode=c-shared -o libnoisemobile.so ./capi/
//
// This generates libnoisemobile.so and libnoisemobile.h. The exports use
// plain C types: codes, modes and error outs are int, lengths are size_t and
// byte buffers are unsigned char*.
//
// # C API Usage
//
//	#include "libnoisemobile.h"
//
//	int err;
//	void *alice = noise_session_new(0, &err); // 0 initiator, 1 responder
//	void *bob = noise_session_new(1, &err);
//
//	unsigned char msg[256];
//	size_t len = sizeof(msg);
//	noise_write_message(alice, NULL, 0, msg, &len); // 32 bytes
//	...
//	noise_session_free(alice);
//	noise_session_free(bob);
//
// # Error Codes
//
//	0 SUCCESS            5 DECRYPTION_FAILED
//	1 INVALID_PARAMETER  6 BUFFER_TOO_SMALL
//	2 OUT_OF_MEMORY      7 INVALID_STATE
//	3 HANDSHAKE_FAILED   8 PROTOCOL_ERROR
//	4 ENCRYPTION_FAILED
//
// noise_error_string returns a static description of each code. Replayed or
// stale sequenced frames report DECRYPTION_FAILED.
//
// # Buffers
//
// Every call that produces output takes a buffer and an in/out length. On
// success the length is set to the bytes written. On BUFFER_TOO_SMALL it is
// set to the bytes required and nothing is written; the call has not
// advanced any protocol state, so retrying with a larger buffer succeeds.
// Passing a NULL buffer with a length of 0 is a size query. A handshake
// message whose payload would push it past noise_max_message_len is refused
// with INVALID_PARAMETER and the handshake stays usable.
//
// Batch flushes write each result as a 4-byte big-endian length followed by
// the bytes, and report the number of results separately. When a queued item
// fails, the results before it are still written, the failing item is
// dropped and the rest stay queued.
//
// # Handles
//
// Handles are opaque. NULL or unknown handles are rejected with
// INVALID_PARAMETER and never dereferenced. noise_session_free on NULL is a
// no-op. Calls on one handle must not run concurrently; the library starts no
// threads of its own.
//
// # Process State
//
// noise_init sets up the handle table and default options and is called
// implicitly on first use. noise_shutdown frees every live handle.
package main
