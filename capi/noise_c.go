package main

/*
#include <stddef.h>
*/
import "C"

import (
	"encoding/binary"
	"unsafe"

	"github.com/opd-ai/noisemobile"
	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/limits"
	"github.com/sirupsen/logrus"
)

// This is the main package required for building as c-shared.
func main() {}

// Session modes accepted by noise_session_new.
const (
	modeInitiator = 0
	modeResponder = 1
)

// batchFrameHeader is the length prefix written before each flushed item.
const batchFrameHeader = 4

func roleFor(mode C.int) (noisemobile.Role, bool) {
	switch mode {
	case modeInitiator:
		return noisemobile.Initiator, true
	case modeResponder:
		return noisemobile.Responder, true
	default:
		return 0, false
	}
}

// recoverHandle is recoverPanic for the constructors, which return a handle.
func recoverHandle(function string, h *unsafe.Pointer, errOut *C.int) {
	if r := recover(); r != nil {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"panic":    r,
		}).Error("Recovered panic at C boundary")
		*h = nil
		setError(errOut, codeProtocolError)
	}
}

func logFailure(function string, code int, err error) {
	if err == nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": function,
		"code":     code,
		"error":    err.Error(),
	}).Debug("C API call failed")
}

//export noise_init
func noise_init() (code C.int) {
	defer recoverPanic("noise_init", &code)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.ensureInit()
	return codeSuccess
}

//export noise_shutdown
func noise_shutdown() {
	var code C.int
	defer recoverPanic("noise_shutdown", &code)
	closed := state.shutdown()
	logrus.WithFields(logrus.Fields{
		"function":       "noise_shutdown",
		"closed_handles": closed,
	}).Debug("C API runtime shut down")
}

// noise_set_log_level takes a logrus level: 0 panic through 6 trace.
//
//export noise_set_log_level
func noise_set_log_level(level C.int) (code C.int) {
	defer recoverPanic("noise_set_log_level", &code)
	if level < C.int(logrus.PanicLevel) || level > C.int(logrus.TraceLevel) {
		return codeInvalidParameter
	}
	logrus.SetLevel(logrus.Level(level))
	return codeSuccess
}

//export noise_session_new
func noise_session_new(mode C.int, errOut *C.int) (h unsafe.Pointer) {
	defer recoverHandle("noise_session_new", &h, errOut)

	role, ok := roleFor(mode)
	if !ok {
		setError(errOut, codeInvalidParameter)
		return nil
	}
	ch, err := noisemobile.NewChannel(role, state.defaultOptions())
	if err != nil {
		code := codeOf(err)
		logFailure("noise_session_new", code, err)
		setError(errOut, code)
		return nil
	}
	return registerChannel(ch, errOut)
}

//export noise_session_new_with_key
func noise_session_new_with_key(key *C.uchar, keyLen C.size_t, mode C.int, errOut *C.int) (h unsafe.Pointer) {
	defer recoverHandle("noise_session_new_with_key", &h, errOut)

	role, ok := roleFor(mode)
	if !ok || key == nil || keyLen != limits.KeyLen {
		setError(errOut, codeInvalidParameter)
		return nil
	}
	keyBytes, _ := inputBytes(key, keyLen)
	ch, err := noisemobile.NewChannelWithKey(role, keyBytes, state.defaultOptions())
	if err != nil {
		code := codeOf(err)
		logFailure("noise_session_new_with_key", code, err)
		setError(errOut, code)
		return nil
	}
	return registerChannel(ch, errOut)
}

func registerChannel(ch *noisemobile.Channel, errOut *C.int) unsafe.Pointer {
	h := state.register(ch)
	if h == nil {
		_ = ch.Close()
		setError(errOut, codeOutOfMemory)
		return nil
	}
	setError(errOut, codeSuccess)
	return h
}

// noise_session_free releases a handle. NULL and unknown handles are ignored.
//
//export noise_session_free
func noise_session_free(h unsafe.Pointer) {
	var code C.int
	defer recoverPanic("noise_session_free", &code)
	if ch, ok := state.release(h); ok {
		_ = ch.Close()
	}
}

//export noise_write_message
func noise_write_message(h unsafe.Pointer, payload *C.uchar, payloadLen C.size_t, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_write_message", &code)
	return C.int(writeMessage(h, payload, payloadLen, out, outLen))
}

func writeMessage(h unsafe.Pointer, payload *C.uchar, payloadLen C.size_t, out *C.uchar, outLen *C.size_t) int {
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	in, ok := inputBytes(payload, payloadLen)
	if !ok || limits.ValidatePayload(in) != nil {
		return codeInvalidParameter
	}
	overhead, err := ch.Session().HandshakeOverhead()
	if err != nil {
		return codeOf(err)
	}
	if overhead+len(in) > limits.MaxMessageLen {
		return codeInvalidParameter
	}
	// Size first: a retry must find the handshake where it left it
	if c := reserveOutput(out, outLen, overhead+len(in)); c != codeSuccess {
		return c
	}
	msg, err := ch.WriteHandshakeMessage(in)
	if err != nil {
		code := codeOf(err)
		logFailure("noise_write_message", code, err)
		return code
	}
	return writeOutput(out, outLen, msg)
}

//export noise_read_message
func noise_read_message(h unsafe.Pointer, input *C.uchar, inputLen C.size_t, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_read_message", &code)
	return C.int(readMessage(h, input, inputLen, out, outLen))
}

func readMessage(h unsafe.Pointer, input *C.uchar, inputLen C.size_t, out *C.uchar, outLen *C.size_t) int {
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	in, ok := inputBytes(input, inputLen)
	if !ok || len(in) == 0 {
		return codeInvalidParameter
	}
	overhead, err := ch.Session().HandshakeOverhead()
	if err != nil {
		return codeOf(err)
	}
	required := len(in) - overhead
	if required < 0 {
		required = 0
	}
	if c := reserveOutput(out, outLen, required); c != codeSuccess {
		return c
	}
	payload, err := ch.ReadHandshakeMessage(in)
	if err != nil {
		code := codeOf(err)
		logFailure("noise_read_message", code, err)
		return code
	}
	return writeOutput(out, outLen, payload)
}

//export noise_is_handshake_complete
func noise_is_handshake_complete(h unsafe.Pointer) (result C.int) {
	defer recoverPanic("noise_is_handshake_complete", nil)
	ch, ok := state.lookup(h)
	if !ok || !ch.IsEstablished() {
		return 0
	}
	return 1
}

// transform runs a length-changing transport operation once the output
// buffer is known to fit.
func transform(function string, h unsafe.Pointer, input *C.uchar, inputLen C.size_t, out *C.uchar, outLen *C.size_t,
	required func(n int) int, op func(ch *noisemobile.Channel, in []byte) ([]byte, error),
) int {
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	in, ok := inputBytes(input, inputLen)
	if !ok {
		return codeInvalidParameter
	}
	if !ch.IsEstablished() {
		return codeInvalidState
	}
	need := required(len(in))
	if need < 0 {
		need = 0
	}
	if c := reserveOutput(out, outLen, need); c != codeSuccess {
		return c
	}
	result, err := op(ch, in)
	if err != nil {
		code := codeOf(err)
		logFailure(function, code, err)
		return code
	}
	code := writeOutput(out, outLen, result)
	crypto.ZeroBytes(result)
	return code
}

//export noise_encrypt
func noise_encrypt(h unsafe.Pointer, plaintext *C.uchar, plaintextLen C.size_t, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_encrypt", &code)
	if plaintextLen > limits.MaxPayloadLen {
		return codeInvalidParameter
	}
	return C.int(transform("noise_encrypt", h, plaintext, plaintextLen, out, outLen,
		limits.CiphertextLen,
		func(ch *noisemobile.Channel, in []byte) ([]byte, error) { return ch.Encrypt(in) }))
}

//export noise_decrypt
func noise_decrypt(h unsafe.Pointer, ciphertext *C.uchar, ciphertextLen C.size_t, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_decrypt", &code)
	return C.int(transform("noise_decrypt", h, ciphertext, ciphertextLen, out, outLen,
		func(n int) int { return n - limits.TagLen },
		func(ch *noisemobile.Channel, in []byte) ([]byte, error) { return ch.Decrypt(in) }))
}

//export noise_encrypt_sequenced
func noise_encrypt_sequenced(h unsafe.Pointer, plaintext *C.uchar, plaintextLen C.size_t, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_encrypt_sequenced", &code)
	if plaintextLen > limits.MaxSequencedPayloadLen {
		return codeInvalidParameter
	}
	return C.int(transform("noise_encrypt_sequenced", h, plaintext, plaintextLen, out, outLen,
		limits.SequencedFrameLen,
		func(ch *noisemobile.Channel, in []byte) ([]byte, error) { return ch.EncryptSequenced(in) }))
}

//export noise_decrypt_sequenced
func noise_decrypt_sequenced(h unsafe.Pointer, frame *C.uchar, frameLen C.size_t, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_decrypt_sequenced", &code)
	return C.int(transform("noise_decrypt_sequenced", h, frame, frameLen, out, outLen,
		func(n int) int { return n - limits.SequencedFrameLen(0) },
		func(ch *noisemobile.Channel, in []byte) ([]byte, error) { return ch.DecryptSequenced(in) }))
}

func copyKey(out *C.uchar, outLen *C.size_t, key []byte, err error) int {
	if err != nil {
		return codeOf(err)
	}
	if c := reserveOutput(out, outLen, len(key)); c != codeSuccess {
		return c
	}
	return writeOutput(out, outLen, key)
}

//export noise_get_remote_static
func noise_get_remote_static(h unsafe.Pointer, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_get_remote_static", &code)
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	key, err := ch.Session().RemotePublicKey()
	return C.int(copyKey(out, outLen, key, err))
}

//export noise_get_local_static
func noise_get_local_static(h unsafe.Pointer, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_get_local_static", &code)
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	key, err := ch.Session().LocalPublicKey()
	return C.int(copyKey(out, outLen, key, err))
}

//export noise_max_message_len
func noise_max_message_len() C.size_t {
	return limits.MaxMessageLen
}

//export noise_max_payload_len
func noise_max_payload_len() C.size_t {
	return limits.MaxPayloadLen
}

// noise_error_string returns a static description of an error code. The
// string must not be freed.
//
//export noise_error_string
func noise_error_string(code C.int) *C.char {
	return errorText(code)
}

//export noise_window_serialize
func noise_window_serialize(h unsafe.Pointer, out *C.uchar, outLen *C.size_t) (code C.int) {
	defer recoverPanic("noise_window_serialize", &code)
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	data, err := ch.SerializeWindow()
	if err != nil {
		return C.int(codeOf(err))
	}
	if c := reserveOutput(out, outLen, len(data)); c != codeSuccess {
		return C.int(c)
	}
	return C.int(writeOutput(out, outLen, data))
}

//export noise_window_deserialize
func noise_window_deserialize(h unsafe.Pointer, data *C.uchar, dataLen C.size_t) (code C.int) {
	defer recoverPanic("noise_window_deserialize", &code)
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	in, ok := inputBytes(data, dataLen)
	if !ok || len(in) == 0 {
		return codeInvalidParameter
	}
	return C.int(codeOf(ch.DeserializeWindow(in)))
}

//export noise_batch_queue_encrypt
func noise_batch_queue_encrypt(h unsafe.Pointer, plaintext *C.uchar, plaintextLen C.size_t) (code C.int) {
	defer recoverPanic("noise_batch_queue_encrypt", &code)
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	in, ok := inputBytes(plaintext, plaintextLen)
	if !ok {
		return codeInvalidParameter
	}
	return C.int(codeOf(ch.QueueEncrypt(in)))
}

//export noise_batch_queue_decrypt
func noise_batch_queue_decrypt(h unsafe.Pointer, ciphertext *C.uchar, ciphertextLen C.size_t) (code C.int) {
	defer recoverPanic("noise_batch_queue_decrypt", &code)
	ch, ok := state.lookup(h)
	if !ok {
		return codeInvalidParameter
	}
	in, ok := inputBytes(ciphertext, ciphertextLen)
	if !ok {
		return codeInvalidParameter
	}
	return C.int(codeOf(ch.QueueDecrypt(in)))
}

// noise_batch_pending returns the number of queued operations, or -1 for an
// invalid handle.
//
//export noise_batch_pending
func noise_batch_pending(h unsafe.Pointer) (count C.int) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "noise_batch_pending",
				"panic":    r,
			}).Error("Recovered panic at C boundary")
			count = -1
		}
	}()
	ch, ok := state.lookup(h)
	if !ok {
		return -1
	}
	return C.int(ch.PendingCount())
}

//export noise_batch_should_flush
func noise_batch_should_flush(h unsafe.Pointer) (result C.int) {
	defer recoverPanic("noise_batch_should_flush", nil)
	ch, ok := state.lookup(h)
	if !ok || !ch.ShouldAutoFlush() {
		return 0
	}
	return 1
}

// noise_batch_flush_encrypts writes every result as [4-byte big-endian
// length][bytes] and stores the number of results in *count. The size
// reported with BUFFER_TOO_SMALL is exact.
//
//export noise_batch_flush_encrypts
func noise_batch_flush_encrypts(h unsafe.Pointer, out *C.uchar, outLen *C.size_t, count *C.size_t) (code C.int) {
	defer recoverPanic("noise_batch_flush_encrypts", &code)
	return C.int(flushBatch("noise_batch_flush_encrypts", h, out, outLen, count, true))
}

// noise_batch_flush_decrypts is noise_batch_flush_encrypts for the decrypt
// queue. The size reported with BUFFER_TOO_SMALL is an upper bound.
//
//export noise_batch_flush_decrypts
func noise_batch_flush_decrypts(h unsafe.Pointer, out *C.uchar, outLen *C.size_t, count *C.size_t) (code C.int) {
	defer recoverPanic("noise_batch_flush_decrypts", &code)
	return C.int(flushBatch("noise_batch_flush_decrypts", h, out, outLen, count, false))
}

// flushBatch sizes the output before running the queue, so results are
// never produced without room to return them. On a failing item the results
// before it are still written and the item's error code is returned.
func flushBatch(function string, h unsafe.Pointer, out *C.uchar, outLen *C.size_t, count *C.size_t, encrypt bool) int {
	ch, ok := state.lookup(h)
	if !ok || count == nil {
		return codeInvalidParameter
	}
	*count = 0
	sched := ch.Scheduler()
	if !ch.IsEstablished() || sched == nil {
		return codeInvalidState
	}

	overhead := limits.TagLen
	if ch.Guard() != nil {
		overhead += limits.SequenceHeaderLen
	}

	var required int
	if encrypt {
		n := sched.PendingEncrypts()
		required = n*(batchFrameHeader+overhead) + sched.PendingEncryptBytes()
	} else {
		n := sched.PendingDecrypts()
		required = n*batchFrameHeader + sched.PendingDecryptBytes()
	}
	if c := reserveOutput(out, outLen, required); c != codeSuccess {
		return c
	}

	var (
		results [][]byte
		err     error
	)
	if encrypt {
		results, err = ch.FlushEncrypts()
	} else {
		results, err = ch.FlushDecrypts()
	}

	buf := make([]byte, 0, required)
	for _, r := range results {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(r)))
		buf = append(buf, r...)
		crypto.ZeroBytes(r)
	}
	written := writeOutput(out, outLen, buf)
	crypto.ZeroBytes(buf)
	*count = C.size_t(len(results))

	if err != nil {
		code := codeOf(err)
		logFailure(function, code, err)
		return code
	}
	return written
}
