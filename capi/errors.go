package main

/*
static const char *noise_error_strings[] = {
	"success",
	"invalid parameter",
	"out of memory",
	"handshake failed",
	"encryption failed",
	"decryption failed",
	"buffer too small",
	"invalid state",
	"protocol error",
};

static const char *noise_error_text(int code) {
	if (code < 0 || code > 8) {
		return "unknown error";
	}
	return noise_error_strings[code];
}
*/
import "C"

import (
	"errors"

	"github.com/opd-ai/noisemobile/session"
	"github.com/sirupsen/logrus"
)

// Error codes returned across the C boundary. The values are fixed and
// match the session.Kind of the same name.
const (
	codeSuccess          = 0
	codeInvalidParameter = 1
	codeOutOfMemory      = 2
	codeHandshakeFailed  = 3
	codeEncryptionFailed = 4
	codeDecryptionFailed = 5
	codeBufferTooSmall   = 6
	codeInvalidState     = 7
	codeProtocolError    = 8
)

// codeOf maps a Go error to its C error code.
func codeOf(err error) int {
	if err == nil {
		return codeSuccess
	}
	var se *session.Error
	if errors.As(err, &se) {
		return int(se.Kind)
	}
	return codeProtocolError
}

// recoverPanic converts a panic in an exported function into code.
func recoverPanic(function string, code *C.int) {
	if r := recover(); r != nil {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"panic":    r,
		}).Error("Recovered panic at C boundary")
		if code != nil {
			*code = C.int(codeProtocolError)
		}
	}
}

// setError stores code in the optional out parameter.
func setError(errOut *C.int, code int) {
	if errOut != nil {
		*errOut = C.int(code)
	}
}

// errorText returns the static C description of code. The C definitions
// live in this file, which carries no exports, so they are compiled once.
func errorText(code C.int) *C.char {
	return C.noise_error_text(code)
}
