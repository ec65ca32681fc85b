package main

/*
#include <stddef.h>
*/
import "C"

import (
	"math"
	"unsafe"
)

// Aliases for the C types on the exported surface, so code without cgo
// (the package tests) can name them.
type (
	cInt   = C.int
	cSize  = C.size_t
	cUchar = C.uchar
)

// The exports convert *C.int and *C.size_t to Go pointers of the same width.
var (
	_ = [1]struct{}{}[unsafe.Sizeof(C.int(0))-unsafe.Sizeof(int32(0))]
	_ = [1]struct{}{}[unsafe.Sizeof(C.size_t(0))-unsafe.Sizeof(uintptr(0))]
)

// maxInputLen bounds caller lengths before they are converted to int.
const maxInputLen = math.MaxInt32

// inputBytes views a caller buffer as a slice without copying. A NULL
// pointer is only valid with a zero length.
func inputBytes(ptr *C.uchar, n C.size_t) ([]byte, bool) {
	if n == 0 {
		return nil, true
	}
	if ptr == nil || n > maxInputLen {
		return nil, false
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(n)), true
}

// reserveOutput checks that the caller's buffer can hold required bytes.
// On BufferTooSmall *outLen is set to required and nothing is written. A
// NULL out with *outLen of 0 therefore works as a size query.
func reserveOutput(out *C.uchar, outLen *C.size_t, required int) int {
	if outLen == nil {
		return codeInvalidParameter
	}
	if *outLen < C.size_t(required) {
		*outLen = C.size_t(required)
		return codeBufferTooSmall
	}
	if out == nil && required > 0 {
		return codeInvalidParameter
	}
	return codeSuccess
}

// writeOutput copies data into a buffer already checked by reserveOutput.
func writeOutput(out *C.uchar, outLen *C.size_t, data []byte) int {
	if C.size_t(len(data)) > *outLen {
		*outLen = C.size_t(len(data))
		return codeBufferTooSmall
	}
	if len(data) > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(out)), len(data)), data)
	}
	*outLen = C.size_t(len(data))
	return codeSuccess
}
