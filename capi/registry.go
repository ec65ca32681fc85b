package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/opd-ai/noisemobile"
	"github.com/sirupsen/logrus"
)

// runtimeState is the process-wide state behind the C API. Handles are
// one-byte C allocations; their address keys the channel table, so looking
// a handle up never dereferences caller memory.
type runtimeState struct {
	mu          sync.Mutex
	initialized bool
	options     *noisemobile.Options
	handles     map[uintptr]*handle
}

type handle struct {
	cell    unsafe.Pointer
	channel *noisemobile.Channel
}

var state runtimeState

// ensureInit initializes the runtime on first use. Caller holds state.mu.
func (s *runtimeState) ensureInit() {
	if s.initialized {
		return
	}
	s.options = noisemobile.NewOptions()
	s.handles = make(map[uintptr]*handle)
	s.initialized = true
	logrus.WithFields(logrus.Fields{
		"function": "ensureInit",
	}).Debug("C API runtime initialized")
}

// defaultOptions returns the options used for new channels.
func (s *runtimeState) defaultOptions() *noisemobile.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureInit()
	opts := *s.options
	return &opts
}

// register allocates a handle for ch. It returns nil if C allocation fails.
func (s *runtimeState) register(ch *noisemobile.Channel) unsafe.Pointer {
	cell := C.malloc(1)
	if cell == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureInit()
	s.handles[uintptr(cell)] = &handle{cell: cell, channel: ch}
	return cell
}

// lookup returns the channel behind h.
func (s *runtimeState) lookup(h unsafe.Pointer) (*noisemobile.Channel, bool) {
	if h == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, false
	}
	entry, ok := s.handles[uintptr(h)]
	if !ok {
		return nil, false
	}
	return entry.channel, true
}

// release removes h from the table and frees its cell. Unknown handles are
// ignored so that a stray pointer is never passed to free.
func (s *runtimeState) release(h unsafe.Pointer) (*noisemobile.Channel, bool) {
	if h == nil {
		return nil, false
	}
	s.mu.Lock()
	entry, ok := s.handles[uintptr(h)]
	if ok {
		delete(s.handles, uintptr(h))
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	C.free(entry.cell)
	return entry.channel, true
}

// shutdown closes every live channel and resets the runtime.
func (s *runtimeState) shutdown() int {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.options = nil
	s.initialized = false
	s.mu.Unlock()

	for _, entry := range handles {
		_ = entry.channel.Close()
		C.free(entry.cell)
	}
	return len(handles)
}

// liveHandles returns the number of registered handles.
func (s *runtimeState) liveHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
