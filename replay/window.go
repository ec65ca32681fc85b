package replay

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultWindowSize is the number of recent counters tracked below the
	// high-water mark.
	DefaultWindowSize = 64

	// MaxWindowSize bounds the bitmap at 512 bytes.
	MaxWindowSize = 4096

	// MaxCounter is the last counter a sender may use. Its AEAD nonce,
	// MaxCounter-1, is the last one the transport accepts.
	MaxCounter = math.MaxUint64 - 1
)

var (
	// ErrReplay indicates the counter was already accepted
	ErrReplay = errors.New("replayed message")
	// ErrTooOld indicates the counter fell out of the window
	ErrTooOld = errors.New("message counter too old")
	// ErrInvalidSequence indicates counter 0 or a malformed sequence header
	ErrInvalidSequence = errors.New("invalid sequence number")
	// ErrCounterExhausted indicates the send counter reached MaxCounter
	ErrCounterExhausted = errors.New("send counter exhausted")
	// ErrInvalidWindowSize indicates a window size that is not a positive multiple of 8 up to MaxWindowSize
	ErrInvalidWindowSize = errors.New("invalid window size")
)

// WindowStats counts window decisions.
type WindowStats struct {
	Accepted uint64
	Replays  uint64
	TooOld   uint64
	Invalid  uint64
}

// Window tracks the send counter and the set of recently received counters.
//
// The bitmap is a ring of size bits: counter c lives at bit c mod size. Only
// counters in (hi-size, hi] are ever marked, so the ring never needs to
// shift; advancing the high-water mark clears the slots it reuses.
type Window struct {
	size         uint64
	ring         []byte
	lastSent     uint64
	lastReceived uint64
	stats        WindowStats
}

// NewWindow creates a window tracking size counters.
func NewWindow(size int) (*Window, error) {
	if err := validateWindowSize(size); err != nil {
		return nil, err
	}
	return &Window{
		size: uint64(size),
		ring: make([]byte, size/8),
	}, nil
}

func validateWindowSize(size int) error {
	if size <= 0 || size%8 != 0 || size > MaxWindowSize {
		return fmt.Errorf("%w: %d (must be a positive multiple of 8, at most %d)", ErrInvalidWindowSize, size, MaxWindowSize)
	}
	return nil
}

// Size returns the window capacity W.
func (w *Window) Size() int {
	return int(w.size)
}

// LastSent returns the last counter handed out by NextSend.
func (w *Window) LastSent() uint64 {
	return w.lastSent
}

// LastReceived returns the high-water mark.
func (w *Window) LastReceived() uint64 {
	return w.lastReceived
}

// Stats returns a snapshot of the window counters.
func (w *Window) Stats() WindowStats {
	return w.stats
}

// NextSend returns the next outgoing counter, starting at 1.
func (w *Window) NextSend() (uint64, error) {
	if w.lastSent >= MaxCounter {
		return 0, ErrCounterExhausted
	}
	w.lastSent++
	return w.lastSent, nil
}

// advanceSendTo raises the send counter so the next value is above floor.
func (w *Window) advanceSendTo(floor uint64) {
	if w.lastSent < floor {
		w.lastSent = floor
	}
}

func (w *Window) bit(c uint64) (int, byte) {
	idx := c % w.size
	return int(idx / 8), byte(1) << (idx % 8)
}

func (w *Window) seen(c uint64) bool {
	i, mask := w.bit(c)
	return w.ring[i]&mask != 0
}

func (w *Window) mark(c uint64) {
	i, mask := w.bit(c)
	w.ring[i] |= mask
}

func (w *Window) clear(c uint64) {
	i, mask := w.bit(c)
	w.ring[i] &^= mask
}

// Check reports whether counter s would be accepted. It does not modify the
// window.
func (w *Window) Check(s uint64) error {
	switch {
	case s == 0:
		w.stats.Invalid++
		return ErrInvalidSequence
	case s > w.lastReceived:
		return nil
	}

	d := w.lastReceived - s
	if d >= w.size {
		w.stats.TooOld++
		return fmt.Errorf("%w: counter %d is %d behind %d", ErrTooOld, s, d, w.lastReceived)
	}
	if w.seen(s) {
		w.stats.Replays++
		return fmt.Errorf("%w: counter %d", ErrReplay, s)
	}
	return nil
}

// Commit records counter s as received. s must have passed Check.
func (w *Window) Commit(s uint64) {
	if s > w.lastReceived {
		shift := s - w.lastReceived
		if shift >= w.size {
			for i := range w.ring {
				w.ring[i] = 0
			}
		} else {
			for c := w.lastReceived + 1; c < s; c++ {
				w.clear(c)
			}
		}
		w.lastReceived = s
	}
	w.mark(s)
	w.stats.Accepted++
}

// Accept checks and commits s in one step.
func (w *Window) Accept(s uint64) error {
	if err := w.Check(s); err != nil {
		return err
	}
	w.Commit(s)
	return nil
}

// Reset forgets all send and receive state.
func (w *Window) Reset() {
	for i := range w.ring {
		w.ring[i] = 0
	}
	w.lastSent = 0
	w.lastReceived = 0
	w.stats = WindowStats{}
}
