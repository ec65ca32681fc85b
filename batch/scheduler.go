// Package batch queues small encrypt and decrypt operations and runs them in
// passes, so a host can wake the crypto path once per burst instead of once
// per message.
//
// The scheduler owns no timer. Hosts call ShouldAutoFlush after enqueueing
// or from their own periodic work and flush when it returns true.
package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/noisemobile/crypto"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultThreshold is the queue length that triggers an automatic flush.
	DefaultThreshold = 10
	// DefaultInterval is the idle time after which queued work should be flushed.
	DefaultInterval = 100 * time.Millisecond
)

// Cipher is the target of a scheduler: a session.Session or a replay.Guard.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Direction tells which queue an operation belongs to.
type Direction uint8

const (
	Encrypt Direction = iota
	Decrypt
)

func (d Direction) String() string {
	if d == Encrypt {
		return "encrypt"
	}
	return "decrypt"
}

// FlushError reports the item a flush stopped at. The failed item has been
// removed from its queue; items after it are still queued.
type FlushError struct {
	Direction Direction
	Index     int
	Err       error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("batch %s failed at item %d: %v", e.Direction, e.Index, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// ErrNilTarget is returned by New when no cipher is supplied
var ErrNilTarget = errors.New("batch target is nil")

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithThreshold sets the queue length at which ShouldAutoFlush reports true.
// Values below 1 are ignored.
func WithThreshold(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithInterval sets the idle interval after which ShouldAutoFlush reports
// true. Values below zero are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.interval = d
		}
	}
}

// WithTimeProvider replaces the clock, for deterministic tests.
func WithTimeProvider(tp crypto.TimeProvider) Option {
	return func(s *Scheduler) {
		if tp != nil {
			s.timeProvider = tp
		}
	}
}

// Scheduler holds pending encrypt and decrypt buffers for one target. It is
// not safe for concurrent use.
type Scheduler struct {
	target       Cipher
	encrypts     [][]byte
	decrypts     [][]byte
	threshold    int
	interval     time.Duration
	timeProvider crypto.TimeProvider
	lastFlush    time.Time
}

// New creates a scheduler for target.
func New(target Cipher, opts ...Option) (*Scheduler, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	s := &Scheduler{
		target:       target,
		threshold:    DefaultThreshold,
		interval:     DefaultInterval,
		timeProvider: crypto.GetDefaultTimeProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastFlush = s.timeProvider.Now()
	return s, nil
}

// Threshold returns the configured flush threshold.
func (s *Scheduler) Threshold() int { return s.threshold }

// Interval returns the configured flush interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// QueueEncrypt copies plaintext onto the encrypt queue.
func (s *Scheduler) QueueEncrypt(plaintext []byte) {
	s.encrypts = append(s.encrypts, append([]byte{}, plaintext...))
}

// QueueDecrypt copies ciphertext onto the decrypt queue.
func (s *Scheduler) QueueDecrypt(ciphertext []byte) {
	s.decrypts = append(s.decrypts, append([]byte{}, ciphertext...))
}

// PendingEncrypts returns the encrypt queue length.
func (s *Scheduler) PendingEncrypts() int { return len(s.encrypts) }

// PendingDecrypts returns the decrypt queue length.
func (s *Scheduler) PendingDecrypts() int { return len(s.decrypts) }

// PendingEncryptBytes returns the total size of queued plaintexts.
func (s *Scheduler) PendingEncryptBytes() int { return totalLen(s.encrypts) }

// PendingDecryptBytes returns the total size of queued ciphertexts.
func (s *Scheduler) PendingDecryptBytes() int { return totalLen(s.decrypts) }

func totalLen(queue [][]byte) int {
	n := 0
	for _, b := range queue {
		n += len(b)
	}
	return n
}

// PendingCount returns the total number of queued operations.
func (s *Scheduler) PendingCount() int {
	return len(s.encrypts) + len(s.decrypts)
}

// ShouldAutoFlush reports whether the queues reached the threshold or the
// interval has passed since the last flush with work still pending.
func (s *Scheduler) ShouldAutoFlush() bool {
	pending := s.PendingCount()
	if pending == 0 {
		return false
	}
	if pending >= s.threshold {
		return true
	}
	return s.timeProvider.Since(s.lastFlush) >= s.interval
}

// FlushEncrypts encrypts every queued plaintext in order. On the first
// failure it returns the ciphertexts produced so far and a *FlushError.
func (s *Scheduler) FlushEncrypts() ([][]byte, error) {
	out, rest, err := s.flush(Encrypt, s.encrypts, s.target.Encrypt)
	s.encrypts = rest
	return out, err
}

// FlushDecrypts decrypts every queued ciphertext in order. On the first
// failure it returns the plaintexts produced so far and a *FlushError.
func (s *Scheduler) FlushDecrypts() ([][]byte, error) {
	out, rest, err := s.flush(Decrypt, s.decrypts, s.target.Decrypt)
	s.decrypts = rest
	return out, err
}

func (s *Scheduler) flush(dir Direction, queue [][]byte, op func([]byte) ([]byte, error)) ([][]byte, [][]byte, error) {
	if len(queue) == 0 {
		return nil, nil, nil
	}
	s.lastFlush = s.timeProvider.Now()

	results := make([][]byte, 0, len(queue))
	for i, item := range queue {
		res, err := op(item)
		if err != nil {
			crypto.ZeroBytes(item)
			rest := queue[i+1:]
			logrus.WithFields(logrus.Fields{
				"function":  "Flush",
				"direction": dir.String(),
				"index":     i,
				"processed": len(results),
				"remaining": len(rest),
				"error":     err.Error(),
			}).Warn("Batch flush stopped at failing item")
			if len(rest) == 0 {
				rest = nil
			}
			return results, rest, &FlushError{Direction: dir, Index: i, Err: err}
		}
		crypto.ZeroBytes(item)
		results = append(results, res)
	}

	logrus.WithFields(crypto.OperationFields("flush", "ok", logrus.Fields{
		"function":  "Flush",
		"direction": dir.String(),
		"processed": len(results),
	})).Debug("Batch flushed")
	return results, nil, nil
}

// Clear wipes and drops every queued buffer.
func (s *Scheduler) Clear() {
	for _, b := range s.encrypts {
		crypto.ZeroBytes(b)
	}
	for _, b := range s.decrypts {
		crypto.ZeroBytes(b)
	}
	s.encrypts, s.decrypts = nil, nil
}
