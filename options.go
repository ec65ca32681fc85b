package noisemobile

import (
	"fmt"
	"time"

	"github.com/opd-ai/noisemobile/batch"
	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/noise"
	"github.com/opd-ai/noisemobile/replay"
	"github.com/sirupsen/logrus"
)

// Options contains configuration options for creating a Channel.
type Options struct {
	// Pattern selects the handshake pattern (XX, IK or NN).
	Pattern noise.Pattern
	// Prologue is bound into the handshake; both peers must use the same value.
	Prologue []byte
	// PeerStatic is the responder's public key, required by IK initiators.
	PeerStatic []byte

	EnableReplayGuard bool
	WindowSize        int

	EnableBatching bool
	FlushThreshold int
	FlushInterval  time.Duration

	// LogLevel is applied to the standard logrus logger when non-empty.
	LogLevel string

	TimeProvider crypto.TimeProvider

	// KeyStorage persists window state and, with IdentityID, supplies the
	// static key.
	KeyStorage crypto.KeyStorage
	IdentityID string
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Pattern:           noise.PatternXX,
		EnableReplayGuard: true,
		WindowSize:        replay.DefaultWindowSize,
		EnableBatching:    true,
		FlushThreshold:    batch.DefaultThreshold,
		FlushInterval:     batch.DefaultInterval,
		TimeProvider:      crypto.DefaultTimeProvider{},
	}
}

// validate checks the options that would otherwise fail late, once the
// handshake has already completed.
func (o *Options) validate() error {
	if o.EnableReplayGuard {
		if _, err := replay.NewWindow(o.WindowSize); err != nil {
			return err
		}
	}
	if o.EnableBatching {
		if o.FlushThreshold < 1 {
			return fmt.Errorf("flush threshold must be positive, got %d", o.FlushThreshold)
		}
		if o.FlushInterval < 0 {
			return fmt.Errorf("flush interval must not be negative, got %s", o.FlushInterval)
		}
	}
	if o.IdentityID != "" && o.KeyStorage == nil {
		return fmt.Errorf("identity %q requested without key storage", o.IdentityID)
	}
	return nil
}

// applyLogLevel sets the global logrus level from LogLevel.
func (o *Options) applyLogLevel() error {
	if o.LogLevel == "" {
		return nil
	}
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	return nil
}
