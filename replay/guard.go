package replay

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/limits"
	"github.com/opd-ai/noisemobile/session"
	"github.com/sirupsen/logrus"
)

// Option configures a Guard.
type Option func(*guardConfig)

type guardConfig struct {
	windowSize int
}

// WithWindowSize sets the window capacity. It must be a positive multiple of
// 8 no larger than MaxWindowSize.
func WithWindowSize(size int) Option {
	return func(c *guardConfig) { c.windowSize = size }
}

// Guard adds counters and replay detection to an established session.
//
// Frames are [8-byte big-endian counter][ciphertext]. The ciphertext is
// sealed under AEAD nonce counter-1 with the header as associated data, so
// frames can be decrypted in any order and a forged header fails
// authentication. A peer using a Guard must receive through DecryptSequenced
// only.
type Guard struct {
	session *session.Session
	window  *Window
}

// NewGuard wraps s, which must be established.
func NewGuard(s *session.Session, opts ...Option) (*Guard, error) {
	const op = "new_guard"
	cfg := guardConfig{windowSize: DefaultWindowSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if s == nil {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: op, Err: errors.New("session is nil")}
	}
	if !s.IsEstablished() {
		return nil, &session.Error{Kind: session.InvalidState, Op: op, Err: session.ErrNotEstablished}
	}
	w, err := NewWindow(cfg.windowSize)
	if err != nil {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: op, Err: err}
	}
	return &Guard{session: s, window: w}, nil
}

// Session returns the wrapped session.
func (g *Guard) Session() *session.Session {
	return g.session
}

// Window returns the guard's replay window.
func (g *Guard) Window() *Window {
	return g.window
}

// EncryptSequenced assigns the next counter to plaintext and returns the frame.
func (g *Guard) EncryptSequenced(plaintext []byte) ([]byte, error) {
	const op = "encrypt_sequenced"
	if err := limits.ValidateSequencedPayload(plaintext); err != nil {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: op, Err: err}
	}

	// Plain Encrypt calls on the session consume nonces too; skip past them.
	next, err := g.session.SendNonce()
	if err != nil {
		return nil, err
	}
	g.window.advanceSendTo(next)

	counter, err := g.window.NextSend()
	if err != nil {
		return nil, &session.Error{Kind: session.EncryptionFailed, Op: op, Err: err}
	}

	frame := make([]byte, limits.SequenceHeaderLen, limits.SequencedFrameLen(len(plaintext)))
	binary.BigEndian.PutUint64(frame, counter)

	ct, err := g.session.EncryptWithNonce(counter-1, frame[:limits.SequenceHeaderLen], plaintext)
	if err != nil {
		return nil, err
	}
	return append(frame, ct...), nil
}

// DecryptSequenced authenticates a frame, checks its counter against the
// window and returns the payload. Frames that fail authentication never
// change the window.
func (g *Guard) DecryptSequenced(frame []byte) ([]byte, error) {
	const op = "decrypt_sequenced"
	if len(frame) > limits.MaxMessageLen {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: op,
			Err: fmt.Errorf("%w: frame size %d", limits.ErrMessageTooLarge, len(frame))}
	}
	if len(frame) < limits.SequenceHeaderLen {
		return nil, &session.Error{Kind: session.DecryptionFailed, Op: op,
			Err: fmt.Errorf("%w: frame of %d bytes has no header", ErrInvalidSequence, len(frame))}
	}
	if len(frame) < limits.SequencedFrameLen(0) {
		return nil, &session.Error{Kind: session.DecryptionFailed, Op: op,
			Err: fmt.Errorf("%w: frame size %d", limits.ErrMessageTooShort, len(frame))}
	}

	header := frame[:limits.SequenceHeaderLen]
	counter := binary.BigEndian.Uint64(header)
	if counter > MaxCounter {
		g.window.stats.Invalid++
		return nil, &session.Error{Kind: session.DecryptionFailed, Op: op, Err: ErrInvalidSequence}
	}
	if err := g.window.Check(counter); err != nil {
		g.logRejection(counter, err)
		return nil, &session.Error{Kind: session.DecryptionFailed, Op: op, Err: err}
	}

	pt, err := g.session.DecryptWithNonce(counter-1, header, frame[limits.SequenceHeaderLen:])
	if err != nil {
		return nil, err
	}
	g.window.Commit(counter)
	return pt, nil
}

func (g *Guard) logRejection(counter uint64, err error) {
	crypto.NewLogger("replay", "DecryptSequenced").
		WithField("session_id", g.session.ID().String()).
		WithField("counter", counter).
		WithField("high_water", g.window.LastReceived()).
		WithError(err, "window_check").
		Warn("Rejected sequenced frame")
}

// Encrypt is EncryptSequenced. It lets a Guard stand in for a session, for
// example as a batch target.
func (g *Guard) Encrypt(plaintext []byte) ([]byte, error) {
	return g.EncryptSequenced(plaintext)
}

// Decrypt is DecryptSequenced.
func (g *Guard) Decrypt(frame []byte) ([]byte, error) {
	return g.DecryptSequenced(frame)
}

// Serialize returns the window state. See Window.Serialize for the layout.
func (g *Guard) Serialize() []byte {
	return g.window.Serialize()
}

// Deserialize restores window state saved by Serialize.
func (g *Guard) Deserialize(data []byte) error {
	if err := g.window.Deserialize(data); err != nil {
		return &session.Error{Kind: session.InvalidParameter, Op: "window_deserialize", Err: err}
	}
	return nil
}

// SaveState persists the window under the session id.
func (g *Guard) SaveState(storage crypto.KeyStorage) error {
	return g.window.SaveState(storage, g.session.ID().String())
}

// LoadState restores the window saved under the session id.
func (g *Guard) LoadState(storage crypto.KeyStorage) error {
	if err := g.window.LoadState(storage, g.session.ID().String()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "LoadState",
			"session_id": g.session.ID().String(),
			"error":      err.Error(),
		}).Warn("Could not restore window state")
		return err
	}
	return nil
}
