package noisemobile

import (
	"errors"
	"fmt"

	"github.com/opd-ai/noisemobile/batch"
	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/replay"
	"github.com/opd-ai/noisemobile/session"
	"github.com/sirupsen/logrus"
)

// Role re-exports the session roles for callers that only import the root package.
type Role = session.Role

const (
	Initiator = session.Initiator
	Responder = session.Responder
)

// ErrFeatureDisabled is wrapped when a sequenced or batch call is made on a
// channel created without that feature.
var ErrFeatureDisabled = errors.New("feature disabled in channel options")

// Channel owns a Session and, once it is established, the optional replay
// guard and batch scheduler layered on top of it. Closing the channel
// releases all three.
type Channel struct {
	options   *Options
	session   *session.Session
	guard     *replay.Guard
	scheduler *batch.Scheduler
}

// NewChannel creates a channel. A nil options uses NewOptions.
func NewChannel(role Role, options *Options) (*Channel, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.validate(); err != nil {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: "new_channel", Err: err}
	}

	if options.IdentityID != "" {
		key, err := options.KeyStorage.LoadIdentity(options.IdentityID)
		if err != nil {
			return nil, &session.Error{Kind: session.InvalidParameter, Op: "new_channel",
				Err: fmt.Errorf("failed to load identity %q: %w", options.IdentityID, err)}
		}
		defer crypto.ZeroBytes(key)
		return NewChannelWithKey(role, key, options)
	}
	return newChannel(role, nil, options)
}

// NewChannelWithKey creates a channel with a caller-supplied static private key.
func NewChannelWithKey(role Role, key []byte, options *Options) (*Channel, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.validate(); err != nil {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: "new_channel", Err: err}
	}
	if key == nil {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: "new_channel", Err: errors.New("static key is nil")}
	}
	return newChannel(role, key, options)
}

func newChannel(role Role, key []byte, options *Options) (*Channel, error) {
	if err := options.applyLogLevel(); err != nil {
		return nil, &session.Error{Kind: session.InvalidParameter, Op: "new_channel", Err: err}
	}

	opts := []session.Option{
		session.WithPattern(options.Pattern),
		session.WithPrologue(options.Prologue),
	}
	if options.PeerStatic != nil {
		opts = append(opts, session.WithPeerStatic(options.PeerStatic))
	}

	var (
		s   *session.Session
		err error
	)
	if key != nil {
		s, err = session.NewWithStaticKey(role, key, opts...)
	} else {
		s, err = session.New(role, opts...)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewChannel",
		"session_id":   s.ID().String(),
		"role":         role.String(),
		"pattern":      string(options.Pattern),
		"replay_guard": options.EnableReplayGuard,
		"batching":     options.EnableBatching,
	}).Info("Channel created")

	return &Channel{options: options, session: s}, nil
}

// Session returns the underlying session.
func (c *Channel) Session() *session.Session {
	return c.session
}

// Guard returns the replay guard, or nil before establishment or when disabled.
func (c *Channel) Guard() *replay.Guard {
	return c.guard
}

// Scheduler returns the batch scheduler, or nil before establishment or when disabled.
func (c *Channel) Scheduler() *batch.Scheduler {
	return c.scheduler
}

// IsEstablished reports whether the handshake has completed.
func (c *Channel) IsEstablished() bool {
	return c.session.IsEstablished()
}

// WriteHandshakeMessage produces the next handshake message.
func (c *Channel) WriteHandshakeMessage(payload []byte) ([]byte, error) {
	msg, err := c.session.WriteHandshakeMessage(payload)
	if err != nil {
		return nil, err
	}
	if err := c.attach(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ReadHandshakeMessage consumes the peer's handshake message.
func (c *Channel) ReadHandshakeMessage(message []byte) ([]byte, error) {
	payload, err := c.session.ReadHandshakeMessage(message)
	if err != nil {
		return nil, err
	}
	if err := c.attach(); err != nil {
		return nil, err
	}
	return payload, nil
}

// attach builds the guard and scheduler the first time the session is
// established.
func (c *Channel) attach() error {
	if !c.session.IsEstablished() || c.guard != nil || c.scheduler != nil {
		return nil
	}

	var target batch.Cipher = c.session
	if c.options.EnableReplayGuard {
		g, err := replay.NewGuard(c.session, replay.WithWindowSize(c.options.WindowSize))
		if err != nil {
			return err
		}
		c.guard = g
		target = g
	}

	if c.options.EnableBatching {
		s, err := batch.New(target,
			batch.WithThreshold(c.options.FlushThreshold),
			batch.WithInterval(c.options.FlushInterval),
			batch.WithTimeProvider(c.options.TimeProvider),
		)
		if err != nil {
			return &session.Error{Kind: session.InvalidParameter, Op: "attach", Err: err}
		}
		c.scheduler = s
	}
	return nil
}

// Encrypt seals plaintext with the session's implicit nonce.
func (c *Channel) Encrypt(plaintext []byte) ([]byte, error) {
	return c.session.Encrypt(plaintext)
}

// Decrypt opens a ciphertext produced by the peer's Encrypt.
func (c *Channel) Decrypt(ciphertext []byte) ([]byte, error) {
	return c.session.Decrypt(ciphertext)
}

func (c *Channel) requireGuard(op string) (*replay.Guard, error) {
	if !c.session.IsEstablished() {
		return nil, &session.Error{Kind: session.InvalidState, Op: op, Err: session.ErrNotEstablished}
	}
	if c.guard == nil {
		return nil, &session.Error{Kind: session.InvalidState, Op: op, Err: fmt.Errorf("replay guard: %w", ErrFeatureDisabled)}
	}
	return c.guard, nil
}

func (c *Channel) requireScheduler(op string) (*batch.Scheduler, error) {
	if !c.session.IsEstablished() {
		return nil, &session.Error{Kind: session.InvalidState, Op: op, Err: session.ErrNotEstablished}
	}
	if c.scheduler == nil {
		return nil, &session.Error{Kind: session.InvalidState, Op: op, Err: fmt.Errorf("batching: %w", ErrFeatureDisabled)}
	}
	return c.scheduler, nil
}

// EncryptSequenced produces a counter-stamped frame.
func (c *Channel) EncryptSequenced(plaintext []byte) ([]byte, error) {
	g, err := c.requireGuard("encrypt_sequenced")
	if err != nil {
		return nil, err
	}
	return g.EncryptSequenced(plaintext)
}

// DecryptSequenced opens a counter-stamped frame, rejecting replays.
func (c *Channel) DecryptSequenced(frame []byte) ([]byte, error) {
	g, err := c.requireGuard("decrypt_sequenced")
	if err != nil {
		return nil, err
	}
	return g.DecryptSequenced(frame)
}

// SerializeWindow returns the replay window state.
func (c *Channel) SerializeWindow() ([]byte, error) {
	g, err := c.requireGuard("window_serialize")
	if err != nil {
		return nil, err
	}
	return g.Serialize(), nil
}

// DeserializeWindow restores replay window state.
func (c *Channel) DeserializeWindow(data []byte) error {
	g, err := c.requireGuard("window_deserialize")
	if err != nil {
		return err
	}
	return g.Deserialize(data)
}

// SaveWindow persists the replay window to the configured key storage.
func (c *Channel) SaveWindow() error {
	g, err := c.requireGuard("save_window")
	if err != nil {
		return err
	}
	if c.options.KeyStorage == nil {
		return &session.Error{Kind: session.InvalidState, Op: "save_window", Err: errors.New("no key storage configured")}
	}
	return g.SaveState(c.options.KeyStorage)
}

// LoadWindow restores the replay window from the configured key storage.
func (c *Channel) LoadWindow() error {
	g, err := c.requireGuard("load_window")
	if err != nil {
		return err
	}
	if c.options.KeyStorage == nil {
		return &session.Error{Kind: session.InvalidState, Op: "load_window", Err: errors.New("no key storage configured")}
	}
	return g.LoadState(c.options.KeyStorage)
}

// QueueEncrypt queues plaintext for the next encrypt flush.
func (c *Channel) QueueEncrypt(plaintext []byte) error {
	s, err := c.requireScheduler("batch_queue_encrypt")
	if err != nil {
		return err
	}
	s.QueueEncrypt(plaintext)
	return nil
}

// QueueDecrypt queues ciphertext for the next decrypt flush.
func (c *Channel) QueueDecrypt(ciphertext []byte) error {
	s, err := c.requireScheduler("batch_queue_decrypt")
	if err != nil {
		return err
	}
	s.QueueDecrypt(ciphertext)
	return nil
}

// FlushEncrypts runs the encrypt queue.
func (c *Channel) FlushEncrypts() ([][]byte, error) {
	s, err := c.requireScheduler("batch_flush_encrypts")
	if err != nil {
		return nil, err
	}
	return s.FlushEncrypts()
}

// FlushDecrypts runs the decrypt queue.
func (c *Channel) FlushDecrypts() ([][]byte, error) {
	s, err := c.requireScheduler("batch_flush_decrypts")
	if err != nil {
		return nil, err
	}
	return s.FlushDecrypts()
}

// PendingCount returns the number of queued batch operations.
func (c *Channel) PendingCount() int {
	if c.scheduler == nil {
		return 0
	}
	return c.scheduler.PendingCount()
}

// ShouldAutoFlush reports whether the host should flush now.
func (c *Channel) ShouldAutoFlush() bool {
	if c.scheduler == nil {
		return false
	}
	return c.scheduler.ShouldAutoFlush()
}

// Close wipes queued buffers and destroys the session. It is safe to call
// more than once.
func (c *Channel) Close() error {
	if c.scheduler != nil {
		c.scheduler.Clear()
		c.scheduler = nil
	}
	c.guard = nil
	return c.session.Close()
}
