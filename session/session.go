package session

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/limits"
	"github.com/opd-ai/noisemobile/noise"
	"github.com/sirupsen/logrus"
)

// Role is the handshake role of a session.
type Role = noise.HandshakeRole

const (
	Initiator = noise.Initiator
	Responder = noise.Responder
)

// Phase is the lifecycle phase of a session.
type Phase uint8

const (
	// Handshaking is the initial phase; only handshake calls are valid.
	Handshaking Phase = iota
	// Transitioning exists only while the handshake engine is swapped for the
	// transport engine under the session lock. No call observes it.
	Transitioning
	// Established means transport encryption is available.
	Established
	// Failed is terminal: the handshake was rejected and the session must be discarded.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Handshaking:
		return "handshaking"
	case Transitioning:
		return "transitioning"
	case Established:
		return "established"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Stats holds per-session counters.
type Stats struct {
	HandshakeMessages uint64
	MessagesEncrypted uint64
	MessagesDecrypted uint64
	AuthFailures      uint64
}

type config struct {
	pattern    noise.Pattern
	prologue   []byte
	peerStatic []byte
	factory    noise.Factory
	random     io.Reader
}

// Option configures a Session.
type Option func(*config)

// WithPattern selects the handshake pattern. XX is used by default.
func WithPattern(p noise.Pattern) Option {
	return func(c *config) { c.pattern = p }
}

// WithPrologue binds data both peers agree on out of band into the handshake.
func WithPrologue(prologue []byte) Option {
	return func(c *config) { c.prologue = crypto.CloneBytes(prologue) }
}

// WithPeerStatic supplies the responder's public key to an IK initiator.
func WithPeerStatic(key []byte) Option {
	return func(c *config) { c.peerStatic = crypto.CloneBytes(key) }
}

// WithFactory replaces the engine factory.
func WithFactory(f noise.Factory) Option {
	return func(c *config) { c.factory = f }
}

// WithRandom sets the entropy source handed to the engine.
func WithRandom(r io.Reader) Option {
	return func(c *config) { c.random = r }
}

// Session drives one Noise channel from handshake to transport. It owns its
// engine exclusively. Calls must not be made concurrently; the internal lock
// only protects the engine swap at the end of the handshake.
type Session struct {
	mu sync.Mutex

	id      uuid.UUID
	role    Role
	pattern noise.Pattern
	phase   Phase
	closed  bool

	handshake noise.HandshakeEngine
	transport noise.TransportEngine

	localStatic  []byte
	remoteStatic []byte
	hash         []byte

	stats Stats
}

// New creates a session. A static key is generated when the pattern needs one.
func New(role Role, opts ...Option) (*Session, error) {
	return newSession(role, nil, opts)
}

// NewWithStaticKey creates a session using a caller-supplied 32-byte static
// private key. The caller keeps ownership of key; the session does not retain it.
func NewWithStaticKey(role Role, key []byte, opts ...Option) (*Session, error) {
	if len(key) != limits.KeyLen {
		return nil, newError(InvalidParameter, "new_with_key",
			fmt.Errorf("static key must be %d bytes, got %d", limits.KeyLen, len(key)))
	}
	return newSession(role, key, opts)
}

func newSession(role Role, key []byte, opts []Option) (*Session, error) {
	cfg := &config{
		pattern: noise.PatternXX,
		factory: noise.DefaultFactory,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if role != Initiator && role != Responder {
		return nil, newError(InvalidParameter, "new", fmt.Errorf("invalid role %d", role))
	}

	keyCopy := crypto.CloneBytes(key)
	defer crypto.ZeroBytes(keyCopy)

	engine, err := cfg.factory(noise.Config{
		Role:       role,
		Pattern:    cfg.pattern,
		StaticKey:  keyCopy,
		PeerStatic: cfg.peerStatic,
		Prologue:   cfg.prologue,
		Random:     cfg.random,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "session.New",
			"role":     role.String(),
			"pattern":  string(cfg.pattern),
			"error":    err.Error(),
		}).Error("Failed to construct handshake engine")
		return nil, newError(HandshakeFailed, "new", err)
	}

	s := &Session{
		id:          uuid.New(),
		role:        role,
		pattern:     cfg.pattern,
		phase:       Handshaking,
		handshake:   engine,
		localStatic: engine.LocalStaticKey(),
	}

	logrus.WithFields(logrus.Fields{
		"function":   "session.New",
		"session_id": s.id.String(),
		"role":       role.String(),
		"pattern":    string(cfg.pattern),
	}).Debug("Session created")
	return s, nil
}

// ID returns the session's correlation id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Role returns the handshake role.
func (s *Session) Role() Role {
	return s.role
}

// Pattern returns the handshake pattern in use.
func (s *Session) Pattern() noise.Pattern {
	return s.pattern
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsEstablished reports whether transport encryption is available.
func (s *Session) IsEstablished() bool {
	return s.Phase() == Established && !s.isClosed()
}

// IsHandshaking reports whether handshake messages are still expected.
func (s *Session) IsHandshaking() bool {
	return s.Phase() == Handshaking && !s.isClosed()
}

// IsFailed reports whether the handshake failed. A failed session must be discarded.
func (s *Session) IsFailed() bool {
	return s.Phase() == Failed
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// requireHandshaking returns the handshake engine if handshake calls are
// allowed. Caller holds s.mu.
func (s *Session) requireHandshaking(op string) (noise.HandshakeEngine, error) {
	if s.closed {
		return nil, newError(InvalidState, op, ErrClosed)
	}
	if s.phase != Handshaking || s.handshake == nil {
		return nil, newError(InvalidState, op, fmt.Errorf("%w (phase %s)", ErrNotHandshaking, s.phase))
	}
	return s.handshake, nil
}

// requireEstablished returns the transport engine. Caller holds s.mu.
func (s *Session) requireEstablished(op string) (noise.TransportEngine, error) {
	if s.closed {
		return nil, newError(InvalidState, op, ErrClosed)
	}
	if s.phase != Established || s.transport == nil {
		return nil, newError(InvalidState, op, fmt.Errorf("%w (phase %s)", ErrNotEstablished, s.phase))
	}
	return s.transport, nil
}

// HandshakeOverhead returns the bytes the next handshake message adds to its
// payload. A host can size buffers with it before calling
// WriteHandshakeMessage or ReadHandshakeMessage.
func (s *Session) HandshakeOverhead() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, err := s.requireHandshaking("handshake_overhead")
	if err != nil {
		return 0, err
	}
	n, err := hs.NextOverhead()
	if err != nil {
		return 0, newError(InvalidState, "handshake_overhead", err)
	}
	return n, nil
}

// WriteHandshakeMessage produces the next handshake message carrying payload.
// Writing the final message of the pattern establishes the session.
func (s *Session) WriteHandshakeMessage(payload []byte) ([]byte, error) {
	const op = "write_handshake_message"
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, err := s.requireHandshaking(op)
	if err != nil {
		return nil, err
	}
	if err := limits.ValidatePayload(payload); err != nil {
		return nil, newError(InvalidParameter, op, err)
	}
	overhead, err := hs.NextOverhead()
	if err != nil {
		return nil, newError(InvalidState, op, err)
	}
	// The engine advances on write, so an oversized message must be refused here
	if overhead+len(payload) > limits.MaxMessageLen {
		return nil, newError(InvalidParameter, op, fmt.Errorf("%w: %d byte payload with %d bytes of handshake overhead exceeds %d",
			limits.ErrMessageTooLarge, len(payload), overhead, limits.MaxMessageLen))
	}

	msg, err := hs.WriteMessage(payload)
	if err != nil {
		if errors.Is(err, noise.ErrOutOfTurn) {
			return nil, newError(InvalidState, op, err)
		}
		s.fail(op, err)
		return nil, newError(HandshakeFailed, op, err)
	}
	s.stats.HandshakeMessages++

	if err := s.maybeTransition(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ReadHandshakeMessage consumes the peer's handshake message and returns its
// payload, which may be empty. Any failure is terminal for the session.
func (s *Session) ReadHandshakeMessage(message []byte) ([]byte, error) {
	const op = "read_handshake_message"
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, err := s.requireHandshaking(op)
	if err != nil {
		return nil, err
	}
	if err := limits.ValidateHandshakeMessage(message); err != nil {
		return nil, newError(InvalidParameter, op, err)
	}

	payload, err := hs.ReadMessage(message)
	if err != nil {
		if errors.Is(err, noise.ErrOutOfTurn) {
			return nil, newError(InvalidState, op, err)
		}
		s.fail(op, err)
		return nil, newError(ProtocolError, op, err)
	}
	s.stats.HandshakeMessages++

	if err := s.maybeTransition(); err != nil {
		return nil, err
	}
	return payload, nil
}

// maybeTransition swaps the handshake engine for the transport engine once
// the pattern completes. Caller holds s.mu.
func (s *Session) maybeTransition() error {
	if !s.handshake.IsComplete() {
		return nil
	}

	hs := s.handshake
	s.handshake = nil
	s.phase = Transitioning

	transport, err := hs.IntoTransport()
	hs.Destroy()
	if err != nil {
		s.fail("transition", err)
		return newError(HandshakeFailed, "transition", err)
	}

	s.transport = transport
	s.remoteStatic = transport.RemoteStaticKey()
	s.hash = transport.HandshakeHash()
	s.phase = Established

	crypto.NewLogger("session", "maybeTransition").
		WithField("session_id", s.id.String()).
		WithField("role", s.role.String()).
		WithField("messages", s.stats.HandshakeMessages).
		WithFields(crypto.SecureFieldHash(s.remoteStatic, "remote_static")).
		Info("Handshake complete, session established")
	return nil
}

// fail moves the session to the terminal Failed phase. Caller holds s.mu.
func (s *Session) fail(op string, cause error) {
	crypto.NewLogger("session", op).
		WithField("session_id", s.id.String()).
		WithField("role", s.role.String()).
		WithError(cause, op).
		Warn("Handshake failed, session is no longer usable")

	if s.handshake != nil {
		s.handshake.Destroy()
		s.handshake = nil
	}
	s.phase = Failed
}

// Encrypt seals plaintext for the peer. The result is len(plaintext)+16 bytes.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	const op = "encrypt"
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.requireEstablished(op)
	if err != nil {
		return nil, err
	}
	if err := limits.ValidatePayload(plaintext); err != nil {
		return nil, newError(InvalidParameter, op, err)
	}
	ct, err := t.Encrypt(plaintext)
	if err != nil {
		return nil, newError(EncryptionFailed, op, err)
	}
	s.stats.MessagesEncrypted++
	return ct, nil
}

// Decrypt opens a ciphertext from the peer. Ciphertexts must be decrypted in
// the order the peer produced them. A rejected ciphertext leaves the session
// usable and the receive nonce unchanged.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	const op = "decrypt"
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.requireEstablished(op)
	if err != nil {
		return nil, err
	}
	if err := validateCiphertext(op, ciphertext); err != nil {
		return nil, err
	}
	pt, err := t.Decrypt(ciphertext)
	if err != nil {
		s.authFailure(op, len(ciphertext), err)
		return nil, newError(DecryptionFailed, op, err)
	}
	s.stats.MessagesDecrypted++
	return pt, nil
}

func validateCiphertext(op string, ciphertext []byte) error {
	if err := limits.ValidateCiphertext(ciphertext); err != nil {
		if errors.Is(err, limits.ErrMessageTooShort) {
			return newError(DecryptionFailed, op, err)
		}
		return newError(InvalidParameter, op, err)
	}
	return nil
}

// authFailure counts and logs a rejected transport message. Caller holds s.mu.
func (s *Session) authFailure(op string, size int, err error) {
	s.stats.AuthFailures++
	logrus.WithFields(logrus.Fields{
		"function":      op,
		"session_id":    s.id.String(),
		"size":          size,
		"auth_failures": s.stats.AuthFailures,
		"error":         err.Error(),
	}).Warn("Rejected transport message")
}

// SendNonce returns the nonce the next outgoing transport message will use.
func (s *Session) SendNonce() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.requireEstablished("send_nonce")
	if err != nil {
		return 0, err
	}
	return t.SendNonce(), nil
}

// EncryptWithNonce seals plaintext under an explicit nonce with associated
// data. n must not be below SendNonce.
func (s *Session) EncryptWithNonce(n uint64, ad, plaintext []byte) ([]byte, error) {
	const op = "encrypt_with_nonce"
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.requireEstablished(op)
	if err != nil {
		return nil, err
	}
	ct, err := t.EncryptWithNonce(n, ad, plaintext)
	if err != nil {
		return nil, newError(EncryptionFailed, op, err)
	}
	s.stats.MessagesEncrypted++
	return ct, nil
}

// DecryptWithNonce opens a ciphertext sealed with EncryptWithNonce. It does
// no replay detection of its own.
func (s *Session) DecryptWithNonce(n uint64, ad, ciphertext []byte) ([]byte, error) {
	const op = "decrypt_with_nonce"
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.requireEstablished(op)
	if err != nil {
		return nil, err
	}
	pt, err := t.DecryptWithNonce(n, ad, ciphertext)
	if err != nil {
		s.authFailure(op, len(ciphertext), err)
		return nil, newError(DecryptionFailed, op, err)
	}
	s.stats.MessagesDecrypted++
	return pt, nil
}

// ProcessMessage reads a handshake message while handshaking and decrypts
// a transport message once established.
func (s *Session) ProcessMessage(input []byte) ([]byte, error) {
	if s.Phase() == Handshaking {
		return s.ReadHandshakeMessage(input)
	}
	return s.Decrypt(input)
}

// GenerateMessage writes a handshake message while handshaking and encrypts
// payload once established.
func (s *Session) GenerateMessage(payload []byte) ([]byte, error) {
	if s.Phase() == Handshaking {
		return s.WriteHandshakeMessage(payload)
	}
	return s.Encrypt(payload)
}

// LocalPublicKey returns our 32-byte static public key.
func (s *Session) LocalPublicKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, newError(InvalidState, "local_public_key", ErrClosed)
	}
	if s.localStatic == nil {
		return nil, newError(InvalidState, "local_public_key", noise.ErrNoStaticKey)
	}
	return crypto.CloneBytes(s.localStatic), nil
}

// RemotePublicKey returns the peer's authenticated static public key. It is
// available once established, for patterns that authenticate the peer.
func (s *Session) RemotePublicKey() ([]byte, error) {
	const op = "remote_public_key"
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireEstablished(op); err != nil {
		return nil, err
	}
	if len(s.remoteStatic) != limits.KeyLen {
		return nil, newError(InvalidState, op, ErrNoRemoteKey)
	}
	return crypto.CloneBytes(s.remoteStatic), nil
}

// HandshakeHash returns the handshake transcript hash. Both peers obtain the
// same value, which can be compared out of band to detect interception.
func (s *Session) HandshakeHash() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireEstablished("handshake_hash"); err != nil {
		return nil, err
	}
	return crypto.CloneBytes(s.hash), nil
}

// Close destroys the engine and zeroes the key material and transcript hash
// held by the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.handshake != nil {
		s.handshake.Destroy()
		s.handshake = nil
	}
	if s.transport != nil {
		s.transport.Destroy()
		s.transport = nil
	}
	crypto.ZeroBytes(s.localStatic)
	crypto.ZeroBytes(s.remoteStatic)
	crypto.ZeroBytes(s.hash)
	s.localStatic, s.remoteStatic, s.hash = nil, nil, nil

	logrus.WithFields(logrus.Fields{
		"function":   "Close",
		"session_id": s.id.String(),
		"phase":      s.phase.String(),
	}).Debug("Session closed")
	return nil
}
