package noise

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/opd-ai/noisemobile/crypto"
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator sends the first handshake message
	Initiator HandshakeRole = iota
	// Responder responds to handshake initiation
	Responder
)

// String returns the role name.
func (r HandshakeRole) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Pattern names a supported Noise handshake pattern.
type Pattern string

const (
	// PatternXX provides mutual authentication without prior key knowledge (3 messages)
	PatternXX Pattern = "XX"
	// PatternIK requires the initiator to know the responder's static key (2 messages)
	PatternIK Pattern = "IK"
	// PatternNN performs an unauthenticated ephemeral exchange (2 messages)
	PatternNN Pattern = "NN"
)

// ProtocolName returns the full Noise protocol name for a pattern.
func (p Pattern) ProtocolName() string {
	return "Noise_" + string(p) + "_25519_ChaChaPoly_BLAKE2s"
}

// hasStatic reports whether the local side carries a static key.
func (p Pattern) hasStatic() bool {
	return p != PatternNN
}

// AuthenticatesPeer reports whether the pattern yields the remote static key.
func (p Pattern) AuthenticatesPeer() bool {
	return p == PatternXX || p == PatternIK
}

// Config configures a handshake engine.
type Config struct {
	Role    HandshakeRole
	Pattern Pattern
	// StaticKey is our 32-byte static private key. A fresh key is generated
	// when nil and the pattern needs one.
	StaticKey []byte
	// PeerStatic is the responder's public key, required by IK initiators.
	PeerStatic []byte
	Prologue   []byte
	// Random defaults to crypto/rand.
	Random io.Reader
}

// cipherSuite is shared by every supported pattern.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// Handshake implements HandshakeEngine over a flynn/noise HandshakeState.
type Handshake struct {
	role         HandshakeRole
	pattern      Pattern
	state        *noise.HandshakeState
	static       *crypto.KeyPair
	sendCipher   *noise.CipherState
	recvCipher   *noise.CipherState
	messageIndex int
	complete     bool
	consumed     bool
	hash         []byte
	peerStatic   []byte
}

var _ HandshakeEngine = (*Handshake)(nil)

// NewHandshake creates a handshake engine for the configured pattern and role.
func NewHandshake(cfg Config) (*Handshake, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = PatternXX
	}
	if err := validateHandshakePattern(cfg.Pattern); err != nil {
		return nil, fmt.Errorf("handshake pattern validation failed: %w", err)
	}
	if cfg.Role != Initiator && cfg.Role != Responder {
		return nil, fmt.Errorf("invalid handshake role %d", cfg.Role)
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}

	hs := &Handshake{
		role:    cfg.Role,
		pattern: cfg.Pattern,
	}

	config := noise.Config{
		CipherSuite: cipherSuite,
		Random:      cfg.Random,
		Pattern:     handshakePattern(cfg.Pattern),
		Initiator:   cfg.Role == Initiator,
		Prologue:    cfg.Prologue,
	}

	if cfg.Pattern.hasStatic() {
		static, err := loadStatic(cfg.StaticKey)
		if err != nil {
			return nil, err
		}
		hs.static = static
		// flynn/noise keeps the slices; they alias our KeyPair so Destroy wipes them
		config.StaticKeypair = noise.DHKey{
			Private: hs.static.Private[:],
			Public:  hs.static.Public[:],
		}
	} else if cfg.StaticKey != nil {
		return nil, fmt.Errorf("pattern %s does not use a static key", cfg.Pattern)
	}

	if cfg.Pattern == PatternIK && cfg.Role == Initiator {
		if len(cfg.PeerStatic) != 32 {
			return nil, fmt.Errorf("initiator requires peer public key (32 bytes), got %d", len(cfg.PeerStatic))
		}
		config.PeerStatic = crypto.CloneBytes(cfg.PeerStatic)
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		hs.wipeStatic()
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}
	hs.state = state
	return hs, nil
}

// loadStatic derives or generates the local static key pair.
func loadStatic(key []byte) (*crypto.KeyPair, error) {
	if key == nil {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate static key: %w", err)
		}
		return kp, nil
	}
	kp, err := crypto.FromSecretKeyBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}
	return kp, nil
}

// messageOverhead lists, per pattern, the bytes each handshake message adds
// to its payload: ephemeral keys, encrypted static keys and payload tags.
var messageOverhead = map[Pattern][]int{
	PatternXX: {32, 96, 64},
	PatternIK: {96, 48},
	PatternNN: {32, 48},
}

func handshakePattern(p Pattern) noise.HandshakePattern {
	switch p {
	case PatternIK:
		return noise.HandshakeIK
	case PatternNN:
		return noise.HandshakeNN
	default:
		return noise.HandshakeXX
	}
}

// writeTurn reports whether the next message is ours to write. Every
// supported pattern alternates, starting with the initiator.
func (hs *Handshake) writeTurn() bool {
	return (hs.messageIndex%2 == 0) == (hs.role == Initiator)
}

func (hs *Handshake) usable() error {
	if hs.consumed {
		return ErrHandshakeConsumed
	}
	if hs.complete {
		return ErrHandshakeComplete
	}
	return nil
}

// WriteMessage produces the next handshake message carrying payload.
func (hs *Handshake) WriteMessage(payload []byte) ([]byte, error) {
	if err := hs.usable(); err != nil {
		return nil, err
	}
	if !hs.writeTurn() {
		return nil, ErrOutOfTurn
	}

	message, cs1, cs2, err := hs.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%s handshake write failed: %w", hs.pattern, err)
	}
	hs.messageIndex++
	hs.finish(cs1, cs2)
	return message, nil
}

// ReadMessage consumes the peer's next handshake message and returns its payload.
func (hs *Handshake) ReadMessage(message []byte) ([]byte, error) {
	if err := hs.usable(); err != nil {
		return nil, err
	}
	if hs.writeTurn() {
		return nil, ErrOutOfTurn
	}

	payload, cs1, cs2, err := hs.state.ReadMessage(nil, message)
	if err != nil {
		return nil, fmt.Errorf("%s handshake read failed: %w", hs.pattern, err)
	}
	hs.messageIndex++
	hs.finish(cs1, cs2)
	return payload, nil
}

// finish records the split cipher states when the pattern completes. The
// first state always protects initiator-to-responder traffic.
func (hs *Handshake) finish(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	if hs.role == Initiator {
		hs.sendCipher, hs.recvCipher = cs1, cs2
	} else {
		hs.sendCipher, hs.recvCipher = cs2, cs1
	}
	hs.hash = crypto.CloneBytes(hs.state.ChannelBinding())
	if hs.pattern.AuthenticatesPeer() {
		hs.peerStatic = crypto.CloneBytes(hs.state.PeerStatic())
	}
	hs.complete = true
}

// NextOverhead returns how many bytes the next handshake message, in either
// direction, adds to its payload.
func (hs *Handshake) NextOverhead() (int, error) {
	if err := hs.usable(); err != nil {
		return 0, err
	}
	sizes := messageOverhead[hs.pattern]
	if hs.messageIndex >= len(sizes) {
		return 0, ErrHandshakeComplete
	}
	return sizes[hs.messageIndex], nil
}

// IsComplete returns true if handshake is finished and cipher states are available.
func (hs *Handshake) IsComplete() bool {
	return hs.complete
}

// MessageIndex returns the number of handshake messages processed so far.
func (hs *Handshake) MessageIndex() int {
	return hs.messageIndex
}

// IntoTransport consumes the completed handshake and returns its transport
// engine. It succeeds exactly once.
func (hs *Handshake) IntoTransport() (TransportEngine, error) {
	if hs.consumed {
		return nil, ErrHandshakeConsumed
	}
	if !hs.complete {
		return nil, ErrHandshakeNotComplete
	}
	if hs.sendCipher == nil || hs.recvCipher == nil {
		return nil, fmt.Errorf("cipher states not available")
	}

	t := newTransport(hs.sendCipher.Cipher(), hs.recvCipher.Cipher(), hs.peerStatic, hs.hash)
	hs.consumed = true
	hs.sendCipher, hs.recvCipher = nil, nil
	crypto.ZeroBytes(hs.peerStatic)
	crypto.ZeroBytes(hs.hash)
	hs.peerStatic, hs.hash = nil, nil
	hs.state = nil
	hs.wipeStatic()
	return t, nil
}

// LocalStaticKey returns a copy of our static public key, or nil for
// patterns without one.
func (hs *Handshake) LocalStaticKey() []byte {
	if hs.static == nil {
		return nil
	}
	return crypto.CloneBytes(hs.static.Public[:])
}

// Destroy wipes the static key and drops the handshake state.
func (hs *Handshake) Destroy() {
	hs.wipeStatic()
	crypto.ZeroBytes(hs.hash)
	crypto.ZeroBytes(hs.peerStatic)
	hs.state = nil
	hs.sendCipher, hs.recvCipher = nil, nil
	hs.consumed = true
}

func (hs *Handshake) wipeStatic() {
	if hs.static != nil {
		_ = crypto.WipeKeyPair(hs.static)
		hs.static = nil
	}
}

// validateHandshakePattern validates that a handshake pattern is supported.
func validateHandshakePattern(pattern Pattern) error {
	supportedPatterns := map[Pattern]bool{
		PatternXX: true,  // default, mutual authentication without pre-shared keys
		PatternIK: true,  // initiator knows the responder's key from a previous contact
		PatternNN: true,  // anonymous exchange, no remote static key
		"XK":      false, // not exposed through the mobile boundary
		"KK":      false,
	}

	supported, exists := supportedPatterns[pattern]
	if !exists {
		return fmt.Errorf("unknown handshake pattern: %s", pattern)
	}
	if !supported {
		return fmt.Errorf("handshake pattern %s is not yet supported", pattern)
	}
	return nil
}
