package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the number of iterations for key derivation (NIST recommendation)
	PBKDF2Iterations = 100000
	// EncryptionVersion is the current record format version
	EncryptionVersion = 1
	// SaltSize is the size of the salt for PBKDF2
	SaltSize = 32

	identityPrefix = "identity_"
	identitySuffix = ".key"
	sessionPrefix  = "session_"
	sessionSuffix  = ".state"
	recordHeader   = 2
)

// EncryptedKeyStore is a file-backed KeyStorage that seals every record with
// ChaCha20-Poly1305 under a key derived from a master password.
//
// Record format: [version:2][nonce:12][ciphertext+tag:N]. The record file
// name is bound as associated data so records cannot be swapped on disk.
type EncryptedKeyStore struct {
	mu            sync.Mutex
	encryptionKey [32]byte
	dataDir       string
	saltFile      string
	closed        bool
}

var _ KeyStorage = (*EncryptedKeyStore)(nil)

// NewEncryptedKeyStore creates a key store with encryption at rest. The
// master password is wiped before returning.
func NewEncryptedKeyStore(dataDir string, masterPassword []byte) (*EncryptedKeyStore, error) {
	if len(masterPassword) == 0 {
		return nil, fmt.Errorf("master password cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	ks := &EncryptedKeyStore{
		dataDir:  dataDir,
		saltFile: filepath.Join(dataDir, ".salt"),
	}

	salt, err := ks.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derivedKey := pbkdf2.Key(masterPassword, salt, PBKDF2Iterations, 32, sha256.New)
	copy(ks.encryptionKey[:], derivedKey)

	ZeroBytes(derivedKey)
	ZeroBytes(masterPassword)

	return ks, nil
}

// loadOrGenerateSalt loads existing salt or generates a new one
func (ks *EncryptedKeyStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(ks.saltFile)
	if err == nil {
		if len(data) != SaltSize {
			return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(ks.saltFile, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

func identityFile(id string) string {
	return identityPrefix + hex.EncodeToString([]byte(id)) + identitySuffix
}

func sessionFile(id string) string {
	return sessionPrefix + hex.EncodeToString([]byte(id)) + sessionSuffix
}

// writeEncrypted seals plaintext and atomically replaces filename.
func (ks *EncryptedKeyStore) writeEncrypted(filename string, plaintext []byte) error {
	aead, err := chacha20poly1305.New(ks.encryptionKey[:])
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	output := make([]byte, recordHeader+len(nonce), recordHeader+len(nonce)+len(plaintext)+aead.Overhead())
	binary.BigEndian.PutUint16(output[0:recordHeader], EncryptionVersion)
	copy(output[recordHeader:], nonce)
	output = aead.Seal(output, nonce, plaintext, []byte(filename))

	tmpFile := filepath.Join(ks.dataDir, filename+".tmp")
	finalFile := filepath.Join(ks.dataDir, filename)

	if err := os.WriteFile(tmpFile, output, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpFile, finalFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// readEncrypted reads and opens filename.
func (ks *EncryptedKeyStore) readEncrypted(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(ks.dataDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	aead, err := chacha20poly1305.New(ks.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	minLen := recordHeader + aead.NonceSize() + aead.Overhead()
	if len(data) < minLen {
		return nil, fmt.Errorf("file too short: %d bytes (minimum %d bytes)", len(data), minLen)
	}

	version := binary.BigEndian.Uint16(data[0:recordHeader])
	if version != EncryptionVersion {
		return nil, fmt.Errorf("unsupported encryption version: %d (expected %d)", version, EncryptionVersion)
	}

	nonce := data[recordHeader : recordHeader+aead.NonceSize()]
	ciphertext := data[recordHeader+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(filename))
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted data): %w", err)
	}
	return plaintext, nil
}

// deleteEncrypted overwrites filename with zeros and removes it.
func (ks *EncryptedKeyStore) deleteEncrypted(filename string) error {
	filePath := filepath.Join(ks.dataDir, filename)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// Best-effort overwrite; removal proceeds regardless
	_ = os.WriteFile(filePath, make([]byte, info.Size()), 0o600)
	return os.Remove(filePath)
}

func (ks *EncryptedKeyStore) guard() error {
	if ks.closed {
		return ErrStoreClosed
	}
	return nil
}

// StoreIdentity encrypts and stores a 32-byte identity key under id.
func (ks *EncryptedKeyStore) StoreIdentity(key []byte, id string) error {
	if len(key) != 32 {
		return ErrInvalidKeySize
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return err
	}
	return ks.writeEncrypted(identityFile(id), key)
}

// LoadIdentity decrypts and returns the identity key stored under id.
func (ks *EncryptedKeyStore) LoadIdentity(id string) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return nil, err
	}
	return ks.readEncrypted(identityFile(id))
}

// DeleteIdentity securely deletes the identity stored under id.
func (ks *EncryptedKeyStore) DeleteIdentity(id string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return err
	}
	return ks.deleteEncrypted(identityFile(id))
}

// ListIdentities returns the stored identity ids in sorted order.
func (ks *EncryptedKeyStore) ListIdentities() ([]string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(ks.dataDir, identityPrefix+"*"+identitySuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), identityPrefix), identitySuffix)
		raw, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		ids = append(ids, string(raw))
	}
	sort.Strings(ids)
	return ids, nil
}

// HasIdentity reports whether an identity record exists for id.
func (ks *EncryptedKeyStore) HasIdentity(id string) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(ks.dataDir, identityFile(id)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// StoreSession encrypts and stores opaque session state under sessionID.
func (ks *EncryptedKeyStore) StoreSession(sessionID string, data []byte) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return err
	}
	return ks.writeEncrypted(sessionFile(sessionID), data)
}

// LoadSession decrypts and returns the state stored under sessionID.
func (ks *EncryptedKeyStore) LoadSession(sessionID string) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return nil, err
	}
	return ks.readEncrypted(sessionFile(sessionID))
}

// DeleteSession securely deletes the state stored under sessionID.
func (ks *EncryptedKeyStore) DeleteSession(sessionID string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.guard(); err != nil {
		return err
	}
	return ks.deleteEncrypted(sessionFile(sessionID))
}

// Close wipes the encryption key from memory. Subsequent calls fail with
// ErrStoreClosed.
func (ks *EncryptedKeyStore) Close() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ZeroBytes(ks.encryptionKey[:])
	ks.closed = true
	return nil
}
