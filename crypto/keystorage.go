package crypto

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrKeyNotFound is returned when an identity or session record is absent
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidKeySize is returned when an identity key is not 32 bytes
	ErrInvalidKeySize = errors.New("identity key must be 32 bytes")

	// ErrStoreClosed is returned by a key store after Close
	ErrStoreClosed = errors.New("key store closed")
)

// KeyStorage persists static identity keys and opaque session state (such as
// a serialized replay window) between process runs. Implementations return
// copies; callers own and should wipe what they receive.
type KeyStorage interface {
	StoreIdentity(key []byte, id string) error
	LoadIdentity(id string) ([]byte, error)
	DeleteIdentity(id string) error
	ListIdentities() ([]string, error)
	HasIdentity(id string) (bool, error)

	StoreSession(sessionID string, data []byte) error
	LoadSession(sessionID string) ([]byte, error)
	DeleteSession(sessionID string) error
}

// MemoryKeyStorage keeps keys in process memory. Intended for tests and for
// hosts that delegate durable storage elsewhere. Safe for concurrent use.
type MemoryKeyStorage struct {
	mu       sync.Mutex
	keys     map[string][]byte
	sessions map[string][]byte
}

// NewMemoryKeyStorage creates an empty in-memory key store.
func NewMemoryKeyStorage() *MemoryKeyStorage {
	return &MemoryKeyStorage{
		keys:     make(map[string][]byte),
		sessions: make(map[string][]byte),
	}
}

// StoreIdentity stores a copy of key under id, wiping any previous value.
func (m *MemoryKeyStorage) StoreIdentity(key []byte, id string) error {
	if len(key) != 32 {
		return ErrInvalidKeySize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.keys[id]; ok {
		ZeroBytes(old)
	}
	m.keys[id] = CloneBytes(key)
	return nil
}

// LoadIdentity returns a copy of the key stored under id.
func (m *MemoryKeyStorage) LoadIdentity(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return CloneBytes(key), nil
}

// DeleteIdentity wipes and removes the key stored under id.
func (m *MemoryKeyStorage) DeleteIdentity(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[id]; ok {
		ZeroBytes(key)
		delete(m.keys, id)
	}
	return nil
}

// ListIdentities returns the stored identity ids in sorted order.
func (m *MemoryKeyStorage) ListIdentities() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.keys))
	for id := range m.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// HasIdentity reports whether an identity is stored under id.
func (m *MemoryKeyStorage) HasIdentity(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[id]
	return ok, nil
}

// StoreSession stores a copy of data under sessionID.
func (m *MemoryKeyStorage) StoreSession(sessionID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[sessionID]; ok {
		ZeroBytes(old)
	}
	m.sessions[sessionID] = append([]byte(nil), data...)
	return nil
}

// LoadSession returns a copy of the data stored under sessionID.
func (m *MemoryKeyStorage) LoadSession(sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), data...), nil
}

// DeleteSession wipes and removes the data stored under sessionID.
func (m *MemoryKeyStorage) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.sessions[sessionID]; ok {
		ZeroBytes(data)
		delete(m.sessions, sessionID)
	}
	return nil
}

// Clear wipes and removes every stored key and session record.
func (m *MemoryKeyStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, key := range m.keys {
		ZeroBytes(key)
		delete(m.keys, id)
	}
	for id, data := range m.sessions {
		ZeroBytes(data)
		delete(m.sessions, id)
	}
}
