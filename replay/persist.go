package replay

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/noisemobile/crypto"
	"github.com/sirupsen/logrus"
)

const (
	stateVersion    = 1
	stateHeaderSize = 1 + 8 + 8
)

// ErrCorruptState indicates serialized window state that cannot be restored
var ErrCorruptState = errors.New("corrupt window state")

// SerializedSize returns the byte length of Serialize's output.
func (w *Window) SerializedSize() int {
	return stateHeaderSize + len(w.ring)
}

// Serialize encodes the counters and bitmap:
//
//	[1 byte version][8 bytes last sent][8 bytes last received][size/8 bytes bitmap]
//
// Counters are big-endian. Bit d of the bitmap (byte d/8, bit d%8) is set
// when counter lastReceived-d has been accepted. No key material is included.
func (w *Window) Serialize() []byte {
	buf := make([]byte, w.SerializedSize())
	buf[0] = stateVersion
	binary.BigEndian.PutUint64(buf[1:9], w.lastSent)
	binary.BigEndian.PutUint64(buf[9:17], w.lastReceived)

	bitmap := buf[stateHeaderSize:]
	for d := uint64(0); d < w.size && d < w.lastReceived; d++ {
		if w.seen(w.lastReceived - d) {
			bitmap[d/8] |= 1 << (d % 8)
		}
	}
	return buf
}

// Deserialize replaces the window state with data produced by Serialize on a
// window of the same size. On error the window is left unchanged.
func (w *Window) Deserialize(data []byte) error {
	if len(data) != w.SerializedSize() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrCorruptState, len(data), w.SerializedSize())
	}
	if data[0] != stateVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptState, data[0])
	}
	lastSent := binary.BigEndian.Uint64(data[1:9])
	lastReceived := binary.BigEndian.Uint64(data[9:17])
	if lastSent > MaxCounter {
		return fmt.Errorf("%w: send counter %d out of range", ErrCorruptState, lastSent)
	}

	bitmap := data[stateHeaderSize:]
	ring := make([]byte, len(w.ring))
	for d := uint64(0); d < w.size; d++ {
		if bitmap[d/8]&(1<<(d%8)) == 0 {
			continue
		}
		// counter 0 and below are never valid
		if d >= lastReceived {
			return fmt.Errorf("%w: bit %d set below counter 1", ErrCorruptState, d)
		}
		idx := (lastReceived - d) % w.size
		ring[idx/8] |= 1 << (idx % 8)
	}

	w.lastSent = lastSent
	w.lastReceived = lastReceived
	copy(w.ring, ring)
	crypto.ZeroBytes(ring)
	return nil
}

// SaveState writes the serialized window to storage under id.
func (w *Window) SaveState(storage crypto.KeyStorage, id string) error {
	if storage == nil {
		return errors.New("key storage is nil")
	}
	if err := storage.StoreSession(id, w.Serialize()); err != nil {
		return fmt.Errorf("failed to save window state: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":      "SaveState",
		"id":            id,
		"last_sent":     w.lastSent,
		"last_received": w.lastReceived,
	}).Debug("Window state saved")
	return nil
}

// LoadState restores the window from storage. It returns
// crypto.ErrKeyNotFound, wrapped, when nothing was saved under id.
func (w *Window) LoadState(storage crypto.KeyStorage, id string) error {
	if storage == nil {
		return errors.New("key storage is nil")
	}
	data, err := storage.LoadSession(id)
	if err != nil {
		return fmt.Errorf("failed to load window state: %w", err)
	}
	defer crypto.ZeroBytes(data)
	return w.Deserialize(data)
}
