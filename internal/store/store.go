// Package store is the persistent storage collaborator: a small
// byte-addressed image with a fixed application header and per-service
// regions allocated after it.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfRange is returned for accesses past the end of the image.
var ErrOutOfRange = errors.New("store: access out of range")

// Store reads and writes the persistent image.
type Store interface {
	Read(offset, n int) ([]byte, error)
	Write(offset int, b []byte) error
}

// DefaultSize is the image size used when none is given.
const DefaultSize = 256

// Memory is a volatile Store. A new image reads as erased (0xFF).
type Memory struct {
	mu  sync.Mutex
	img []byte
}

// NewMemory returns an erased image of size bytes.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	img := make([]byte, size)
	for i := range img {
		img[i] = 0xFF
	}
	return &Memory{img: img}
}

func (m *Memory) Read(offset, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return readImage(m.img, offset, n)
}

func (m *Memory) Write(offset int, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeImage(m.img, offset, b)
}

// Bytes returns a copy of the image.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.img...)
}

func readImage(img []byte, offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(img) {
		return nil, fmt.Errorf("%w: read %d bytes at %d (size %d)", ErrOutOfRange, n, offset, len(img))
	}
	out := make([]byte, n)
	copy(out, img[offset:offset+n])
	return out, nil
}

func writeImage(img []byte, offset int, b []byte) error {
	if offset < 0 || offset+len(b) > len(img) {
		return fmt.Errorf("%w: write %d bytes at %d (size %d)", ErrOutOfRange, len(b), offset, len(img))
	}
	copy(img[offset:], b)
	return nil
}

// ReadUint16 reads a little-endian word.
func ReadUint16(s Store, offset int) (uint16, error) {
	b, err := s.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// WriteUint16 writes a little-endian word.
func WriteUint16(s Store, offset int, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return s.Write(offset, b[:])
}
