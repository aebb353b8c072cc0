package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"
)

// Record fields of the on-disk file.
//
//	field 1 (varint): format version
//	field 2 (bytes):  image
//	field 3 (bytes):  blake2b-256 of the image
const (
	fieldVersion  protowire.Number = 1
	fieldImage    protowire.Number = 2
	fieldChecksum protowire.Number = 3

	fileVersion = 1
)

// ErrChecksum is returned by DecodeImage when the stored checksum does not
// match the image.
var ErrChecksum = errors.New("store: image checksum mismatch")

// File is a Store backed by a file. Every Write rewrites the file.
type File struct {
	path string

	mu  sync.Mutex
	img []byte
}

// OpenFile loads the image at path. A missing or damaged file yields an
// erased image of size bytes, which Open then initialises.
func OpenFile(path string, size int) (*File, error) {
	if size <= 0 {
		size = DefaultSize
	}
	f := &File{path: path, img: NewMemory(size).Bytes()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	img, err := DecodeImage(data)
	if err != nil {
		slog.Warn("[STORE] discarding damaged image", "path", path, "error", err)
		return f, nil
	}
	copy(f.img, img)
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) Read(offset, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readImage(f.img, offset, n)
}

func (f *File) Write(offset int, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeImage(f.img, offset, b); err != nil {
		return err
	}
	return f.flush()
}

func (f *File) flush() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, EncodeImage(f.img), 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("store: replace %s: %w", f.path, err)
	}
	return nil
}

// EncodeImage serialises img with its checksum.
func EncodeImage(img []byte) []byte {
	sum := blake2b.Sum256(img)
	var buf []byte
	buf = protowire.AppendTag(buf, fieldVersion, protowire.VarintType)
	buf = protowire.AppendVarint(buf, fileVersion)
	buf = protowire.AppendTag(buf, fieldImage, protowire.BytesType)
	buf = protowire.AppendBytes(buf, img)
	buf = protowire.AppendTag(buf, fieldChecksum, protowire.BytesType)
	buf = protowire.AppendBytes(buf, sum[:])
	return buf
}

// DecodeImage parses a file written by EncodeImage. Unknown fields are skipped.
func DecodeImage(data []byte) ([]byte, error) {
	var (
		version uint64
		img     []byte
		sum     []byte
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("store: reading tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(data)
		case num == fieldImage && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			img = append([]byte(nil), v...)
		case num == fieldChecksum && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			sum = append([]byte(nil), v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, fmt.Errorf("store: reading field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}

	if version != fileVersion {
		return nil, fmt.Errorf("store: unsupported format version %d", version)
	}
	want := blake2b.Sum256(img)
	if !bytes.Equal(sum, want[:]) {
		return nil, ErrChecksum
	}
	return img, nil
}
