// Package decrypt has the decryption services used to load encrypted bundle files.
package decrypt

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/slok/assetpipe/internal/model"
)

// FileInfo is the bundle file that needs to be decrypted.
type FileInfo struct {
	BundleName string
	FilePath   string
}

// Services knows how to prepare encrypted bundle files for loading.
type Services interface {
	// LoadFromFileOffset returns the offset where the bundle starts inside the file.
	LoadFromFileOffset(fi FileInfo) (uint64, error)
	// LoadFromMemory returns the decrypted bundle bytes.
	LoadFromMemory(fi FileInfo) ([]byte, error)
	// LoadFromStream returns a stream of the decrypted bundle, the caller owns it and must close it.
	LoadFromStream(fi FileInfo) (io.ReadSeekCloser, error)
	// ManagedReadBufferSize is the read buffer size recommended for stream loads.
	ManagedReadBufferSize() uint32
}

// KeySize is the size in bytes of the master key.
const KeySize = 32

// ParseKey parses a hex encoded master key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d: %w", KeySize, len(key), model.ErrNotValid)
	}
	return key, nil
}
