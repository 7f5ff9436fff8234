package model

import "fmt"

// LoadMode is where the bytes of a bundle physically originate.
type LoadMode string

const (
	LoadModeRemote    LoadMode = "remote"
	LoadModeStreaming LoadMode = "streaming"
	LoadModeCache     LoadMode = "cache"
)

// LoadMethod is how the bundle bytes are handed to the bundle engine.
type LoadMethod string

const (
	LoadMethodNormal     LoadMethod = "normal"
	LoadMethodFileOffset LoadMethod = "file_offset"
	LoadMethodMemory     LoadMethod = "memory"
	LoadMethodStream     LoadMethod = "stream"
)

// Encrypted returns true when the method needs decryption services to load.
func (m LoadMethod) Encrypted() bool {
	return m != LoadMethodNormal
}

// Compression is the compression of a bundle copy shipped in the streaming location.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// BundleDescriptor is the immutable metadata of a single bundle the loader works with.
type BundleDescriptor struct {
	PackageName string
	BundleName  string
	// FileSize is the size in bytes of the stored (already encoded) bundle file.
	FileSize int64
	// FileHash is the hex BLAKE3 digest of the stored bundle file.
	FileHash string
	CacheID  string

	LoadMode    LoadMode
	LoadMethod  LoadMethod
	Compression Compression

	StreamingFilePath string
	CachedFilePath    string
	RemoteURL         string
	FallbackURL       string
}

// Validate validates the descriptor metadata that doesn't depend on the load mode.
func (b BundleDescriptor) Validate() error {
	if b.PackageName == "" {
		return fmt.Errorf("package name is required: %w", ErrNotValid)
	}
	if b.BundleName == "" {
		return fmt.Errorf("bundle name is required: %w", ErrNotValid)
	}
	if b.FileSize < 0 {
		return fmt.Errorf("file size can't be negative: %w", ErrNotValid)
	}
	return nil
}
