package model

import "fmt"

// Manifest describes all the bundles of a package.
type Manifest struct {
	PackageName     string
	Version         string
	RemoteBaseURL   string
	FallbackBaseURL string
	Bundles         []ManifestBundle
}

// ManifestBundle is a single bundle entry of a package manifest.
type ManifestBundle struct {
	Name string
	// FileName is the name of the stored file, relative to the package location.
	FileName    string
	FileSize    int64
	FileHash    string
	LoadMethod  LoadMethod
	Compression Compression
	// BuiltIn marks bundles shipped in the streaming location.
	BuiltIn bool
	Assets  []string
}

// CacheID returns the identifier of the bundle inside the cache. Bundles are content addressed
// so the same file is cached once even if it's renamed between versions.
func (b ManifestBundle) CacheID() string {
	return b.FileHash
}

// Bundle returns the manifest bundle by name.
func (m Manifest) Bundle(name string) (*ManifestBundle, error) {
	for i := range m.Bundles {
		if m.Bundles[i].Name == name {
			return &m.Bundles[i], nil
		}
	}
	return nil, fmt.Errorf("bundle %s in package %s: %w", name, m.PackageName, ErrNotFound)
}

// Validate validates the manifest.
func (m Manifest) Validate() error {
	if m.PackageName == "" {
		return fmt.Errorf("package name is required: %w", ErrNotValid)
	}

	names := map[string]struct{}{}
	for _, b := range m.Bundles {
		if b.Name == "" {
			return fmt.Errorf("bundle name is required: %w", ErrNotValid)
		}
		if _, ok := names[b.Name]; ok {
			return fmt.Errorf("bundle %s is duplicated: %w", b.Name, ErrNotValid)
		}
		names[b.Name] = struct{}{}

		if b.FileName == "" {
			return fmt.Errorf("bundle %s file name is required: %w", b.Name, ErrNotValid)
		}
		if b.FileHash == "" {
			return fmt.Errorf("bundle %s file hash is required: %w", b.Name, ErrNotValid)
		}
		if b.FileSize < 0 {
			return fmt.Errorf("bundle %s has negative file size %d: %w", b.Name, b.FileSize, ErrNotValid)
		}
		switch b.LoadMethod {
		case LoadMethodNormal, LoadMethodFileOffset, LoadMethodMemory, LoadMethodStream:
		default:
			return fmt.Errorf("bundle %s has unknown load method %q: %w", b.Name, b.LoadMethod, ErrNotValid)
		}
		switch b.Compression {
		case "", CompressionNone, CompressionLZ4, CompressionZstd:
		default:
			return fmt.Errorf("bundle %s has unknown compression %q: %w", b.Name, b.Compression, ErrNotValid)
		}
	}

	return nil
}
