package io

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/slok/assetpipe/internal/model"
)

// ManifestYAMLRepository loads package manifests from YAML files.
type ManifestYAMLRepository struct {
	fs fs.FS
}

// NewManifestYAMLRepository creates a new YAML manifest repository.
func NewManifestYAMLRepository(filesystem fs.FS) *ManifestYAMLRepository {
	return &ManifestYAMLRepository{fs: filesystem}
}

// GetManifest loads a package manifest from a YAML file and returns a validated domain model.
func (r *ManifestYAMLRepository) GetManifest(ctx context.Context, path string) (model.Manifest, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Manifest{}, fmt.Errorf("reading manifest file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Manifest{}, ctx.Err()
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return model.Manifest{}, fmt.Errorf("parsing YAML: %w", err)
	}

	mm := m.toModel()
	if err := mm.Validate(); err != nil {
		return model.Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}

	return mm, nil
}

// SaveManifestYAML validates and writes a package manifest as YAML. The file is replaced atomically.
func SaveManifestYAML(ctx context.Context, path string, m model.Manifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	data, err := yaml.Marshal(fromModel(m))
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing manifest file: %w", err)
	}

	return nil
}

// Manifest represents the YAML structure of a package manifest.
type Manifest struct {
	Package         string   `yaml:"package"`
	Version         string   `yaml:"version,omitempty"`
	RemoteBaseURL   string   `yaml:"remote_base_url,omitempty"`
	FallbackBaseURL string   `yaml:"fallback_base_url,omitempty"`
	Bundles         []Bundle `yaml:"bundles"`
}

// Bundle represents the YAML structure of a manifest bundle.
type Bundle struct {
	Name        string   `yaml:"name"`
	File        string   `yaml:"file"`
	Size        int64    `yaml:"size"`
	Hash        string   `yaml:"hash"`
	LoadMethod  string   `yaml:"load_method,omitempty"`
	Compression string   `yaml:"compression,omitempty"`
	BuiltIn     bool     `yaml:"built_in,omitempty"`
	Assets      []string `yaml:"assets,omitempty"`
}

func (m Manifest) toModel() model.Manifest {
	mm := model.Manifest{
		PackageName:     m.Package,
		Version:         m.Version,
		RemoteBaseURL:   m.RemoteBaseURL,
		FallbackBaseURL: m.FallbackBaseURL,
	}

	for _, b := range m.Bundles {
		method := model.LoadMethod(b.LoadMethod)
		if method == "" {
			method = model.LoadMethodNormal
		}
		compression := model.Compression(b.Compression)
		if compression == "" {
			compression = model.CompressionNone
		}

		mm.Bundles = append(mm.Bundles, model.ManifestBundle{
			Name:        b.Name,
			FileName:    b.File,
			FileSize:    b.Size,
			FileHash:    b.Hash,
			LoadMethod:  method,
			Compression: compression,
			BuiltIn:     b.BuiltIn,
			Assets:      b.Assets,
		})
	}

	return mm
}

func fromModel(m model.Manifest) Manifest {
	ym := Manifest{
		Package:         m.PackageName,
		Version:         m.Version,
		RemoteBaseURL:   m.RemoteBaseURL,
		FallbackBaseURL: m.FallbackBaseURL,
	}

	for _, b := range m.Bundles {
		compression := string(b.Compression)
		if b.Compression == model.CompressionNone {
			compression = ""
		}

		ym.Bundles = append(ym.Bundles, Bundle{
			Name:        b.Name,
			File:        b.FileName,
			Size:        b.FileSize,
			Hash:        b.FileHash,
			LoadMethod:  string(b.LoadMethod),
			Compression: compression,
			BuiltIn:     b.BuiltIn,
			Assets:      b.Assets,
		})
	}

	return ym
}
