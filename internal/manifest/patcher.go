// Package manifest resolves the bundle descriptors the loader works with from a package manifest.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/slok/assetpipe/internal/conventions"
	"github.com/slok/assetpipe/internal/download"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// CacheLookup looks up cached bundle files.
type CacheLookup interface {
	Lookup(ctx context.Context, packageName, cacheID string) (*model.CacheRecord, error)
}

// PatcherConfig is the configuration of the Patcher.
type PatcherConfig struct {
	Manifest model.Manifest
	// CacheDir is the root of the bundle cache.
	CacheDir string
	// StreamingDir is the root of the streaming location with the built-in bundles.
	StreamingDir string
	Cache        CacheLookup
	Logger       log.Logger
}

func (c *PatcherConfig) defaults() error {
	if err := c.Manifest.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	if c.CacheDir == "" {
		return fmt.Errorf("cache dir is required")
	}

	if c.Cache == nil {
		return fmt.Errorf("cache lookup is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "manifest.Patcher"})

	return nil
}

// Patcher resolves where the bundles of a package manifest are loaded from.
type Patcher struct {
	manifest     model.Manifest
	cacheDir     string
	streamingDir string
	cache        CacheLookup
	logger       log.Logger
}

// NewPatcher returns a new manifest patcher.
func NewPatcher(cfg PatcherConfig) (*Patcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Patcher{
		manifest:     cfg.Manifest,
		cacheDir:     cfg.CacheDir,
		streamingDir: cfg.StreamingDir,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
	}, nil
}

// Manifest returns the patched manifest.
func (p *Patcher) Manifest() model.Manifest { return p.manifest }

// Descriptor returns the descriptor of a bundle. The load mode is resolved in order:
// cache when the file is recorded and present, streaming for built-in bundles, and remote
// for the rest.
func (p *Patcher) Descriptor(ctx context.Context, bundleName string) (model.BundleDescriptor, error) {
	mb, err := p.manifest.Bundle(bundleName)
	if err != nil {
		return model.BundleDescriptor{}, err
	}

	pkg := p.manifest.PackageName
	cacheID := mb.CacheID()
	desc := model.BundleDescriptor{
		PackageName:    pkg,
		BundleName:     mb.Name,
		FileSize:       mb.FileSize,
		FileHash:       mb.FileHash,
		CacheID:        cacheID,
		LoadMethod:     mb.LoadMethod,
		Compression:    mb.Compression,
		CachedFilePath: conventions.CachedDataFilePath(p.cacheDir, pkg, cacheID),
	}
	if p.streamingDir != "" {
		desc.StreamingFilePath = conventions.StreamingFilePath(p.streamingDir, pkg, mb.FileName)
	}

	if p.manifest.RemoteBaseURL != "" {
		desc.RemoteURL, err = url.JoinPath(p.manifest.RemoteBaseURL, mb.FileName)
		if err != nil {
			return model.BundleDescriptor{}, fmt.Errorf("invalid remote base URL: %w", err)
		}
	}
	if p.manifest.FallbackBaseURL != "" {
		desc.FallbackURL, err = url.JoinPath(p.manifest.FallbackBaseURL, mb.FileName)
		if err != nil {
			return model.BundleDescriptor{}, fmt.Errorf("invalid fallback base URL: %w", err)
		}
	}

	cached, err := p.isCached(ctx, pkg, cacheID)
	if err != nil {
		return model.BundleDescriptor{}, err
	}

	switch {
	case cached:
		desc.LoadMode = model.LoadModeCache
	case mb.BuiltIn && desc.StreamingFilePath != "":
		desc.LoadMode = model.LoadModeStreaming
	case desc.RemoteURL != "":
		desc.LoadMode = model.LoadModeRemote
	default:
		return model.BundleDescriptor{}, fmt.Errorf("bundle %s is not cached, built-in or remote: %w", mb.Name, model.ErrNotFound)
	}

	p.logger.Debugf("Bundle %s/%s resolved to %s mode", pkg, mb.Name, desc.LoadMode)
	return desc, nil
}

func (p *Patcher) isCached(ctx context.Context, pkg, cacheID string) (bool, error) {
	rec, err := p.cache.Lookup(ctx, pkg, cacheID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("could not lookup cache: %w", err)
	}

	if _, err := os.Stat(rec.DataFilePath); err != nil {
		p.logger.Warningf("Cached file %s of %s/%s is recorded but missing", rec.DataFilePath, pkg, cacheID)
		return false, nil
	}

	return true, nil
}

// GetUnpackDescriptor returns the transfer descriptor that unpacks a built-in bundle
// from the streaming location into the cache.
func (p *Patcher) GetUnpackDescriptor(desc model.BundleDescriptor) download.Descriptor {
	return download.Descriptor{
		PackageName: desc.PackageName,
		BundleName:  desc.BundleName,
		CacheID:     desc.CacheID,
		FileSize:    desc.FileSize,
		FileHash:    desc.FileHash,
		SourcePath:  desc.StreamingFilePath,
		Compression: desc.Compression,
		SavePath:    desc.CachedFilePath,
	}
}

// GetDownloadDescriptor returns the transfer descriptor that downloads a bundle into the cache.
func GetDownloadDescriptor(desc model.BundleDescriptor) download.Descriptor {
	return download.Descriptor{
		PackageName: desc.PackageName,
		BundleName:  desc.BundleName,
		CacheID:     desc.CacheID,
		FileSize:    desc.FileSize,
		FileHash:    desc.FileHash,
		RemoteURL:   desc.RemoteURL,
		FallbackURL: desc.FallbackURL,
		SavePath:    desc.CachedFilePath,
	}
}
