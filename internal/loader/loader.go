// Package loader has the bundle loading state machine. A Task takes a located bundle through
// download or unpack, decryption, and the final load into a bundle handle. Tasks are driven by
// the caller polling Update, asynchrony lives in the transfer operations and the bundle engine.
package loader

import (
	"context"
	"fmt"
	"math"

	"github.com/oklog/ulid/v2"

	"github.com/slok/assetpipe/internal/bundle"
	"github.com/slok/assetpipe/internal/cache"
	"github.com/slok/assetpipe/internal/decrypt"
	"github.com/slok/assetpipe/internal/download"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// ManifestPatcher resolves the transfer descriptors of bundles.
type ManifestPatcher interface {
	GetUnpackDescriptor(desc model.BundleDescriptor) download.Descriptor
}

// CacheVerifier checks and discards cached bundle files.
type CacheVerifier interface {
	VerifyRecordedFile(ctx context.Context, packageName, cacheID string) cache.VerifyResult
	DiscardFile(ctx context.Context, packageName, cacheID string) error
}

// Config is the configuration of the Loader.
type Config struct {
	Downloader download.System
	Unpacker   download.System
	Patcher    ManifestPatcher
	Engine     bundle.Engine
	// Decryption is required only by bundles with encrypted load methods.
	Decryption decrypt.Services
	Cache      CacheVerifier

	// StreamingRequiresUnpack is set on platforms where the engine can't read the streaming
	// location with the memory and stream load methods.
	StreamingRequiresUnpack bool
	// CheckFileExists fails the load early when the bundle file is missing.
	CheckFileExists bool
	// WaitBudget is the number of iterations a forced synchronous completion is allowed to take,
	// counting the one that gives up.
	WaitBudget int
	// DownloadRetries is the retry budget of downloads.
	DownloadRetries int
	// UnpackRetries is the retry budget of unpacks.
	UnpackRetries int
	Logger        log.Logger
}

func (c *Config) defaults() error {
	if c.Downloader == nil {
		return fmt.Errorf("downloader is required")
	}

	if c.Unpacker == nil {
		return fmt.Errorf("unpacker is required")
	}

	if c.Patcher == nil {
		return fmt.Errorf("manifest patcher is required")
	}

	if c.Engine == nil {
		return fmt.Errorf("bundle engine is required")
	}

	if c.Cache == nil {
		return fmt.Errorf("cache verifier is required")
	}

	if c.WaitBudget <= 0 {
		c.WaitBudget = 1000
	}

	if c.DownloadRetries <= 0 {
		c.DownloadRetries = math.MaxInt
	}

	if c.UnpackRetries <= 0 {
		c.UnpackRetries = 1
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "loader.Loader"})

	return nil
}

// Loader creates bundle load tasks sharing the same collaborators.
type Loader struct {
	cfg Config
}

// New returns a new Loader.
func New(cfg Config) (*Loader, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Loader{cfg: cfg}, nil
}

// NewTask returns a new pending task that loads the bundle. Nothing happens until the task is polled.
func (l *Loader) NewTask(desc model.BundleDescriptor) *Task {
	id := ulid.Make().String()
	return &Task{
		id:     id,
		desc:   desc,
		cfg:    l.cfg,
		logger: l.cfg.Logger.WithValues(log.Kv{"task-id": id, "package": desc.PackageName, "bundle": desc.BundleName}),
		step:   StepInit,
		status: StatusPending,
	}
}
