package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/slok/assetpipe/internal/log"
)

// UnpackSystemConfig is the configuration of the unpack system.
type UnpackSystemConfig struct {
	// Recorder records unpacked files in the cache index (optional).
	Recorder   Recorder
	RetryDelay time.Duration
	Logger     log.Logger
}

func (c *UnpackSystemConfig) defaults() error {
	if c.RetryDelay == 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "download.Unpack"})
	return nil
}

// UnpackSystem copies built-in bundle files from the streaming location into the cache,
// decompressing them when the streaming copy is compressed.
type UnpackSystem struct {
	*transferSystem
}

// NewUnpackSystem returns a new unpack system.
func NewUnpackSystem(cfg UnpackSystemConfig) (*UnpackSystem, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	open := func(ctx context.Context, d Descriptor, attempt int) (io.ReadCloser, error) {
		if d.SourcePath == "" {
			return nil, fmt.Errorf("missing unpack source for %s", d.BundleName)
		}

		f, err := os.Open(d.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("could not open unpack source: %w", err)
		}

		r, err := Decompress(f, d.Compression)
		if err != nil {
			f.Close()
			return nil, err
		}

		return readCloser{Reader: r, close: func() error {
			r.Close()
			return f.Close()
		}}, nil
	}

	return &UnpackSystem{
		transferSystem: newTransferSystem(open, cfg.Recorder, cfg.RetryDelay, cfg.Logger),
	}, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }
