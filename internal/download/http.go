package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/slok/assetpipe/internal/log"
)

// HTTPSystemConfig is the configuration of the HTTP download system.
type HTTPSystemConfig struct {
	// HTTPClient is the HTTP client for download requests.
	HTTPClient *http.Client
	// Recorder records downloaded files in the cache index (optional).
	Recorder Recorder
	// RetryDelay is the wait between failed attempts.
	RetryDelay time.Duration
	Logger     log.Logger
}

func (c *HTTPSystemConfig) defaults() error {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "download.HTTP"})
	return nil
}

// HTTPSystem downloads bundle files over HTTP. Retries alternate between the remote
// and the fallback URL.
type HTTPSystem struct {
	*transferSystem
}

// NewHTTPSystem returns a new HTTP download system.
func NewHTTPSystem(cfg HTTPSystemConfig) (*HTTPSystem, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := cfg.HTTPClient
	open := func(ctx context.Context, d Descriptor, attempt int) (io.ReadCloser, error) {
		url := d.RemoteURL
		if attempt%2 == 1 && d.FallbackURL != "" {
			url = d.FallbackURL
		}
		if url == "" {
			return nil, fmt.Errorf("missing remote url for %s", d.BundleName)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
		}

		return resp.Body, nil
	}

	return &HTTPSystem{
		transferSystem: newTransferSystem(open, cfg.Recorder, cfg.RetryDelay, cfg.Logger),
	}, nil
}
