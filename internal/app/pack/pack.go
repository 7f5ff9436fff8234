package pack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/slok/assetpipe/internal/app/address"
	"github.com/slok/assetpipe/internal/bundle"
	"github.com/slok/assetpipe/internal/cache"
	"github.com/slok/assetpipe/internal/conventions"
	"github.com/slok/assetpipe/internal/download"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
	storageio "github.com/slok/assetpipe/internal/storage/io"
)

// AssetCollector collects the assets of a directory with their addresses.
type AssetCollector interface {
	Run(ctx context.Context, req address.Request) ([]model.AssetAddress, error)
}

// Encoder encodes bundle files for their load method.
type Encoder interface {
	Encode(method model.LoadMethod, bundleName string, data []byte) ([]byte, error)
}

// ServiceConfig is the configuration for the pack service.
type ServiceConfig struct {
	Collector AssetCollector
	// Encoder is required only to pack bundles with encrypted load methods.
	Encoder Encoder
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Collector == nil {
		return fmt.Errorf("asset collector is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Pack"})
	return nil
}

// Service packs asset directories into bundle files and registers them in the package manifest.
type Service struct {
	collector AssetCollector
	encoder   Encoder
	logger    log.Logger
}

// NewService creates a new pack service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		collector: cfg.Collector,
		encoder:   cfg.Encoder,
		logger:    cfg.Logger,
	}, nil
}

// Request represents a pack request.
type Request struct {
	PackageName string
	BundleName  string
	// SourceDir is the collector directory with the bundle assets.
	SourceDir string
	Rule      string
	GroupName string
	// LoadMethod is the load method the bundle file is encoded for.
	LoadMethod model.LoadMethod
	// OutputDir is the root of the remote bundle files.
	OutputDir string
	// StreamingDir is the streaming location root, the bundle is built-in when set.
	StreamingDir string
	// Compression is the compression of the streaming copy.
	Compression model.Compression
	// ManifestPath is the package manifest the bundle is registered in, created if missing.
	ManifestPath string
	// RemoteBaseURL and FallbackBaseURL override the manifest URLs when set.
	RemoteBaseURL   string
	FallbackBaseURL string
}

func (r Request) validate() error {
	if r.PackageName == "" {
		return fmt.Errorf("package name is required")
	}
	if r.BundleName == "" {
		return fmt.Errorf("bundle name is required")
	}
	if r.SourceDir == "" {
		return fmt.Errorf("source dir is required")
	}
	if r.OutputDir == "" {
		return fmt.Errorf("output dir is required")
	}
	if r.ManifestPath == "" {
		return fmt.Errorf("manifest path is required")
	}
	return nil
}

// Run packs the bundle and returns its manifest entry.
func (s *Service) Run(ctx context.Context, req Request) (*model.ManifestBundle, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w: %w", err, model.ErrNotValid)
	}
	if req.LoadMethod == "" {
		req.LoadMethod = model.LoadMethodNormal
	}
	if req.Compression == "" {
		req.Compression = model.CompressionNone
	}

	addresses, err := s.collector.Run(ctx, address.Request{
		CollectPath: req.SourceDir,
		GroupName:   req.GroupName,
		Rule:        req.Rule,
	})
	if err != nil {
		return nil, fmt.Errorf("could not collect assets: %w", err)
	}

	assets := make(map[string][]byte, len(addresses))
	names := make([]string, 0, len(addresses))
	for _, a := range addresses {
		data, err := os.ReadFile(filepath.FromSlash(a.AssetPath))
		if err != nil {
			return nil, fmt.Errorf("could not read asset: %w", err)
		}
		assets[a.Address] = data
		names = append(names, a.Address)
	}

	data, err := s.encode(req.LoadMethod, req.BundleName, assets)
	if err != nil {
		return nil, err
	}

	mb := model.ManifestBundle{
		Name:        req.BundleName,
		FileName:    req.BundleName + ".bundle",
		FileSize:    int64(len(data)),
		FileHash:    cache.HashBytes(data),
		LoadMethod:  req.LoadMethod,
		Compression: req.Compression,
		BuiltIn:     req.StreamingDir != "",
		Assets:      names,
	}

	remotePath := filepath.Join(req.OutputDir, req.PackageName, mb.FileName)
	if err := writeFile(remotePath, data, model.CompressionNone); err != nil {
		return nil, err
	}

	if mb.BuiltIn {
		streamingPath := conventions.StreamingFilePath(req.StreamingDir, req.PackageName, mb.FileName)
		if err := writeFile(streamingPath, data, req.Compression); err != nil {
			return nil, err
		}
	} else {
		mb.Compression = model.CompressionNone
	}

	if err := s.register(ctx, req, mb); err != nil {
		return nil, err
	}

	s.logger.Infof("Packed bundle %s/%s with %d assets (%d bytes)", req.PackageName, req.BundleName, len(names), mb.FileSize)
	return &mb, nil
}

func (s *Service) encode(method model.LoadMethod, bundleName string, assets map[string][]byte) ([]byte, error) {
	raw, err := bundle.Encode(bundleName, assets)
	if err != nil {
		return nil, fmt.Errorf("could not create bundle: %w", err)
	}

	if method == model.LoadMethodNormal {
		return raw, nil
	}

	if s.encoder == nil {
		return nil, fmt.Errorf("an encoder is required for %s load method: %w", method, model.ErrNotValid)
	}

	data, err := s.encoder.Encode(method, bundleName, raw)
	if err != nil {
		return nil, fmt.Errorf("could not encode bundle: %w", err)
	}

	return data, nil
}

// register upserts the bundle in the package manifest.
func (s *Service) register(ctx context.Context, req Request, mb model.ManifestBundle) error {
	dir, file := filepath.Split(req.ManifestPath)
	if dir == "" {
		dir = "."
	}

	m, err := storageio.NewManifestYAMLRepository(os.DirFS(dir)).GetManifest(ctx, file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		m = model.Manifest{PackageName: req.PackageName}
	case err != nil:
		return fmt.Errorf("could not load manifest: %w", err)
	case m.PackageName != req.PackageName:
		return fmt.Errorf("manifest is for package %s: %w", m.PackageName, model.ErrNotValid)
	}

	if req.RemoteBaseURL != "" {
		m.RemoteBaseURL = req.RemoteBaseURL
	}
	if req.FallbackBaseURL != "" {
		m.FallbackBaseURL = req.FallbackBaseURL
	}

	replaced := false
	for i := range m.Bundles {
		if m.Bundles[i].Name == mb.Name {
			m.Bundles[i] = mb
			replaced = true
		}
	}
	if !replaced {
		m.Bundles = append(m.Bundles, mb)
	}

	if err := storageio.SaveManifestYAML(ctx, req.ManifestPath, m); err != nil {
		return fmt.Errorf("could not save manifest: %w", err)
	}

	return nil
}

func writeFile(path string, data []byte, compression model.Compression) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing file %s: %w", path, closeErr)
		}
	}()

	w, err := download.Compress(f, compression)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flushing file %s: %w", path, err)
	}

	return nil
}
