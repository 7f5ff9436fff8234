package list

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
	"github.com/slok/assetpipe/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.CacheRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.List"})
	return nil
}

// Service lists the cached bundle files of a package.
type Service struct {
	repo   storage.CacheRepository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	PackageName string
	// BundlePrefix is an optional filter to only show bundles whose name starts with it.
	BundlePrefix string
}

// Run lists the cache records of a package, optionally filtered by bundle name.
func (s *Service) Run(ctx context.Context, req Request) ([]model.CacheRecord, error) {
	if req.PackageName == "" {
		return nil, fmt.Errorf("package name is required: %w", model.ErrNotValid)
	}

	s.logger.Debugf("listing cache records of %s with prefix %q", req.PackageName, req.BundlePrefix)

	records, err := s.repo.ListRecords(ctx, req.PackageName)
	if err != nil {
		return nil, fmt.Errorf("could not list cache records: %w", err)
	}

	if req.BundlePrefix != "" {
		filtered := make([]model.CacheRecord, 0, len(records))
		for _, r := range records {
			if strings.HasPrefix(r.BundleName, req.BundlePrefix) {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	s.logger.Debugf("found %d cache records", len(records))
	return records, nil
}
