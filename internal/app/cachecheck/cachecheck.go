package cachecheck

import (
	"context"
	"fmt"

	"github.com/slok/assetpipe/internal/cache"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// Cache is the cache the check runs on.
type Cache interface {
	List(ctx context.Context, packageName string) ([]model.CacheRecord, error)
	VerifyRecordedFile(ctx context.Context, packageName, cacheID string) cache.VerifyResult
	DiscardFile(ctx context.Context, packageName, cacheID string) error
}

// ServiceConfig is the configuration for the cache check service.
type ServiceConfig struct {
	Cache  Cache
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Cache == nil {
		return fmt.Errorf("cache is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.CacheCheck"})
	return nil
}

// Service verifies the cached bundle files of a package.
type Service struct {
	cache  Cache
	logger log.Logger
}

// NewService creates a new cache check service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		cache:  cfg.Cache,
		logger: cfg.Logger,
	}, nil
}

// Request represents a cache check request.
type Request struct {
	PackageName string
	// Discard removes the files that fail the verification.
	Discard bool
}

// Run verifies every recorded file of the package, one result per record.
func (s *Service) Run(ctx context.Context, req Request) ([]model.CheckResult, error) {
	if req.PackageName == "" {
		return nil, fmt.Errorf("package name is required: %w", model.ErrNotValid)
	}

	records, err := s.cache.List(ctx, req.PackageName)
	if err != nil {
		return nil, fmt.Errorf("could not list cache records: %w", err)
	}

	results := make([]model.CheckResult, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vr := s.cache.VerifyRecordedFile(ctx, rec.PackageName, rec.CacheID)
		res := model.CheckResult{
			Record:  rec,
			Result:  vr.String(),
			Status:  model.CheckStatusOK,
			Message: verifyMessage(vr),
		}

		if vr != cache.VerifySucceed {
			res.Status = model.CheckStatusError
			s.logger.Warningf("Cached file of bundle %s failed verification: %s", rec.BundleName, vr)

			if req.Discard {
				if err := s.cache.DiscardFile(ctx, rec.PackageName, rec.CacheID); err != nil {
					res.Message = fmt.Sprintf("%s, could not discard: %s", res.Message, err)
				} else {
					res.Status = model.CheckStatusDiscarded
					res.Message += ", discarded"
				}
			}
		}

		results = append(results, res)
	}

	return results, nil
}

func verifyMessage(vr cache.VerifyResult) string {
	switch vr {
	case cache.VerifySucceed:
		return "file is valid"
	case cache.VerifyInfoNotFound:
		return "record is missing"
	case cache.VerifyDataFileNotExisted:
		return "file is missing"
	case cache.VerifyFileNotComplete:
		return "file is smaller than recorded"
	case cache.VerifyFileOverflow:
		return "file is bigger than recorded"
	case cache.VerifyFileHashError:
		return "file hash does not match"
	default:
		return "file could not be verified"
	}
}
