// Package cache manages the bundle files stored in the local cache: recording downloaded
// files, verifying their integrity and discarding the ones that are corrupt.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
	"github.com/slok/assetpipe/internal/storage"
)

// VerifyResult is the result of verifying a cached file.
type VerifyResult int

const (
	VerifySucceed VerifyResult = iota
	VerifyInfoNotFound
	VerifyDataFileNotExisted
	VerifyFileNotComplete
	VerifyFileOverflow
	VerifyFileHashError
	VerifyException
)

func (v VerifyResult) String() string {
	switch v {
	case VerifySucceed:
		return "succeed"
	case VerifyInfoNotFound:
		return "info-not-found"
	case VerifyDataFileNotExisted:
		return "data-file-not-existed"
	case VerifyFileNotComplete:
		return "file-not-complete"
	case VerifyFileOverflow:
		return "file-overflow"
	case VerifyFileHashError:
		return "file-hash-error"
	case VerifyException:
		return "exception"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// ServiceConfig is the configuration of the cache service.
type ServiceConfig struct {
	Repository storage.CacheRepository
	Logger     log.Logger
	// TimeNow is used to set the record creation time.
	TimeNow func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("cache repository is required")
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "cache.Service"})
	return nil
}

// Service is the cache service. Verifications share a read lock and discards take the write
// lock, so a file is never removed while it's being verified.
type Service struct {
	repo    storage.CacheRepository
	timeNow func() time.Time
	logger  log.Logger
	mu      sync.RWMutex
}

// NewService returns a new cache service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:    cfg.Repository,
		timeNow: cfg.TimeNow,
		logger:  cfg.Logger,
	}, nil
}

// Record stores the cache record of a bundle file that has been written to the cache.
func (s *Service) Record(ctx context.Context, rec model.CacheRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.timeNow().UTC()
	}

	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("could not record cached file: %w", err)
	}

	s.logger.Debugf("Recorded cached file %s/%s (%s)", rec.PackageName, rec.CacheID, rec.BundleName)
	return nil
}

// Lookup returns the record of a cached file, model.ErrNotFound if not cached.
func (s *Service) Lookup(ctx context.Context, packageName, cacheID string) (*model.CacheRecord, error) {
	return s.repo.GetRecord(ctx, packageName, cacheID)
}

// List returns the records of a package.
func (s *Service) List(ctx context.Context, packageName string) ([]model.CacheRecord, error) {
	return s.repo.ListRecords(ctx, packageName)
}

// VerifyRecordedFile checks that a recorded file exists and has the recorded size and hash.
func (s *Service) VerifyRecordedFile(ctx context.Context, packageName, cacheID string) VerifyResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.repo.GetRecord(ctx, packageName, cacheID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return VerifyInfoNotFound
		}
		s.logger.Errorf("Could not get cache record %s/%s: %s", packageName, cacheID, err)
		return VerifyException
	}

	return s.verifyFile(*rec)
}

func (s *Service) verifyFile(rec model.CacheRecord) VerifyResult {
	info, err := os.Stat(rec.DataFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return VerifyDataFileNotExisted
		}
		s.logger.Errorf("Could not stat cached file %s: %s", rec.DataFilePath, err)
		return VerifyException
	}

	switch {
	case info.Size() < rec.FileSize:
		return VerifyFileNotComplete
	case info.Size() > rec.FileSize:
		return VerifyFileOverflow
	}

	// Records without hash can only be checked by size.
	if rec.FileHash == "" {
		return VerifySucceed
	}

	hash, _, err := HashFile(rec.DataFilePath)
	if err != nil {
		s.logger.Errorf("Could not hash cached file %s: %s", rec.DataFilePath, err)
		return VerifyException
	}
	if !strings.EqualFold(hash, rec.FileHash) {
		return VerifyFileHashError
	}

	return VerifySucceed
}

// DiscardFile removes a cached file and its record. Discarding a file that is not recorded is a no-op.
func (s *Service) DiscardFile(ctx context.Context, packageName, cacheID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.GetRecord(ctx, packageName, cacheID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("could not get cache record: %w", err)
	}

	// Each cached file lives in its own entry directory, remove the entry so no temp leftovers remain.
	if err := os.RemoveAll(filepath.Dir(rec.DataFilePath)); err != nil {
		return fmt.Errorf("could not remove cached file: %w", err)
	}

	if err := s.repo.DeleteRecord(ctx, packageName, cacheID); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("could not delete cache record: %w", err)
	}

	s.logger.Infof("Discarded cached file %s/%s", packageName, cacheID)
	return nil
}
