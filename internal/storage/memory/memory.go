package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

type recordKey struct {
	packageName string
	cacheID     string
}

// Repository is an in-memory implementation of storage.CacheRepository.
type Repository struct {
	records map[recordKey]model.CacheRecord
	mu      sync.RWMutex
	logger  log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		records: make(map[recordKey]model.CacheRecord),
		logger:  cfg.Logger,
	}, nil
}

// UpsertRecord creates or replaces a cache record.
func (r *Repository) UpsertRecord(ctx context.Context, rec model.CacheRecord) error {
	if rec.PackageName == "" || rec.CacheID == "" {
		return fmt.Errorf("package name and cache id are required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[recordKey{packageName: rec.PackageName, cacheID: rec.CacheID}] = rec
	r.logger.Debugf("Upserted cache record in repository: %s/%s", rec.PackageName, rec.CacheID)

	return nil
}

// GetRecord retrieves a cache record.
func (r *Repository) GetRecord(ctx context.Context, packageName, cacheID string) (*model.CacheRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[recordKey{packageName: packageName, cacheID: cacheID}]
	if !ok {
		return nil, fmt.Errorf("cache record %s/%s: %w", packageName, cacheID, model.ErrNotFound)
	}

	// Return a copy
	recCopy := rec
	return &recCopy, nil
}

// ListRecords returns all the cache records of a package.
func (r *Repository) ListRecords(ctx context.Context, packageName string) ([]model.CacheRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := []model.CacheRecord{}
	for k, rec := range r.records {
		if k.packageName == packageName {
			recs = append(recs, rec)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].BundleName == recs[j].BundleName {
			return recs[i].CacheID < recs[j].CacheID
		}
		return recs[i].BundleName < recs[j].BundleName
	})

	return recs, nil
}

// DeleteRecord deletes a cache record.
func (r *Repository) DeleteRecord(ctx context.Context, packageName, cacheID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey{packageName: packageName, cacheID: cacheID}
	if _, ok := r.records[key]; !ok {
		return fmt.Errorf("cache record %s/%s: %w", packageName, cacheID, model.ErrNotFound)
	}

	delete(r.records, key)
	r.logger.Debugf("Deleted cache record from repository: %s/%s", packageName, cacheID)

	return nil
}
