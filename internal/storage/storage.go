package storage

import (
	"context"

	"github.com/slok/assetpipe/internal/model"
)

// CacheRepository is the interface for the cache index persistence.
type CacheRepository interface {
	// UpsertRecord creates or replaces the record of a cached bundle file.
	UpsertRecord(ctx context.Context, r model.CacheRecord) error
	// GetRecord returns a record, model.ErrNotFound if missing.
	GetRecord(ctx context.Context, packageName, cacheID string) (*model.CacheRecord, error)
	// ListRecords returns all the records of a package sorted by bundle name.
	ListRecords(ctx context.Context, packageName string) ([]model.CacheRecord, error)
	// DeleteRecord deletes a record, model.ErrNotFound if missing.
	DeleteRecord(ctx context.Context, packageName, cacheID string) error
}
