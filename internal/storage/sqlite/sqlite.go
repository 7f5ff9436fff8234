package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
	"github.com/slok/assetpipe/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.CacheRepository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// UpsertRecord creates or replaces a cache record.
func (r *Repository) UpsertRecord(ctx context.Context, rec model.CacheRecord) error {
	if rec.PackageName == "" || rec.CacheID == "" {
		return fmt.Errorf("package name and cache id are required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO cache_records (
			package_name, cache_id, bundle_name,
			data_file_path, file_size, file_hash,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (package_name, cache_id) DO UPDATE SET
			bundle_name = excluded.bundle_name,
			data_file_path = excluded.data_file_path,
			file_size = excluded.file_size,
			file_hash = excluded.file_hash,
			created_at = excluded.created_at
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.PackageName,
		rec.CacheID,
		rec.BundleName,
		rec.DataFilePath,
		rec.FileSize,
		rec.FileHash,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("could not upsert cache record: %w", err)
	}

	r.logger.Debugf("Upserted cache record in repository: %s/%s", rec.PackageName, rec.CacheID)
	return nil
}

// GetRecord retrieves a cache record.
func (r *Repository) GetRecord(ctx context.Context, packageName, cacheID string) (*model.CacheRecord, error) {
	query := `
		SELECT
			package_name, cache_id, bundle_name,
			data_file_path, file_size, file_hash,
			created_at
		FROM cache_records
		WHERE package_name = ? AND cache_id = ?
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, packageName, cacheID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cache record %s/%s: %w", packageName, cacheID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query cache record: %w", err)
	}

	return &rec, nil
}

// ListRecords returns all the cache records of a package.
func (r *Repository) ListRecords(ctx context.Context, packageName string) ([]model.CacheRecord, error) {
	query := `
		SELECT
			package_name, cache_id, bundle_name,
			data_file_path, file_size, file_hash,
			created_at
		FROM cache_records
		WHERE package_name = ?
		ORDER BY bundle_name ASC, cache_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, packageName)
	if err != nil {
		return nil, fmt.Errorf("could not query cache records: %w", err)
	}
	defer rows.Close()

	recs := []model.CacheRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return recs, nil
}

// DeleteRecord deletes a cache record.
func (r *Repository) DeleteRecord(ctx context.Context, packageName, cacheID string) error {
	query := `DELETE FROM cache_records WHERE package_name = ? AND cache_id = ?`

	result, err := r.db.ExecContext(ctx, query, packageName, cacheID)
	if err != nil {
		return fmt.Errorf("could not delete cache record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("cache record %s/%s: %w", packageName, cacheID, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted cache record from repository: %s/%s", packageName, cacheID)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (model.CacheRecord, error) {
	var rec model.CacheRecord
	var createdAt int64

	err := s.Scan(
		&rec.PackageName,
		&rec.CacheID,
		&rec.BundleName,
		&rec.DataFilePath,
		&rec.FileSize,
		&rec.FileHash,
		&createdAt,
	)
	if err != nil {
		return model.CacheRecord{}, err
	}

	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return rec, nil
}
