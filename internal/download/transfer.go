package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/slok/assetpipe/internal/conventions"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// opener opens the source of a transfer attempt.
type opener func(ctx context.Context, d Descriptor, attempt int) (io.ReadCloser, error)

// transferSystem runs each transfer on its own goroutine. Transfers of the same cache entry
// that are in flight at the same time share the operation.
type transferSystem struct {
	open       opener
	recorder   Recorder
	retryDelay time.Duration
	logger     log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	ops map[string]*operation
}

func newTransferSystem(open opener, recorder Recorder, retryDelay time.Duration, logger log.Logger) *transferSystem {
	ctx, cancel := context.WithCancel(context.Background())
	return &transferSystem{
		open:       open,
		recorder:   recorder,
		retryDelay: retryDelay,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		ops:        map[string]*operation{},
	}
}

func (s *transferSystem) BeginDownload(d Descriptor, maxRetries int) Operation {
	key := d.PackageName + "/" + d.CacheID
	if d.CacheID == "" {
		key = d.SavePath
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if op, ok := s.ops[key]; ok {
		s.logger.Debugf("Reusing in flight transfer of %s", key)
		return op
	}

	op := newOperation(d.FileSize)
	s.ops[key] = op

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.run(op, d, maxRetries)
		op.finish(err)

		s.mu.Lock()
		delete(s.ops, key)
		s.mu.Unlock()
	}()

	return op
}

// Close cancels the in flight transfers and waits for them to end.
func (s *transferSystem) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *transferSystem) run(op *operation, d Descriptor, maxRetries int) error {
	logger := s.logger.WithValues(log.Kv{"bundle": d.BundleName, "package": d.PackageName})

	for attempt := 0; ; attempt++ {
		err := s.transfer(op, d, attempt)
		if err == nil {
			logger.Debugf("Bundle file transferred to %s", d.SavePath)
			return nil
		}

		if attempt >= maxRetries || s.ctx.Err() != nil {
			logger.Errorf("Bundle file transfer failed after %d attempts: %s", attempt+1, err)
			return err
		}
		logger.Warningf("Bundle file transfer attempt %d failed, retrying: %s", attempt+1, err)

		select {
		case <-s.ctx.Done():
			return fmt.Errorf("transfer canceled: %w", err)
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *transferSystem) transfer(op *operation, d Descriptor, attempt int) (err error) {
	op.resetBytes()

	src, err := s.open(s.ctx, d, attempt)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(d.SavePath), 0o755); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", d.SavePath, err)
	}

	tmpPath := d.SavePath + conventions.TempSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", tmpPath, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(f, hasher, op), src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing file %s: %w", tmpPath, err)
	}

	hash := fmt.Sprintf("%x", hasher.Sum(nil))
	if d.FileSize > 0 && size != d.FileSize {
		return fmt.Errorf("file size mismatch for %s: got %d, expected %d", d.BundleName, size, d.FileSize)
	}
	if d.FileHash != "" && !strings.EqualFold(hash, d.FileHash) {
		return fmt.Errorf("file hash mismatch for %s: got %s, expected %s", d.BundleName, hash, d.FileHash)
	}

	if err := os.Rename(tmpPath, d.SavePath); err != nil {
		return fmt.Errorf("could not move %s into place: %w", tmpPath, err)
	}

	if s.recorder != nil && d.CacheID != "" {
		err := s.recorder.Record(s.ctx, model.CacheRecord{
			PackageName:  d.PackageName,
			CacheID:      d.CacheID,
			BundleName:   d.BundleName,
			DataFilePath: d.SavePath,
			FileSize:     size,
			FileHash:     hash,
		})
		if err != nil {
			return fmt.Errorf("could not record cached file: %w", err)
		}
	}

	return nil
}
