package load

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/assetpipe/internal/loader"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// DescriptorResolver resolves the descriptors of the bundles to load.
type DescriptorResolver interface {
	Descriptor(ctx context.Context, bundleName string) (model.BundleDescriptor, error)
}

// TaskCreator creates bundle load tasks.
type TaskCreator interface {
	NewTask(desc model.BundleDescriptor) *loader.Task
}

// ProgressFunc receives the progress of a load on every poll.
type ProgressFunc func(p model.LoadProgress, downloadedBytes, totalBytes uint64)

// ServiceConfig is the configuration for the load service.
type ServiceConfig struct {
	Loader   TaskCreator
	Resolver DescriptorResolver
	// PollInterval is the interval the pending tasks are polled at.
	PollInterval time.Duration
	OnProgress   ProgressFunc
	TimeNow      func() time.Time
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Loader == nil {
		return fmt.Errorf("loader is required")
	}

	if c.Resolver == nil {
		return fmt.Errorf("descriptor resolver is required")
	}

	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Millisecond
	}

	if c.OnProgress == nil {
		c.OnProgress = func(model.LoadProgress, uint64, uint64) {}
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Load"})
	return nil
}

// Service loads bundles, it's the scheduler that polls the load tasks.
type Service struct {
	loader       TaskCreator
	resolver     DescriptorResolver
	pollInterval time.Duration
	onProgress   ProgressFunc
	timeNow      func() time.Time
	logger       log.Logger
}

// NewService creates a new load service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		loader:       cfg.Loader,
		resolver:     cfg.Resolver,
		pollInterval: cfg.PollInterval,
		onProgress:   cfg.OnProgress,
		timeNow:      cfg.TimeNow,
		logger:       cfg.Logger,
	}, nil
}

// Request represents a load request.
type Request struct {
	Bundles []string
	// Sync forces the synchronous completion of every task before polling.
	Sync bool
}

type pendingLoad struct {
	task    *loader.Task
	started time.Time
	elapsed time.Duration
}

// Run loads the bundles and returns a result per bundle in the requested order. Loaded bundles
// are released once their result is collected.
func (s *Service) Run(ctx context.Context, req Request) ([]model.LoadResult, error) {
	if len(req.Bundles) == 0 {
		return nil, fmt.Errorf("at least one bundle is required: %w", model.ErrNotValid)
	}

	logger := s.logger.WithCtxValues(ctx)

	descs := make([]model.BundleDescriptor, 0, len(req.Bundles))
	for _, name := range req.Bundles {
		desc, err := s.resolver.Descriptor(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("could not resolve bundle %s: %w", name, err)
		}
		descs = append(descs, desc)
	}

	loads := make([]*pendingLoad, 0, len(descs))
	defer func() {
		for _, l := range loads {
			l.task.Destroy()
		}
	}()

	var totalBytes uint64
	for _, desc := range descs {
		task := s.loader.NewTask(desc)
		logger.Debugf("Loading bundle %s/%s from %s (task %s)", desc.PackageName, desc.BundleName, desc.LoadMode, task.ID())
		loads = append(loads, &pendingLoad{task: task, started: s.timeNow()})
		if desc.FileSize > 0 {
			totalBytes += uint64(desc.FileSize)
		}
	}

	if req.Sync {
		for _, l := range loads {
			res := l.task.ForceCompleteSynchronously(ctx)
			if l.task.IsDone() {
				l.elapsed = s.timeNow().Sub(l.started)
			}
			if res != loader.WaitCompleted {
				logger.Warningf("Bundle %s did not load synchronously (%s), polling it", l.task.Descriptor().BundleName, res)
			}
		}
	}

	if err := s.poll(ctx, loads, totalBytes); err != nil {
		return nil, err
	}

	results := make([]model.LoadResult, 0, len(loads))
	for _, l := range loads {
		results = append(results, s.result(l))
	}

	return results, nil
}

// poll updates the pending tasks on every tick until all of them are done.
func (s *Service) poll(ctx context.Context, loads []*pendingLoad, totalBytes uint64) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		done := 0
		var downloaded uint64
		for _, l := range loads {
			if !l.task.IsDone() {
				l.task.Update(ctx)
				if l.task.IsDone() {
					l.elapsed = s.timeNow().Sub(l.started)
				}
			}
			if l.task.IsDone() {
				done++
			}
			downloaded += l.task.DownloadedBytes()
		}
		s.onProgress(model.LoadProgress{Done: done, Total: len(loads)}, downloaded, totalBytes)

		if done == len(loads) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("bundle load interrupted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Service) result(l *pendingLoad) model.LoadResult {
	desc := l.task.Descriptor()
	res := model.LoadResult{
		TaskID:          l.task.ID(),
		PackageName:     desc.PackageName,
		BundleName:      desc.BundleName,
		LoadMode:        desc.LoadMode,
		LoadMethod:      desc.LoadMethod,
		DownloadedBytes: l.task.DownloadedBytes(),
		Duration:        l.elapsed,
	}

	switch l.task.Status() {
	case loader.StatusSucceeded:
		res.Status = model.LoadStatusSucceeded
		b := l.task.Bundle()
		res.Assets = b.Assets()
		b.Unload()
	case loader.StatusFailed:
		res.Status = model.LoadStatusFailed
		res.Error = l.task.Err().Error()
	default:
		res.Status = model.LoadStatusPending
	}

	s.logger.Infof("Bundle %s %s in %s", desc.BundleName, res.Status, l.elapsed)
	return res
}
