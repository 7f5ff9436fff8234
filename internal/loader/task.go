package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/slok/assetpipe/internal/bundle"
	"github.com/slok/assetpipe/internal/cache"
	"github.com/slok/assetpipe/internal/decrypt"
	"github.com/slok/assetpipe/internal/download"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/manifest"
	"github.com/slok/assetpipe/internal/model"
)

// Task loads a single bundle. Tasks are not safe for concurrent use, they are driven by a
// single caller polling Update.
type Task struct {
	id     string
	desc   model.BundleDescriptor
	cfg    Config
	logger log.Logger

	step            Step
	loadPath        string
	progress        float64
	downloadedBytes uint64
	status          Status
	err             error
	bundle          *bundle.Bundle

	waitMode        bool
	waitErrorLogged bool
	downloader      download.Operation
	unpacker        download.Operation
	request         bundle.CreateRequest
	stream          io.ReadSeekCloser
	destroyed       bool
}

func (t *Task) ID() string                         { return t.id }
func (t *Task) Descriptor() model.BundleDescriptor { return t.desc }
func (t *Task) Step() Step                         { return t.step }
func (t *Task) LoadPath() string                   { return t.loadPath }
func (t *Task) Progress() float64                  { return t.progress }
func (t *Task) DownloadedBytes() uint64            { return t.downloadedBytes }
func (t *Task) Status() Status                     { return t.status }
func (t *Task) IsDone() bool                       { return t.step == StepDone }
func (t *Task) WaitMode() bool                     { return t.waitMode }
func (t *Task) Destroyed() bool                    { return t.destroyed }

// Err returns the task fault, nil unless the task failed.
func (t *Task) Err() error { return t.err }

// Bundle returns the loaded bundle, nil unless the task succeeded. The bundle is owned by the caller.
func (t *Task) Bundle() *bundle.Bundle { return t.bundle }

// Update advances the task as far as it can go without waiting. It's a no-op once the task
// is done or destroyed.
func (t *Task) Update(ctx context.Context) {
	if t.destroyed {
		return
	}

	for t.step != StepDone {
		prev := t.step
		t.runStep(ctx)
		if t.step == prev {
			return
		}
	}
}

func (t *Task) runStep(ctx context.Context) {
	switch t.step {
	case StepInit:
		t.stepInit()
	case StepDownload:
		t.stepDownload()
	case StepCheckDownload:
		t.checkTransfer(t.downloader)
	case StepUnpack:
		t.stepUnpack()
	case StepCheckUnpack:
		t.checkTransfer(t.unpacker)
	case StepLoadFile:
		t.stepLoadFile()
	case StepCheckLoadFile:
		t.stepCheckLoadFile(ctx)
	}
}

func (t *Task) stepInit() {
	switch t.desc.LoadMode {
	case model.LoadModeRemote:
		t.step = StepDownload
		t.loadPath = t.desc.CachedFilePath
	case model.LoadModeStreaming:
		if t.streamingNeedsUnpack() {
			t.step = StepUnpack
			t.loadPath = t.desc.CachedFilePath
		} else {
			t.step = StepLoadFile
			t.loadPath = t.desc.StreamingFilePath
		}
	case model.LoadModeCache:
		t.step = StepLoadFile
		t.loadPath = t.desc.CachedFilePath
	default:
		t.fail(configurationFault(fmt.Sprintf("unimplemented load mode: %q", t.desc.LoadMode)))
	}
}

// streamingNeedsUnpack returns true when the streaming copy can't be loaded in place, either
// because the platform can't read it with the method or because it's compressed.
func (t *Task) streamingNeedsUnpack() bool {
	switch t.desc.Compression {
	case model.CompressionLZ4, model.CompressionZstd:
		return true
	}

	if !t.cfg.StreamingRequiresUnpack {
		return false
	}
	return t.desc.LoadMethod == model.LoadMethodMemory || t.desc.LoadMethod == model.LoadMethodStream
}

func (t *Task) stepDownload() {
	t.downloader = t.cfg.Downloader.BeginDownload(manifest.GetDownloadDescriptor(t.desc), t.cfg.DownloadRetries)
	t.step = StepCheckDownload
}

func (t *Task) stepUnpack() {
	ud := t.cfg.Patcher.GetUnpackDescriptor(t.desc)
	t.unpacker = t.cfg.Unpacker.BeginDownload(ud, t.cfg.UnpackRetries)
	t.step = StepCheckUnpack
}

// checkTransfer mirrors the progress of a transfer and moves to the file load once it
// finished without errors.
func (t *Task) checkTransfer(op download.Operation) {
	t.setProgress(op.Progress(), op.DownloadedBytes())
	if !op.IsDone() {
		return
	}

	if op.HasError() {
		t.fail(transferFault(op.LastError()))
		return
	}

	t.step = StepLoadFile
}

func (t *Task) stepLoadFile() {
	if t.cfg.CheckFileExists {
		if _, err := os.Stat(t.loadPath); err != nil {
			t.fail(configurationFault(fmt.Sprintf("bundle file not found: %s", t.loadPath)))
			return
		}
	}

	// The remaining cost is local I/O.
	t.setProgress(1, fileSizeBytes(t.desc.FileSize))

	method := t.desc.LoadMethod
	if method == model.LoadMethodNormal {
		t.loadFromFile(0)
		t.step = StepCheckLoadFile
		return
	}

	switch method {
	case model.LoadMethodFileOffset, model.LoadMethodMemory, model.LoadMethodStream:
	default:
		t.fail(configurationFault(fmt.Sprintf("unimplemented load method: %q", method)))
		return
	}

	if t.cfg.Decryption == nil {
		t.fail(configurationFault(fmt.Sprintf("decryption services is nil: %s", t.desc.BundleName)))
		return
	}

	fi := decrypt.FileInfo{BundleName: t.desc.BundleName, FilePath: t.loadPath}
	switch method {
	case model.LoadMethodFileOffset:
		offset, err := t.cfg.Decryption.LoadFromFileOffset(fi)
		if err != nil {
			t.logger.Errorf("Could not get bundle file offset: %s", err)
			break
		}
		t.loadFromFile(offset)

	case model.LoadMethodMemory:
		data, err := t.cfg.Decryption.LoadFromMemory(fi)
		if err != nil {
			t.logger.Errorf("Could not decrypt bundle: %s", err)
			break
		}
		if t.waitMode {
			t.bundle = t.cfg.Engine.LoadFromMemory(data)
		} else {
			t.request = t.cfg.Engine.LoadFromMemoryAsync(data)
		}

	case model.LoadMethodStream:
		s, err := t.cfg.Decryption.LoadFromStream(fi)
		if err != nil {
			t.logger.Errorf("Could not open decrypted bundle stream: %s", err)
			break
		}
		t.stream = s
		bufSize := t.cfg.Decryption.ManagedReadBufferSize()
		if t.waitMode {
			t.bundle = t.cfg.Engine.LoadFromStream(s, bufSize)
		} else {
			t.request = t.cfg.Engine.LoadFromStreamAsync(s, bufSize)
		}
	}

	t.step = StepCheckLoadFile
}

func (t *Task) loadFromFile(offset uint64) {
	if t.waitMode {
		t.bundle = t.cfg.Engine.LoadFromFile(t.loadPath, offset)
		return
	}
	t.request = t.cfg.Engine.LoadFromFileAsync(t.loadPath, offset)
}

func (t *Task) stepCheckLoadFile(ctx context.Context) {
	if t.request != nil {
		if t.waitMode {
			t.logger.Warningf("Blocking the caller until the bundle is loaded")
		} else if !t.request.IsDone() {
			return
		}
		t.bundle = t.request.Bundle()
		t.request = nil
	}

	if t.bundle != nil {
		t.status = StatusSucceeded
		t.step = StepDone
		return
	}

	t.fail(instantiationFault(fmt.Sprintf("failed to load bundle: %s", t.desc.BundleName)))

	// A cached file may be corrupt even if it passed the checks when it was cached.
	if t.desc.LoadMode != model.LoadModeCache {
		return
	}
	res := t.cfg.Cache.VerifyRecordedFile(ctx, t.desc.PackageName, t.desc.CacheID)
	if res == cache.VerifySucceed {
		return
	}
	t.logger.Errorf("Found possibly corrupt cached file %s (%s), discarding", t.desc.CacheID, res)
	if err := t.cfg.Cache.DiscardFile(ctx, t.desc.PackageName, t.desc.CacheID); err != nil {
		t.logger.Errorf("Could not discard cached file %s: %s", t.desc.CacheID, err)
	}
}

// setProgress mirrors a sub-operation progress, downloaded bytes never go back.
func (t *Task) setProgress(progress float64, downloadedBytes uint64) {
	if progress > t.progress {
		t.progress = progress
	}
	if downloadedBytes > t.downloadedBytes {
		t.downloadedBytes = downloadedBytes
	}
}

// fileSizeBytes returns the size as downloaded bytes, unknown (negative) sizes count as zero.
func fileSizeBytes(size int64) uint64 {
	if size < 0 {
		return 0
	}
	return uint64(size)
}

func (t *Task) fail(f *Fault) {
	t.step = StepDone
	t.status = StatusFailed
	t.err = f
	t.logger.Errorf("Bundle load failed: %s", f.Message)
}

// ForceCompleteSynchronously blocks until the task is done, turning every pending
// load into a synchronous one. Unpacks are driven until they finish, the rest of the
// pipeline gets a bounded number of iterations so a remote download can't block the caller
// forever. It's expensive, use it only when the bundle can't be waited for asynchronously.
//
// The budget counts loop iterations including the one that gives up, so a WaitBudget of N
// updates the task at most N-1 times and a WaitBudget of 1 times out without updating it.
// Unpack iterations don't consume budget.
func (t *Task) ForceCompleteSynchronously(ctx context.Context) WaitResult {
	t.waitMode = true
	if t.destroyed {
		return WaitCanceled
	}

	budget := t.cfg.WaitBudget
	for {
		if t.unpacker != nil {
			t.unpacker.Update()
			if !t.unpacker.IsDone() {
				if ctx.Err() != nil {
					return WaitCanceled
				}
				runtime.Gosched()
				continue
			}
		}

		budget--
		if budget == 0 {
			if !t.waitErrorLogged {
				t.waitErrorLogged = true
				t.logger.Errorf("Synchronous load of bundle %s did not complete, it may need a remote download", t.desc.BundleName)
			}
			return WaitTimedOut
		}

		t.Update(ctx)
		if t.IsDone() {
			return WaitCompleted
		}
	}
}

// Destroy releases the task resources. It can be called more than once.
func (t *Task) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true

	if t.stream != nil {
		if err := t.stream.Close(); err != nil {
			t.logger.Warningf("Could not close bundle stream: %s", err)
		}
		t.stream = nil
	}
}
