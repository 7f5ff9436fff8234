package loader_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/assetpipe/internal/bundle"
	"github.com/slok/assetpipe/internal/cache"
	"github.com/slok/assetpipe/internal/decrypt"
	"github.com/slok/assetpipe/internal/download"
	"github.com/slok/assetpipe/internal/loader"
	"github.com/slok/assetpipe/internal/loader/loadermock"
	"github.com/slok/assetpipe/internal/model"
)

// fakeOperation is a transfer operation controlled by the test.
type fakeOperation struct {
	progress float64
	bytes    uint64
	done     bool
	errMsg   string

	updates       int
	doneAfterUpds int
}

func (f *fakeOperation) Update() {
	f.updates++
	if f.doneAfterUpds > 0 && f.updates >= f.doneAfterUpds {
		f.done = true
	}
}
func (f *fakeOperation) Progress() float64       { return f.progress }
func (f *fakeOperation) DownloadedBytes() uint64 { return f.bytes }
func (f *fakeOperation) IsDone() bool            { return f.done }
func (f *fakeOperation) HasError() bool          { return f.errMsg != "" }
func (f *fakeOperation) LastError() string       { return f.errMsg }

// fakeRequest is an engine create request controlled by the test.
type fakeRequest struct {
	done   bool
	bundle *bundle.Bundle
	gets   int
}

func (f *fakeRequest) IsDone() bool { return f.done }
func (f *fakeRequest) Bundle() *bundle.Bundle {
	f.gets++
	return f.bundle
}

// closeCounter is a stream that counts its closes.
type closeCounter struct {
	*bytes.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

type mocks struct {
	downloader *loadermock.MockSystem
	unpacker   *loadermock.MockSystem
	patcher    *loadermock.MockManifestPatcher
	engine     *loadermock.MockEngine
	decryption *loadermock.MockDecryptionServices
	cache      *loadermock.MockCacheVerifier
}

func newMocks() mocks {
	return mocks{
		downloader: &loadermock.MockSystem{},
		unpacker:   &loadermock.MockSystem{},
		patcher:    &loadermock.MockManifestPatcher{},
		engine:     &loadermock.MockEngine{},
		decryption: &loadermock.MockDecryptionServices{},
		cache:      &loadermock.MockCacheVerifier{},
	}
}

func (m mocks) assertExpectations(t *testing.T) {
	m.downloader.AssertExpectations(t)
	m.unpacker.AssertExpectations(t)
	m.patcher.AssertExpectations(t)
	m.engine.AssertExpectations(t)
	m.decryption.AssertExpectations(t)
	m.cache.AssertExpectations(t)
}

func (m mocks) config() loader.Config {
	return loader.Config{
		Downloader: m.downloader,
		Unpacker:   m.unpacker,
		Patcher:    m.patcher,
		Engine:     m.engine,
		Decryption: m.decryption,
		Cache:      m.cache,
	}
}

func testDescriptor(mode model.LoadMode, method model.LoadMethod) model.BundleDescriptor {
	return model.BundleDescriptor{
		PackageName:       "game",
		BundleName:        "ui",
		FileSize:          1234,
		FileHash:          "aabbcc",
		CacheID:           "aabbcc",
		LoadMode:          mode,
		LoadMethod:        method,
		StreamingFilePath: "/streaming/game/ui.bundle",
		CachedFilePath:    "/cache/game/bundles/aa/aabbcc/__data",
		RemoteURL:         "https://cdn.example.com/ui.bundle",
	}
}

var testBundle = bundle.New("ui", map[string][]byte{"logo": []byte("png")})

func newTask(t *testing.T, cfg loader.Config, desc model.BundleDescriptor) *loader.Task {
	t.Helper()
	l, err := loader.New(cfg)
	require.NoError(t, err)
	return l.NewTask(desc)
}

func TestNew(t *testing.T) {
	tests := map[string]struct {
		cfg    func(m mocks) loader.Config
		expErr bool
		errMsg string
	}{
		"Valid config with all fields.": {
			cfg: func(m mocks) loader.Config { return m.config() },
		},
		"Valid config without decryption services.": {
			cfg: func(m mocks) loader.Config {
				c := m.config()
				c.Decryption = nil
				return c
			},
		},
		"Missing downloader returns error.": {
			cfg: func(m mocks) loader.Config {
				c := m.config()
				c.Downloader = nil
				return c
			},
			expErr: true,
			errMsg: "downloader is required",
		},
		"Missing unpacker returns error.": {
			cfg: func(m mocks) loader.Config {
				c := m.config()
				c.Unpacker = nil
				return c
			},
			expErr: true,
			errMsg: "unpacker is required",
		},
		"Missing patcher returns error.": {
			cfg: func(m mocks) loader.Config {
				c := m.config()
				c.Patcher = nil
				return c
			},
			expErr: true,
			errMsg: "manifest patcher is required",
		},
		"Missing engine returns error.": {
			cfg: func(m mocks) loader.Config {
				c := m.config()
				c.Engine = nil
				return c
			},
			expErr: true,
			errMsg: "bundle engine is required",
		},
		"Missing cache verifier returns error.": {
			cfg: func(m mocks) loader.Config {
				c := m.config()
				c.Cache = nil
				return c
			},
			expErr: true,
			errMsg: "cache verifier is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			l, err := loader.New(tt.cfg(newMocks()))
			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, l)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, l)
			}
		})
	}
}

func TestTaskNew(t *testing.T) {
	assert := assert.New(t)

	m := newMocks()
	l, err := loader.New(m.config())
	require.NoError(t, err)

	desc := testDescriptor(model.LoadModeCache, model.LoadMethodNormal)
	t1 := l.NewTask(desc)
	t2 := l.NewTask(desc)

	assert.NotEmpty(t1.ID())
	assert.NotEqual(t1.ID(), t2.ID())
	assert.Equal(desc, t1.Descriptor())
	assert.Equal(loader.StepInit, t1.Step())
	assert.Equal(loader.StatusPending, t1.Status())
	assert.False(t1.IsDone())
	assert.NoError(t1.Err())
	assert.Nil(t1.Bundle())
}

func TestTaskRemoteDownload(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	m := newMocks()
	desc := testDescriptor(model.LoadModeRemote, model.LoadMethodNormal)
	op := &fakeOperation{progress: 0.1, bytes: 100}
	req := &fakeRequest{}
	m.downloader.On("BeginDownload", mock.MatchedBy(func(d download.Descriptor) bool {
		return d.RemoteURL == desc.RemoteURL && d.SavePath == desc.CachedFilePath && d.CacheID == desc.CacheID
	}), math.MaxInt).Once().Return(op)
	m.engine.On("LoadFromFileAsync", desc.CachedFilePath, uint64(0)).Once().Return(req)

	task := newTask(t, m.config(), desc)

	// Downloading.
	task.Update(ctx)
	assert.Equal(loader.StepCheckDownload, task.Step())
	assert.Equal(desc.CachedFilePath, task.LoadPath())
	assert.Equal(0.1, task.Progress())
	assert.Equal(uint64(100), task.DownloadedBytes())

	op.progress, op.bytes = 0.5, 600
	task.Update(ctx)
	assert.Equal(loader.StepCheckDownload, task.Step())
	assert.Equal(0.5, task.Progress())
	assert.Equal(uint64(600), task.DownloadedBytes())
	m.engine.AssertNotCalled(t, "LoadFromFileAsync", mock.Anything, mock.Anything)

	// Downloaded, loading.
	op.progress, op.bytes, op.done = 1, 1234, true
	task.Update(ctx)
	assert.Equal(loader.StepCheckLoadFile, task.Step())
	assert.Equal(1.0, task.Progress())
	assert.Equal(uint64(1234), task.DownloadedBytes())

	task.Update(ctx)
	assert.Equal(loader.StepCheckLoadFile, task.Step())
	assert.Equal(loader.StatusPending, task.Status())

	// Loaded.
	req.done, req.bundle = true, testBundle
	task.Update(ctx)
	assert.Equal(loader.StepDone, task.Step())
	require.Equal(loader.StatusSucceeded, task.Status())
	assert.NoError(task.Err())
	assert.Same(testBundle, task.Bundle())

	// Done is terminal.
	task.Update(ctx)
	assert.Equal(loader.StepDone, task.Step())
	assert.Equal(1, req.gets)

	m.assertExpectations(t)
}

func TestTaskDownloadedBytesNeverDecrease(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	m := newMocks()
	op := &fakeOperation{progress: 0.6, bytes: 700}
	m.downloader.On("BeginDownload", mock.Anything, mock.Anything).Once().Return(op)

	task := newTask(t, m.config(), testDescriptor(model.LoadModeRemote, model.LoadMethodNormal))

	last := uint64(0)
	for _, b := range []uint64{700, 200, 0, 800, 300} {
		op.bytes, op.progress = b, float64(b)/1000
		task.Update(ctx)
		assert.GreaterOrEqual(task.DownloadedBytes(), last)
		last = task.DownloadedBytes()
	}
	assert.Equal(uint64(800), last)
	assert.Equal(0.8, task.Progress())
	assert.Equal(loader.StatusPending, task.Status())
}

func TestTaskFileSizeDownloadedBytes(t *testing.T) {
	tests := map[string]struct {
		mode       model.LoadMode
		fileSize   int64
		setupMocks func(m mocks)
		expBytes   uint64
	}{
		"A downloaded bundle should report its file size.": {
			mode:     model.LoadModeRemote,
			fileSize: 1234,
			setupMocks: func(m mocks) {
				op := &loadermock.MockOperation{}
				op.On("Progress").Return(1.0)
				op.On("DownloadedBytes").Return(uint64(1000))
				op.On("IsDone").Return(true)
				op.On("HasError").Return(false)
				m.downloader.On("BeginDownload", mock.Anything, math.MaxInt).Once().Return(op)
			},
			expBytes: 1234,
		},
		"A downloaded bundle with negative file size should keep the transferred bytes.": {
			mode:     model.LoadModeRemote,
			fileSize: -1,
			setupMocks: func(m mocks) {
				op := &loadermock.MockOperation{}
				op.On("Progress").Return(1.0)
				op.On("DownloadedBytes").Return(uint64(10))
				op.On("IsDone").Return(true)
				op.On("HasError").Return(false)
				m.downloader.On("BeginDownload", mock.Anything, math.MaxInt).Once().Return(op)
			},
			expBytes: 10,
		},
		"A cached bundle with negative file size should not report downloaded bytes.": {
			mode:       model.LoadModeCache,
			fileSize:   -1,
			setupMocks: func(m mocks) {},
			expBytes:   0,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			m := newMocks()
			test.setupMocks(m)
			desc := testDescriptor(test.mode, model.LoadMethodNormal)
			desc.FileSize = test.fileSize

			req := &loadermock.MockCreateRequest{}
			req.On("IsDone").Return(true)
			req.On("Bundle").Once().Return(testBundle)
			m.engine.On("LoadFromFileAsync", desc.CachedFilePath, uint64(0)).Once().Return(req)

			task := newTask(t, m.config(), desc)
			task.Update(context.Background())

			assert.Equal(loader.StatusSucceeded, task.Status())
			assert.Equal(1.0, task.Progress())
			assert.Equal(test.expBytes, task.DownloadedBytes())
			m.assertExpectations(t)
			req.AssertExpectations(t)
		})
	}
}

func TestTaskTransferError(t *testing.T) {
	tests := map[string]struct {
		desc       model.BundleDescriptor
		cfg        func(m mocks) loader.Config
		setupMocks func(m mocks, op download.Operation)
	}{
		"A failed download should fail the task with the download error.": {
			desc: testDescriptor(model.LoadModeRemote, model.LoadMethodNormal),
			cfg:  func(m mocks) loader.Config { return m.config() },
			setupMocks: func(m mocks, op download.Operation) {
				m.downloader.On("BeginDownload", mock.Anything, math.MaxInt).Once().Return(op)
			},
		},
		"A failed unpack should fail the task with the unpack error.": {
			desc: testDescriptor(model.LoadModeStreaming, model.LoadMethodMemory),
			cfg: func(m mocks) loader.Config {
				c := m.config()
				c.StreamingRequiresUnpack = true
				return c
			},
			setupMocks: func(m mocks, op download.Operation) {
				ud := download.Descriptor{BundleName: "ui", SourcePath: "/streaming/game/ui.bundle"}
				m.patcher.On("GetUnpackDescriptor", mock.Anything).Once().Return(ud)
				m.unpacker.On("BeginDownload", ud, 1).Once().Return(op)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			m := newMocks()
			op := &fakeOperation{progress: 0.3, bytes: 10}
			test.setupMocks(m, op)

			task := newTask(t, test.cfg(m), test.desc)
			task.Update(ctx)
			assert.Equal(loader.StatusPending, task.Status())

			op.done, op.errMsg = true, "connection reset by peer"
			task.Update(ctx)

			assert.Equal(loader.StepDone, task.Step())
			assert.Equal(loader.StatusFailed, task.Status())
			require.Error(task.Err())
			assert.Equal("connection reset by peer", task.Err().Error())
			assert.ErrorIs(task.Err(), model.ErrTransferFault)
			assert.Nil(task.Bundle())

			// No file load has been attempted.
			m.assertExpectations(t)
		})
	}
}

func TestTaskInit(t *testing.T) {
	tests := map[string]struct {
		desc                    model.BundleDescriptor
		streamingRequiresUnpack bool
		setupMocks              func(m mocks)
		expStep                 loader.Step
		expLoadPath             string
	}{
		"Streaming bundles should be loaded in place.": {
			desc: testDescriptor(model.LoadModeStreaming, model.LoadMethodNormal),
			setupMocks: func(m mocks) {
				m.engine.On("LoadFromFileAsync", "/streaming/game/ui.bundle", uint64(0)).Once().Return(&fakeRequest{})
			},
			expStep:     loader.StepCheckLoadFile,
			expLoadPath: "/streaming/game/ui.bundle",
		},

		"Streaming memory bundles should be loaded in place when the platform can read them.": {
			desc: testDescriptor(model.LoadModeStreaming, model.LoadMethodMemory),
			setupMocks: func(m mocks) {
				fi := decrypt.FileInfo{BundleName: "ui", FilePath: "/streaming/game/ui.bundle"}
				m.decryption.On("LoadFromMemory", fi).Once().Return([]byte("data"), nil)
				m.engine.On("LoadFromMemoryAsync", []byte("data")).Once().Return(&fakeRequest{})
			},
			expStep:     loader.StepCheckLoadFile,
			expLoadPath: "/streaming/game/ui.bundle",
		},

		"Streaming normal bundles should be loaded in place even if the platform requires unpacking.": {
			desc:                    testDescriptor(model.LoadModeStreaming, model.LoadMethodNormal),
			streamingRequiresUnpack: true,
			setupMocks: func(m mocks) {
				m.engine.On("LoadFromFileAsync", "/streaming/game/ui.bundle", uint64(0)).Once().Return(&fakeRequest{})
			},
			expStep:     loader.StepCheckLoadFile,
			expLoadPath: "/streaming/game/ui.bundle",
		},

		"Streaming stream bundles should be unpacked when the platform requires it.": {
			desc:                    testDescriptor(model.LoadModeStreaming, model.LoadMethodStream),
			streamingRequiresUnpack: true,
			setupMocks: func(m mocks) {
				m.patcher.On("GetUnpackDescriptor", mock.Anything).Once().Return(download.Descriptor{})
				m.unpacker.On("BeginDownload", download.Descriptor{}, 1).Once().Return(&fakeOperation{})
			},
			expStep:     loader.StepCheckUnpack,
			expLoadPath: "/cache/game/bundles/aa/aabbcc/__data",
		},

		"Compressed streaming bundles should always be unpacked.": {
			desc: func() model.BundleDescriptor {
				d := testDescriptor(model.LoadModeStreaming, model.LoadMethodNormal)
				d.Compression = model.CompressionZstd
				return d
			}(),
			setupMocks: func(m mocks) {
				m.patcher.On("GetUnpackDescriptor", mock.Anything).Once().Return(download.Descriptor{})
				m.unpacker.On("BeginDownload", download.Descriptor{}, 1).Once().Return(&fakeOperation{})
			},
			expStep:     loader.StepCheckUnpack,
			expLoadPath: "/cache/game/bundles/aa/aabbcc/__data",
		},

		"Cached bundles should be loaded from the cache.": {
			desc: testDescriptor(model.LoadModeCache, model.LoadMethodNormal),
			setupMocks: func(m mocks) {
				m.engine.On("LoadFromFileAsync", "/cache/game/bundles/aa/aabbcc/__data", uint64(0)).Once().Return(&fakeRequest{})
			},
			expStep:     loader.StepCheckLoadFile,
			expLoadPath: "/cache/game/bundles/aa/aabbcc/__data",
		},

		"Remote bundles should be downloaded into the cache.": {
			desc: testDescriptor(model.LoadModeRemote, model.LoadMethodNormal),
			setupMocks: func(m mocks) {
				m.downloader.On("BeginDownload", mock.Anything, math.MaxInt).Once().Return(&fakeOperation{})
			},
			expStep:     loader.StepCheckDownload,
			expLoadPath: "/cache/game/bundles/aa/aabbcc/__data",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			m := newMocks()
			test.setupMocks(m)
			cfg := m.config()
			cfg.StreamingRequiresUnpack = test.streamingRequiresUnpack

			task := newTask(t, cfg, test.desc)
			task.Update(context.Background())

			assert.Equal(test.expStep, task.Step())
			assert.Equal(test.expLoadPath, task.LoadPath())
			assert.Equal(loader.StatusPending, task.Status())
			m.assertExpectations(t)
		})
	}
}

func TestTaskUnpack(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	m := newMocks()
	desc := testDescriptor(model.LoadModeStreaming, model.LoadMethodMemory)
	ud := download.Descriptor{PackageName: "game", BundleName: "ui", SourcePath: desc.StreamingFilePath, SavePath: desc.CachedFilePath}
	op := &fakeOperation{progress: 0.5, bytes: 600}
	req := &fakeRequest{done: true, bundle: testBundle}
	m.patcher.On("GetUnpackDescriptor", desc).Once().Return(ud)
	m.unpacker.On("BeginDownload", ud, 1).Once().Return(op)
	fi := decrypt.FileInfo{BundleName: "ui", FilePath: desc.CachedFilePath}
	m.decryption.On("LoadFromMemory", fi).Once().Return([]byte("data"), nil)
	m.engine.On("LoadFromMemoryAsync", []byte("data")).Once().Return(req)

	cfg := m.config()
	cfg.StreamingRequiresUnpack = true
	task := newTask(t, cfg, desc)

	task.Update(ctx)
	assert.Equal(loader.StepCheckUnpack, task.Step())
	assert.Equal(uint64(600), task.DownloadedBytes())

	op.done = true
	task.Update(ctx)
	assert.Equal(loader.StepDone, task.Step())
	assert.Equal(loader.StatusSucceeded, task.Status())
	assert.Same(testBundle, task.Bundle())

	m.assertExpectations(t)
}

func TestTaskLoadFile(t *testing.T) {
	cachedPath := "/cache/game/bundles/aa/aabbcc/__data"
	fi := decrypt.FileInfo{BundleName: "ui", FilePath: cachedPath}

	tests := map[string]struct {
		method        model.LoadMethod
		noDecryption  bool
		setupMocks    func(m mocks, s *closeCounter)
		expStatus     loader.Status
		expErr        string
		expFaultKind  error
		expStreamOpen bool
	}{
		"Normal bundles should be loaded from the file.": {
			method: model.LoadMethodNormal,
			setupMocks: func(m mocks, s *closeCounter) {
				m.engine.On("LoadFromFileAsync", cachedPath, uint64(0)).Once().Return(&fakeRequest{done: true, bundle: testBundle})
			},
			expStatus: loader.StatusSucceeded,
		},

		"File offset bundles should be loaded from the file at the decrypted offset.": {
			method: model.LoadMethodFileOffset,
			setupMocks: func(m mocks, s *closeCounter) {
				m.decryption.On("LoadFromFileOffset", fi).Once().Return(uint64(64), nil)
				m.engine.On("LoadFromFileAsync", cachedPath, uint64(64)).Once().Return(&fakeRequest{done: true, bundle: testBundle})
			},
			expStatus: loader.StatusSucceeded,
		},

		"Memory bundles should be loaded from the decrypted data.": {
			method: model.LoadMethodMemory,
			setupMocks: func(m mocks, s *closeCounter) {
				m.decryption.On("LoadFromMemory", fi).Once().Return([]byte("decrypted"), nil)
				m.engine.On("LoadFromMemoryAsync", []byte("decrypted")).Once().Return(&fakeRequest{done: true, bundle: testBundle})
			},
			expStatus: loader.StatusSucceeded,
		},

		"Stream bundles should be loaded from the decrypted stream and keep it.": {
			method: model.LoadMethodStream,
			setupMocks: func(m mocks, s *closeCounter) {
				m.decryption.On("LoadFromStream", fi).Once().Return(s, nil)
				m.decryption.On("ManagedReadBufferSize").Once().Return(uint32(4096))
				m.engine.On("LoadFromStreamAsync", s, uint32(4096)).Once().Return(&fakeRequest{done: true, bundle: testBundle})
			},
			expStatus:     loader.StatusSucceeded,
			expStreamOpen: true,
		},

		"Encrypted bundles without decryption services should fail.": {
			method:       model.LoadMethodMemory,
			noDecryption: true,
			setupMocks:   func(m mocks, s *closeCounter) {},
			expStatus:    loader.StatusFailed,
			expErr:       "decryption services is nil: ui",
			expFaultKind: model.ErrConfigurationFault,
		},

		"Unknown load methods should fail.": {
			method:       model.LoadMethod("mmap"),
			setupMocks:   func(m mocks, s *closeCounter) {},
			expStatus:    loader.StatusFailed,
			expErr:       `unimplemented load method: "mmap"`,
			expFaultKind: model.ErrConfigurationFault,
		},

		"A decryption error should fail the load.": {
			method: model.LoadMethodMemory,
			setupMocks: func(m mocks, s *closeCounter) {
				m.decryption.On("LoadFromMemory", fi).Once().Return(nil, errors.New("wrong key"))
				m.cache.On("VerifyRecordedFile", mock.Anything, "game", "aabbcc").Once().Return(cache.VerifySucceed)
			},
			expStatus:    loader.StatusFailed,
			expErr:       "failed to load bundle: ui",
			expFaultKind: model.ErrInstantiationFault,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			m := newMocks()
			s := &closeCounter{Reader: bytes.NewReader([]byte("stream"))}
			test.setupMocks(m, s)
			cfg := m.config()
			if test.noDecryption {
				cfg.Decryption = nil
			}

			task := newTask(t, cfg, testDescriptor(model.LoadModeCache, test.method))
			task.Update(context.Background())

			assert.Equal(loader.StepDone, task.Step())
			assert.Equal(test.expStatus, task.Status())
			if test.expErr != "" {
				assert.EqualError(task.Err(), test.expErr)
				assert.ErrorIs(task.Err(), test.expFaultKind)
				var f *loader.Fault
				assert.True(errors.As(task.Err(), &f))
			} else {
				assert.NoError(task.Err())
				assert.Same(testBundle, task.Bundle())
			}
			assert.Equal(0, s.closes)

			task.Destroy()
			if test.expStreamOpen {
				assert.Equal(1, s.closes)
			}

			m.assertExpectations(t)
		})
	}
}

func TestTaskUnimplementedLoadMode(t *testing.T) {
	assert := assert.New(t)

	m := newMocks()
	task := newTask(t, m.config(), testDescriptor(model.LoadMode("p2p"), model.LoadMethodNormal))
	task.Update(context.Background())

	assert.Equal(loader.StepDone, task.Step())
	assert.Equal(loader.StatusFailed, task.Status())
	assert.EqualError(task.Err(), `unimplemented load mode: "p2p"`)
	assert.ErrorIs(task.Err(), model.ErrConfigurationFault)
	assert.Empty(task.LoadPath())
	m.assertExpectations(t)
}

func TestTaskCheckFileExists(t *testing.T) {
	tests := map[string]struct {
		createFile bool
		expStatus  loader.Status
	}{
		"A missing bundle file should fail before loading.": {
			expStatus: loader.StatusFailed,
		},
		"An existing bundle file should be loaded.": {
			createFile: true,
			expStatus:  loader.StatusSucceeded,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			path := filepath.Join(t.TempDir(), "__data")
			if test.createFile {
				require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
			}
			desc := testDescriptor(model.LoadModeCache, model.LoadMethodNormal)
			desc.CachedFilePath = path

			m := newMocks()
			if test.createFile {
				m.engine.On("LoadFromFileAsync", path, uint64(0)).Once().Return(&fakeRequest{done: true, bundle: testBundle})
			}
			cfg := m.config()
			cfg.CheckFileExists = true

			task := newTask(t, cfg, desc)
			task.Update(context.Background())

			assert.Equal(test.expStatus, task.Status())
			if !test.createFile {
				assert.EqualError(task.Err(), "bundle file not found: "+path)
			}
			m.assertExpectations(t)
		})
	}
}

func TestTaskFailedLoadCacheVerification(t *testing.T) {
	tests := map[string]struct {
		mode       model.LoadMode
		setupMocks func(m mocks)
	}{
		"A failed cache load with a valid cached file should keep the file.": {
			mode: model.LoadModeCache,
			setupMocks: func(m mocks) {
				m.cache.On("VerifyRecordedFile", mock.Anything, "game", "aabbcc").Once().Return(cache.VerifySucceed)
			},
		},

		"A failed cache load with a corrupt cached file should discard the file.": {
			mode: model.LoadModeCache,
			setupMocks: func(m mocks) {
				m.cache.On("VerifyRecordedFile", mock.Anything, "game", "aabbcc").Once().Return(cache.VerifyFileHashError)
				m.cache.On("DiscardFile", mock.Anything, "game", "aabbcc").Once().Return(nil)
			},
		},

		"A failed cache load with a missing record should discard the file.": {
			mode: model.LoadModeCache,
			setupMocks: func(m mocks) {
				m.cache.On("VerifyRecordedFile", mock.Anything, "game", "aabbcc").Once().Return(cache.VerifyInfoNotFound)
				m.cache.On("DiscardFile", mock.Anything, "game", "aabbcc").Once().Return(errors.New("something"))
			},
		},

		"A failed streaming load should not verify the cache.": {
			mode:       model.LoadModeStreaming,
			setupMocks: func(m mocks) {},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()

			m := newMocks()
			test.setupMocks(m)
			req := &fakeRequest{}
			m.engine.On("LoadFromFileAsync", mock.Anything, uint64(0)).Once().Return(req)

			task := newTask(t, m.config(), testDescriptor(test.mode, model.LoadMethodNormal))
			task.Update(ctx)
			assert.Equal(loader.StepCheckLoadFile, task.Step())

			req.done = true
			task.Update(ctx)
			task.Update(ctx)

			assert.Equal(loader.StepDone, task.Step())
			assert.Equal(loader.StatusFailed, task.Status())
			assert.EqualError(task.Err(), "failed to load bundle: ui")
			assert.ErrorIs(task.Err(), model.ErrInstantiationFault)
			assert.Nil(task.Bundle())
			m.assertExpectations(t)
		})
	}
}

func TestTaskForceCompleteSynchronously(t *testing.T) {
	t.Run("A cached bundle should be loaded synchronously.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeCache, model.LoadMethodNormal)
		m.engine.On("LoadFromFile", desc.CachedFilePath, uint64(0)).Once().Return(testBundle)

		task := newTask(t, m.config(), desc)
		res := task.ForceCompleteSynchronously(context.Background())

		assert.Equal(loader.WaitCompleted, res)
		assert.True(task.WaitMode())
		assert.Equal(loader.StatusSucceeded, task.Status())
		assert.Same(testBundle, task.Bundle())
		m.assertExpectations(t)
	})

	t.Run("A synchronous load should fail like a polled one.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeCache, model.LoadMethodMemory)
		fi := decrypt.FileInfo{BundleName: "ui", FilePath: desc.CachedFilePath}
		m.decryption.On("LoadFromMemory", fi).Once().Return([]byte("data"), nil)
		m.engine.On("LoadFromMemory", []byte("data")).Once().Return(nil)
		m.cache.On("VerifyRecordedFile", mock.Anything, "game", "aabbcc").Once().Return(cache.VerifyFileNotComplete)
		m.cache.On("DiscardFile", mock.Anything, "game", "aabbcc").Once().Return(nil)

		task := newTask(t, m.config(), desc)
		res := task.ForceCompleteSynchronously(context.Background())

		assert.Equal(loader.WaitCompleted, res)
		assert.Equal(loader.StatusFailed, task.Status())
		assert.EqualError(task.Err(), "failed to load bundle: ui")
		m.assertExpectations(t)
	})

	t.Run("An outstanding async request should be completed.", func(t *testing.T) {
		assert := assert.New(t)
		ctx := context.Background()

		m := newMocks()
		desc := testDescriptor(model.LoadModeCache, model.LoadMethodNormal)
		req := &fakeRequest{bundle: testBundle}
		m.engine.On("LoadFromFileAsync", desc.CachedFilePath, uint64(0)).Once().Return(req)

		task := newTask(t, m.config(), desc)
		task.Update(ctx)
		assert.Equal(loader.StepCheckLoadFile, task.Step())

		res := task.ForceCompleteSynchronously(ctx)
		assert.Equal(loader.WaitCompleted, res)
		assert.Equal(loader.StatusSucceeded, task.Status())
		assert.Equal(1, req.gets)
		m.assertExpectations(t)
	})

	t.Run("An unpack should be driven until it finishes.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeStreaming, model.LoadMethodStream)
		op := &fakeOperation{doneAfterUpds: 5000}
		s := &closeCounter{Reader: bytes.NewReader([]byte("stream"))}
		fi := decrypt.FileInfo{BundleName: "ui", FilePath: desc.CachedFilePath}
		m.patcher.On("GetUnpackDescriptor", desc).Once().Return(download.Descriptor{})
		m.unpacker.On("BeginDownload", download.Descriptor{}, 1).Once().Return(op)
		m.decryption.On("LoadFromStream", fi).Once().Return(s, nil)
		m.decryption.On("ManagedReadBufferSize").Once().Return(uint32(1024))
		m.engine.On("LoadFromStream", s, uint32(1024)).Once().Return(testBundle)

		cfg := m.config()
		cfg.StreamingRequiresUnpack = true
		task := newTask(t, cfg, desc)

		// The unpack takes more iterations than the budget, it doesn't consume it.
		res := task.ForceCompleteSynchronously(context.Background())
		assert.Equal(loader.WaitCompleted, res)
		assert.Equal(5000, op.updates)
		assert.Equal(loader.StatusSucceeded, task.Status())

		task.Destroy()
		task.Destroy()
		assert.Equal(1, s.closes)
		m.assertExpectations(t)
	})

	t.Run("A remote download should time out when exceeding the budget.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		op := &fakeOperation{progress: 0.2, bytes: 10}
		m.downloader.On("BeginDownload", mock.Anything, math.MaxInt).Once().Return(op)

		cfg := m.config()
		cfg.WaitBudget = 10
		task := newTask(t, cfg, testDescriptor(model.LoadModeRemote, model.LoadMethodNormal))

		res := task.ForceCompleteSynchronously(context.Background())
		assert.Equal(loader.WaitTimedOut, res)
		assert.Equal(loader.StatusPending, task.Status())
		assert.Equal(loader.StepCheckDownload, task.Step())
		assert.NoError(task.Err())

		// The task can still be completed by polling.
		op.done = true
		m.engine.On("LoadFromFile", mock.Anything, uint64(0)).Once().Return(testBundle)
		task.Update(context.Background())
		assert.Equal(loader.StatusSucceeded, task.Status())
		m.assertExpectations(t)
	})

	t.Run("A cached bundle with negative file size should not report downloaded bytes.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeCache, model.LoadMethodNormal)
		desc.FileSize = -1
		m.engine.On("LoadFromFile", desc.CachedFilePath, uint64(0)).Once().Return(testBundle)

		task := newTask(t, m.config(), desc)
		res := task.ForceCompleteSynchronously(context.Background())

		assert.Equal(loader.WaitCompleted, res)
		assert.Equal(loader.StatusSucceeded, task.Status())
		assert.Equal(uint64(0), task.DownloadedBytes())
		m.assertExpectations(t)
	})

	t.Run("A budget of one iteration should time out without updating the task.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		cfg := m.config()
		cfg.WaitBudget = 1
		task := newTask(t, cfg, testDescriptor(model.LoadModeCache, model.LoadMethodNormal))

		res := task.ForceCompleteSynchronously(context.Background())
		assert.Equal(loader.WaitTimedOut, res)
		assert.Equal(loader.StepInit, task.Step())
		assert.Equal(loader.StatusPending, task.Status())
		m.assertExpectations(t)
	})

	t.Run("A budget of two iterations should update the task once.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeCache, model.LoadMethodNormal)
		m.engine.On("LoadFromFile", desc.CachedFilePath, uint64(0)).Once().Return(testBundle)

		cfg := m.config()
		cfg.WaitBudget = 2
		task := newTask(t, cfg, desc)

		res := task.ForceCompleteSynchronously(context.Background())
		assert.Equal(loader.WaitCompleted, res)
		assert.Equal(loader.StatusSucceeded, task.Status())
		m.assertExpectations(t)
	})

	t.Run("A canceled context should stop waiting for an unpack.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeStreaming, model.LoadMethodMemory)
		m.patcher.On("GetUnpackDescriptor", desc).Once().Return(download.Descriptor{})
		m.unpacker.On("BeginDownload", download.Descriptor{}, 1).Once().Return(&fakeOperation{})

		cfg := m.config()
		cfg.StreamingRequiresUnpack = true
		task := newTask(t, cfg, desc)
		task.Update(context.Background())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := task.ForceCompleteSynchronously(ctx)
		assert.Equal(loader.WaitCanceled, res)
		assert.Equal(loader.StepCheckUnpack, task.Step())
		assert.Equal(loader.StatusPending, task.Status())
		m.assertExpectations(t)
	})

	t.Run("A done task should complete right away.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeCache, model.LoadMethodNormal)
		m.engine.On("LoadFromFileAsync", desc.CachedFilePath, uint64(0)).Once().Return(&fakeRequest{done: true, bundle: testBundle})

		task := newTask(t, m.config(), desc)
		task.Update(context.Background())
		require.True(t, task.IsDone())

		assert.Equal(loader.WaitCompleted, task.ForceCompleteSynchronously(context.Background()))
		assert.Equal(loader.StatusSucceeded, task.Status())
		m.assertExpectations(t)
	})
}

func TestTaskDestroy(t *testing.T) {
	t.Run("Destroying a task without stream should be safe.", func(t *testing.T) {
		m := newMocks()
		task := newTask(t, m.config(), testDescriptor(model.LoadModeCache, model.LoadMethodNormal))

		task.Destroy()
		task.Destroy()
		assert.True(t, task.Destroyed())
	})

	t.Run("A destroyed task should not be driven.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		task := newTask(t, m.config(), testDescriptor(model.LoadModeRemote, model.LoadMethodNormal))
		task.Destroy()
		task.Update(context.Background())

		assert.Equal(loader.StepInit, task.Step())
		assert.Equal(loader.WaitCanceled, task.ForceCompleteSynchronously(context.Background()))
		m.assertExpectations(t)
	})

	t.Run("A pending task stream should be released once.", func(t *testing.T) {
		assert := assert.New(t)

		m := newMocks()
		desc := testDescriptor(model.LoadModeCache, model.LoadMethodStream)
		s := &closeCounter{Reader: bytes.NewReader([]byte("stream"))}
		fi := decrypt.FileInfo{BundleName: "ui", FilePath: desc.CachedFilePath}
		m.decryption.On("LoadFromStream", fi).Once().Return(s, nil)
		m.decryption.On("ManagedReadBufferSize").Once().Return(uint32(1024))
		m.engine.On("LoadFromStreamAsync", s, uint32(1024)).Once().Return(&fakeRequest{})

		task := newTask(t, m.config(), desc)
		task.Update(context.Background())
		assert.Equal(loader.StatusPending, task.Status())

		task.Destroy()
		task.Destroy()
		assert.Equal(1, s.closes)
		m.assertExpectations(t)
	})
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "check-download", loader.StepCheckDownload.String())
	assert.Equal(t, "done", loader.StepDone.String())
	assert.Equal(t, "succeeded", loader.StatusSucceeded.String())
	assert.Equal(t, "timed-out", loader.WaitTimedOut.String())
}
