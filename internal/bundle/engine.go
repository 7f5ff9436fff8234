package bundle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/slok/assetpipe/internal/log"
)

// CreateRequest is an in flight asynchronous bundle creation.
type CreateRequest interface {
	// IsDone returns true when the bundle creation has finished, doesn't block.
	IsDone() bool
	// Bundle returns the created bundle or nil if the creation failed. If the request
	// is not finished it blocks until it is.
	Bundle() *Bundle
}

// Engine instantiates bundles. Sync methods return nil when the bundle can't be created.
type Engine interface {
	LoadFromFile(path string, offset uint64) *Bundle
	LoadFromFileAsync(path string, offset uint64) CreateRequest
	LoadFromMemory(data []byte) *Bundle
	LoadFromMemoryAsync(data []byte) CreateRequest
	LoadFromStream(r io.ReadSeeker, readBufferSize uint32) *Bundle
	LoadFromStreamAsync(r io.ReadSeeker, readBufferSize uint32) CreateRequest
}

// FileEngineConfig is the configuration of the file engine.
type FileEngineConfig struct {
	// DefaultReadBufferSize is used on stream loads that don't set a read buffer size.
	DefaultReadBufferSize uint32
	Logger                log.Logger
}

func (c *FileEngineConfig) defaults() error {
	if c.DefaultReadBufferSize == 0 {
		c.DefaultReadBufferSize = 32 * 1024
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "bundle.FileEngine"})
	return nil
}

// FileEngine is the engine that decodes bundle containers. A bundle name can only be
// loaded once at a time, it needs to be unloaded before loading it again.
type FileEngine struct {
	defaultReadBufferSize uint32
	logger                log.Logger

	mu     sync.Mutex
	loaded map[string]struct{}
}

// NewFileEngine returns a new file engine.
func NewFileEngine(cfg FileEngineConfig) (*FileEngine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &FileEngine{
		defaultReadBufferSize: cfg.DefaultReadBufferSize,
		logger:                cfg.Logger,
		loaded:                map[string]struct{}{},
	}, nil
}

func (e *FileEngine) LoadFromFile(path string, offset uint64) *Bundle {
	return e.load(func() ([]byte, error) { return readFileAt(path, offset) })
}

func (e *FileEngine) LoadFromFileAsync(path string, offset uint64) CreateRequest {
	return e.async(func() *Bundle { return e.LoadFromFile(path, offset) })
}

func (e *FileEngine) LoadFromMemory(data []byte) *Bundle {
	return e.load(func() ([]byte, error) { return data, nil })
}

func (e *FileEngine) LoadFromMemoryAsync(data []byte) CreateRequest {
	return e.async(func() *Bundle { return e.LoadFromMemory(data) })
}

func (e *FileEngine) LoadFromStream(r io.ReadSeeker, readBufferSize uint32) *Bundle {
	if readBufferSize == 0 {
		readBufferSize = e.defaultReadBufferSize
	}
	return e.load(func() ([]byte, error) { return readStream(r, readBufferSize) })
}

func (e *FileEngine) LoadFromStreamAsync(r io.ReadSeeker, readBufferSize uint32) CreateRequest {
	return e.async(func() *Bundle { return e.LoadFromStream(r, readBufferSize) })
}

// Loaded returns true if the bundle is loaded.
func (e *FileEngine) Loaded(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loaded[name]
	return ok
}

func (e *FileEngine) load(read func() ([]byte, error)) *Bundle {
	data, err := read()
	if err != nil {
		e.logger.Errorf("Could not read bundle data: %s", err)
		return nil
	}

	b, err := Decode(data)
	if err != nil {
		e.logger.Errorf("Could not create bundle: %s", err)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.loaded[b.name]; ok {
		e.logger.Errorf("Bundle %s can't be loaded because it's already loaded", b.name)
		return nil
	}
	e.loaded[b.name] = struct{}{}

	name := b.name
	b.onUnload = func() {
		e.mu.Lock()
		delete(e.loaded, name)
		e.mu.Unlock()
	}

	e.logger.Debugf("Bundle %s loaded with %d assets", b.name, len(b.assets))
	return b
}

func (e *FileEngine) async(load func() *Bundle) CreateRequest {
	req := &request{done: make(chan struct{})}
	go func() {
		defer close(req.done)
		req.bundle = load()
	}()
	return req
}

type request struct {
	done   chan struct{}
	bundle *Bundle
}

func (r *request) IsDone() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *request) Bundle() *Bundle {
	<-r.done
	return r.bundle
}

func readFileAt(path string, offset uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open bundle file: %w", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, fmt.Errorf("could not seek bundle file to offset %d: %w", offset, err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("could not read bundle file: %w", err)
	}
	return data, nil
}

func readStream(r io.ReadSeeker, readBufferSize uint32) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("stream is missing")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("could not rewind bundle stream: %w", err)
	}

	data, err := io.ReadAll(bufio.NewReaderSize(r, int(readBufferSize)))
	if err != nil {
		return nil, fmt.Errorf("could not read bundle stream: %w", err)
	}
	return data, nil
}
