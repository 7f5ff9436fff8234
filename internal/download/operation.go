package download

import (
	"sync"
	"sync/atomic"
)

// operation is a transfer running on its own goroutine.
type operation struct {
	totalBytes int64
	bytes      atomic.Int64
	done       atomic.Bool

	mu      sync.Mutex
	lastErr string
}

func newOperation(totalBytes int64) *operation {
	return &operation{totalBytes: totalBytes}
}

func (o *operation) Update() {}

func (o *operation) Progress() float64 {
	if o.IsDone() && !o.HasError() {
		return 1
	}
	if o.totalBytes <= 0 {
		return 0
	}

	p := float64(o.bytes.Load()) / float64(o.totalBytes)
	if p > 1 {
		p = 1
	}
	return p
}

func (o *operation) DownloadedBytes() uint64 {
	b := o.bytes.Load()
	if b < 0 {
		return 0
	}
	return uint64(b)
}

func (o *operation) IsDone() bool { return o.done.Load() }

func (o *operation) HasError() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr != ""
}

func (o *operation) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *operation) finish(err error) {
	o.mu.Lock()
	if err != nil {
		o.lastErr = err.Error()
	}
	o.mu.Unlock()
	o.done.Store(true)
}

// Write counts the transferred bytes, so the operation can be used as the progress sink of a copy.
func (o *operation) Write(p []byte) (int, error) {
	o.bytes.Add(int64(len(p)))
	return len(p), nil
}

func (o *operation) resetBytes() { o.bytes.Store(0) }

// CompletedOperation returns an already finished operation, errMsg empty means success.
func CompletedOperation(totalBytes int64, errMsg string) Operation {
	op := newOperation(totalBytes)
	if errMsg == "" {
		op.bytes.Store(totalBytes)
	}
	op.mu.Lock()
	op.lastErr = errMsg
	op.mu.Unlock()
	op.done.Store(true)
	return op
}
