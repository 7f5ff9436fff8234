// Package download has the transfer sub-operations used by the bundle loader: downloading
// bundle files from the network and unpacking them from the streaming location into the cache.
package download

import (
	"context"

	"github.com/slok/assetpipe/internal/model"
)

// Descriptor describes a bundle file transfer.
type Descriptor struct {
	PackageName string
	BundleName  string
	CacheID     string
	// FileSize is the expected size of the transferred file, not checked when 0.
	FileSize int64
	// FileHash is the expected hex BLAKE3 digest of the transferred file, not checked when empty.
	FileHash string

	// RemoteURL and FallbackURL are the network sources of a download.
	RemoteURL   string
	FallbackURL string

	// SourcePath and Compression are the local source of an unpack.
	SourcePath  string
	Compression model.Compression

	// SavePath is where the transferred file is stored.
	SavePath string
}

// Operation is an in flight transfer.
type Operation interface {
	// Update drives operations that need the caller to advance them. Operations that
	// progress on their own ignore it.
	Update()
	// Progress returns the transfer progress in the [0, 1] range.
	Progress() float64
	DownloadedBytes() uint64
	IsDone() bool
	HasError() bool
	LastError() string
}

// System starts transfers.
type System interface {
	// BeginDownload starts a transfer, failed attempts are retried up to maxRetries times.
	BeginDownload(d Descriptor, maxRetries int) Operation
}

// Recorder records the transferred files in the cache index.
type Recorder interface {
	Record(ctx context.Context, rec model.CacheRecord) error
}
