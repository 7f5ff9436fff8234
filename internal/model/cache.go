package model

import "time"

// CacheRecord is the index entry of a bundle file stored in the local cache.
type CacheRecord struct {
	PackageName  string
	CacheID      string
	BundleName   string
	DataFilePath string
	FileSize     int64
	FileHash     string
	CreatedAt    time.Time
}
