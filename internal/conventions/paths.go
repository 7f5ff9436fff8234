package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default assetpipe data directory name (relative to home).
	DefaultDataDir = ".assetpipe"
	// CacheDir is the subdirectory for cached bundle files.
	CacheDir = "cache"
	// DBFile is the filename of the cache index database.
	DBFile = "cache.db"

	// Cache layout files.

	// BundleFilesDir is the per package directory holding cached bundles.
	BundleFilesDir = "bundles"
	// DataFile is the filename of a cached bundle file inside its cache entry directory.
	DataFile = "__data"
	// TempSuffix is appended to files that are still being written.
	TempSuffix = ".temp"
)

// CacheEntryDir returns the directory of a single cache entry. Entries are sharded by the
// first two characters of the cache ID so directories stay small.
func CacheEntryDir(cacheDir, packageName, cacheID string) string {
	shard := cacheID
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(cacheDir, packageName, BundleFilesDir, shard, cacheID)
}

// CachedDataFilePath returns the full path to the cached bundle file of a cache entry.
func CachedDataFilePath(cacheDir, packageName, cacheID string) string {
	return filepath.Join(CacheEntryDir(cacheDir, packageName, cacheID), DataFile)
}

// StreamingFilePath returns the path of a built-in bundle file inside the streaming location.
func StreamingFilePath(streamingDir, packageName, fileName string) string {
	return filepath.Join(streamingDir, packageName, fileName)
}
