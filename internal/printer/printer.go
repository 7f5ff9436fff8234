package printer

import "github.com/slok/assetpipe/internal/model"

// Printer knows how to print assetpipe results in different formats.
type Printer interface {
	PrintLoadResults(results []model.LoadResult) error
	PrintAddresses(addresses []model.AssetAddress) error
	PrintCacheRecords(records []model.CacheRecord) error
	PrintCacheCheck(results []model.CheckResult) error
	PrintMessage(msg string) error
}
