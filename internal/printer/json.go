package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/assetpipe/internal/model"
)

// JSONPrinter prints assetpipe results in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// loadResultOutput represents a bundle load result.
type loadResultOutput struct {
	TaskID          string   `json:"task_id"`
	Package         string   `json:"package"`
	Bundle          string   `json:"bundle"`
	LoadMode        string   `json:"load_mode"`
	LoadMethod      string   `json:"load_method"`
	Status          string   `json:"status"`
	Error           string   `json:"error,omitempty"`
	Assets          []string `json:"assets"`
	DownloadedBytes uint64   `json:"downloaded_bytes"`
	DurationMS      int64    `json:"duration_ms"`
}

// addressOutput represents an asset address.
type addressOutput struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

// cacheRecordOutput represents a cache record.
type cacheRecordOutput struct {
	Package   string    `json:"package"`
	CacheID   string    `json:"cache_id"`
	Bundle    string    `json:"bundle"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// checkOutput represents a cache check result.
type checkOutput struct {
	Package string `json:"package"`
	CacheID string `json:"cache_id"`
	Bundle  string `json:"bundle"`
	Result  string `json:"result"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintLoadResults prints bundle load results in JSON format.
func (j *JSONPrinter) PrintLoadResults(results []model.LoadResult) error {
	items := make([]loadResultOutput, len(results))
	for i, r := range results {
		assets := r.Assets
		if assets == nil {
			assets = []string{}
		}
		items[i] = loadResultOutput{
			TaskID:          r.TaskID,
			Package:         r.PackageName,
			Bundle:          r.BundleName,
			LoadMode:        string(r.LoadMode),
			LoadMethod:      string(r.LoadMethod),
			Status:          string(r.Status),
			Error:           r.Error,
			Assets:          assets,
			DownloadedBytes: r.DownloadedBytes,
			DurationMS:      r.Duration.Milliseconds(),
		}
	}

	return j.encode(items)
}

// PrintAddresses prints asset addresses in JSON format.
func (j *JSONPrinter) PrintAddresses(addresses []model.AssetAddress) error {
	items := make([]addressOutput, len(addresses))
	for i, a := range addresses {
		items[i] = addressOutput{Address: a.Address, Asset: a.AssetPath}
	}

	return j.encode(items)
}

// PrintCacheRecords prints cache records in JSON format.
func (j *JSONPrinter) PrintCacheRecords(records []model.CacheRecord) error {
	items := make([]cacheRecordOutput, len(records))
	for i, r := range records {
		items[i] = cacheRecordOutput{
			Package:   r.PackageName,
			CacheID:   r.CacheID,
			Bundle:    r.BundleName,
			Path:      r.DataFilePath,
			Size:      r.FileSize,
			Hash:      r.FileHash,
			CreatedAt: r.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintCacheCheck prints cache check results in JSON format.
func (j *JSONPrinter) PrintCacheCheck(results []model.CheckResult) error {
	items := make([]checkOutput, len(results))
	for i, r := range results {
		items[i] = checkOutput{
			Package: r.Record.PackageName,
			CacheID: r.Record.CacheID,
			Bundle:  r.Record.BundleName,
			Result:  r.Result,
			Status:  string(r.Status),
			Message: r.Message,
		}
	}

	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
