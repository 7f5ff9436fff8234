package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/slok/assetpipe/internal/model"
)

// TablePrinter prints assetpipe results in a table format.
type TablePrinter struct {
	writer  io.Writer
	timeNow func() time.Time
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w, timeNow: time.Now}
}

// WithTimeNow sets the clock the record ages are computed with.
func (t *TablePrinter) WithTimeNow(now func() time.Time) *TablePrinter {
	t.timeNow = now
	return t
}

// PrintLoadResults prints bundle load results in a table format.
func (t *TablePrinter) PrintLoadResults(results []model.LoadResult) error {
	if len(results) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "BUNDLE\tMODE\tMETHOD\tSTATUS\tASSETS\tDOWNLOADED\tDURATION\tERROR")

	// Print rows.
	for _, r := range results {
		errMsg := r.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.BundleName,
			r.LoadMode,
			r.LoadMethod,
			r.Status,
			len(r.Assets),
			FormatBytes(r.DownloadedBytes),
			FormatDuration(r.Duration),
			errMsg,
		)
	}

	return nil
}

// PrintAddresses prints asset addresses in a table format.
func (t *TablePrinter) PrintAddresses(addresses []model.AssetAddress) error {
	if len(addresses) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ADDRESS\tASSET")
	for _, a := range addresses {
		fmt.Fprintf(tw, "%s\t%s\n", a.Address, a.AssetPath)
	}

	return nil
}

// PrintCacheRecords prints cache records in a table format.
func (t *TablePrinter) PrintCacheRecords(records []model.CacheRecord) error {
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "BUNDLE\tCACHE ID\tSIZE\tCREATED\tAGE")

	now := t.timeNow()
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.BundleName,
			shortID(r.CacheID),
			FormatBytes(r.FileSize),
			FormatTimestamp(r.CreatedAt),
			Age(r.CreatedAt, now),
		)
	}

	return nil
}

// PrintCacheCheck prints cache check results, one line per cached file plus a summary.
func (t *TablePrinter) PrintCacheCheck(results []model.CheckResult) error {
	for _, r := range results {
		fmt.Fprintf(t.writer, "  %s %s (%s): %s\n", checkIcon(r.Status), r.Record.BundleName, shortID(r.Record.CacheID), r.Message)
	}

	ok, discarded, errors := model.CountByStatus(results)
	fmt.Fprintf(t.writer, "\n%d ok, %d discarded, %d errors\n", ok, discarded, errors)

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func checkIcon(s model.CheckStatus) string {
	switch s {
	case model.CheckStatusOK:
		return "[ok]"
	case model.CheckStatusDiscarded:
		return "[discarded]"
	default:
		return "[error]"
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
