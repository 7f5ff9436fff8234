package printer

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar displays the byte progress of a bundle load on a status writer.
type ProgressBar struct {
	statusWriter io.Writer
	total        int64
	current      int64
	mu           sync.Mutex
}

// NewProgressBar creates a new progress bar.
// If total is 0 or negative, only the loaded bytes are shown (no percentage).
func NewProgressBar(statusWriter io.Writer, total int64) *ProgressBar {
	return &ProgressBar{
		statusWriter: statusWriter,
		total:        total,
	}
}

// Set updates the loaded bytes, it never goes back.
func (p *ProgressBar) Set(current int64, done, bundles int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current > p.current {
		p.current = current
	}
	p.print(done, bundles)
}

// Finish prints the final progress line with a newline.
func (p *ProgressBar) Finish() {
	fmt.Fprintln(p.statusWriter)
}

func (p *ProgressBar) print(done, bundles int) {
	if p.total > 0 {
		pct := float64(p.current) / float64(p.total) * 100
		barWidth := 40
		filled := int(pct / 100 * float64(barWidth))
		if filled > barWidth {
			filled = barWidth
		}
		bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
		fmt.Fprintf(p.statusWriter, "\r  [%s] %3.0f%% %s / %s (%d/%d bundles)", bar, pct, FormatBytes(p.current), FormatBytes(p.total), done, bundles)
	} else {
		fmt.Fprintf(p.statusWriter, "\r  %s loaded (%d/%d bundles)", FormatBytes(p.current), done, bundles)
	}
}
