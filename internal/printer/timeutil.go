package printer

import (
	"fmt"
	"time"
)

var ageUnits = []struct {
	d      time.Duration
	suffix string
}{
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
}

// Age returns the compact age of t at now using its biggest unit.
// Examples: "0s", "45s", "3m", "5h", "7d".
func Age(t, now time.Time) string {
	diff := now.Sub(t)
	if diff < time.Second {
		return "0s"
	}

	for _, u := range ageUnits {
		if diff >= u.d {
			return fmt.Sprintf("%d%s", int64(diff/u.d), u.suffix)
		}
	}
	return "0s"
}

// FormatTimestamp returns a formatted timestamp string in UTC.
// Format: "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatDuration returns a short human-readable duration.
// Examples: "0s", "850ms", "1.2s", "3m4s".
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Truncate(time.Second).String()
	}
}
