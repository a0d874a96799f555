package display

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes returns a human-readable IEC size ("700 MiB").
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatCount formats n with thousands separators ("7,481").
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatDuration returns a compact duration ("1h02m", "3m05s", "1.2s").
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

// FormatRelative returns how long ago t was ("3 hours ago").
func FormatRelative(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
