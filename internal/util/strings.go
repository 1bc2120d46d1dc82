// Package util provides shared formatting helpers for terminal output.
package util

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// Escape codes and wide characters are measured correctly, so styled text
// can be passed in.
func TruncateANSI(s string, maxWidth int) string {
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return "..."
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// PadRight pads s with spaces to width visual columns, truncating when it
// is wider.
func PadRight(s string, width int) string {
	s = TruncateANSI(s, width)
	if w := lipgloss.Width(s); w < width {
		return s + spaces(width-w)
	}
	return s
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

// FormatDuration renders d compactly: "850ms", "42s", "3m05s", "2h10m".
func FormatDuration(d time.Duration) string {
	switch {
	case d < 0:
		return "-" + FormatDuration(-d)
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatAge renders how long before now t was, or "-" for the zero time.
func FormatAge(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if now.Before(t) {
		return "in " + FormatDuration(t.Sub(now))
	}
	return FormatDuration(now.Sub(t)) + " ago"
}
