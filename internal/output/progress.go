package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/koinosops/nodeman/internal/download"
)

const barWidth = 30

// DownloadBar renders snapshot download progress on a single rewritten
// terminal line.
type DownloadBar struct {
	out      io.Writer
	jsonMode bool
	started  bool
}

// NewDownloadBar creates a DownloadBar writing to stdout.
func NewDownloadBar() *DownloadBar {
	return &DownloadBar{out: os.Stdout}
}

// SetJSONMode suppresses rendering.
func (b *DownloadBar) SetJSONMode(jsonMode bool) {
	b.jsonMode = jsonMode
}

// Update rewrites the progress line from the latest report.
func (b *DownloadBar) Update(p download.Progress) {
	if b.jsonMode {
		return
	}
	b.started = true

	filled := int(p.Percent / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	cyan := color.New(color.FgCyan)
	cyan.Fprintf(b.out, "\r[%s] %5.1f%%  %s / %s  %s  ETA %s",
		bar, p.Percent,
		FormatBytes(p.Downloaded), FormatBytes(p.Total),
		FormatRate(p.BytesPerSec), FormatETA(p.ETA))
}

// Finish terminates the progress line and prints a completion message.
func (b *DownloadBar) Finish(message string) {
	if b.jsonMode {
		return
	}
	if b.started {
		fmt.Fprintln(b.out)
	}
	green := color.New(color.FgGreen)
	green.Fprintf(b.out, "✓ %s\n", message)
}

// FormatBytes renders a byte count in the most natural unit.
func FormatBytes(n uint64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.1fGB", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.1fMB", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.1fKB", float64(n)/1e3)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// FormatRate renders a transfer rate.
func FormatRate(bytesPerSec float64) string {
	return FormatBytes(uint64(bytesPerSec)) + "/s"
}

// FormatETA renders a duration as h/m/s, or a dash when unknown.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
