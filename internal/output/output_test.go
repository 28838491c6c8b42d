package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/koinosops/nodeman/internal/download"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", FormatBytes(512))
	assert.Equal(t, "1.5KB", FormatBytes(1500))
	assert.Equal(t, "12.3MB", FormatBytes(12_300_000))
	assert.Equal(t, "36.9GB", FormatBytes(36_872_000_000))
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "-", FormatETA(0))
	assert.Equal(t, "45s", FormatETA(45*time.Second))
	assert.Equal(t, "2m05s", FormatETA(125*time.Second))
	assert.Equal(t, "3h07m", FormatETA(3*time.Hour+7*time.Minute))
}

func TestDownloadBarRendersProgress(t *testing.T) {
	var buf bytes.Buffer
	bar := &DownloadBar{out: &buf}

	bar.Update(download.Progress{
		Percent:    50,
		Downloaded: 18_436_000_000,
		Total:      36_872_000_000,
	})

	out := buf.String()
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "18.4GB")
	assert.Contains(t, out, "36.9GB")
}

func TestDownloadBarJSONModeSilent(t *testing.T) {
	var buf bytes.Buffer
	bar := &DownloadBar{out: &buf}
	bar.SetJSONMode(true)

	bar.Update(download.Progress{Percent: 10})
	bar.Finish("done")
	assert.Empty(t, buf.String())
}

func TestLoggerJSONModeSilent(t *testing.T) {
	var out, errOut bytes.Buffer
	l := &Logger{out: &out, errOut: &errOut}
	l.SetJSONMode(true)

	l.Info("hello")
	l.Warn("careful")
	l.Error("broken")
	l.Success("done")
	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())
}
