// Package download fetches blockchain snapshots with checkpointed,
// resumable transfers. Resumability lives entirely in the filesystem
// (the partial file and its byte length), so a retry after a process
// restart picks up where the last attempt stopped.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koinosops/nodeman/internal/exec"
	"github.com/koinosops/nodeman/internal/paths"
)

const (
	// MinResumeSize is the smallest partial file treated as a genuine
	// resumable download. Anything smaller is likely a false start and
	// is discarded.
	MinResumeSize = 100_000_000

	// CheckpointInterval is how many bytes may accumulate before the
	// file is flushed to stable storage. Bounds data loss on
	// interruption to roughly one interval.
	CheckpointInterval = 100_000_000

	// EstimatedTotalSize is used to report initial progress when
	// resuming, before response headers arrive.
	EstimatedTotalSize = 36_872_000_000

	// FallbackTotalSize is assumed when the server omits Content-Length.
	FallbackTotalSize = 30_000_000_000

	// InstalledDataMin is the minimum chain directory size that counts
	// as an existing installation.
	InstalledDataMin = 1_000_000_000

	// ProgressInterval throttles progress callbacks.
	ProgressInterval = 5 * time.Second

	// DownloadTimeout is the ceiling for one full transfer.
	DownloadTimeout = 24 * time.Hour

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout = 30 * time.Second

	// DefaultSnapshotIndex is the public snapshot listing.
	DefaultSnapshotIndex = "https://backup.koinosblocks.com/"

	// DefaultSnapshotName is assumed when a URL has no file name.
	DefaultSnapshotName = "snapshot.tar.gz"

	// legacySnapshotName is the artifact name used by older releases;
	// an existing one is renamed and resumed rather than re-downloaded.
	legacySnapshotName = "koinos_snapshot.tar.gz"
)

// Progress is one throttled progress report.
type Progress struct {
	SessionID   string
	Percent     float32 // clamped to [0, 100]
	Downloaded  uint64
	Total       uint64
	BytesPerSec float64
	ETA         time.Duration
}

// ProgressFunc receives throttled progress reports.
type ProgressFunc func(Progress)

// Manager downloads and installs blockchain snapshots. It holds no state
// across sessions.
type Manager struct {
	dataDir    string
	stagingDir string
	indexURL   string
	client     *http.Client
	indexHTTP  *http.Client
	runner     exec.Runner
	logger     *slog.Logger

	minResume       uint64
	checkpointEvery uint64
	minInstalled    uint64
	progressEvery   time.Duration
}

// Config configures the Manager. Zero threshold values take the package
// defaults.
type Config struct {
	// DataDir is where extracted blockchain directories end up.
	DataDir string

	// StagingDir is where the artifact is downloaded and extracted.
	StagingDir string

	// IndexURL is the snapshot listing endpoint.
	IndexURL string

	// Runner executes the extraction command.
	Runner exec.Runner

	// Logger for download operations.
	Logger *slog.Logger

	// MinResumeSize overrides the resumable-partial threshold.
	MinResumeSize uint64

	// CheckpointInterval overrides the flush interval.
	CheckpointInterval uint64

	// MinInstalledSize overrides the already-installed threshold.
	MinInstalledSize uint64

	// ProgressInterval overrides the progress callback throttle.
	ProgressInterval time.Duration
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.IndexURL == "" {
		cfg.IndexURL = DefaultSnapshotIndex
	}
	if cfg.Runner == nil {
		cfg.Runner = exec.NewOSRunner()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinResumeSize == 0 {
		cfg.MinResumeSize = MinResumeSize
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = CheckpointInterval
	}
	if cfg.MinInstalledSize == 0 {
		cfg.MinInstalledSize = InstalledDataMin
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = ProgressInterval
	}
	dialer := &net.Dialer{Timeout: ConnectTimeout}
	return &Manager{
		dataDir:    cfg.DataDir,
		stagingDir: cfg.StagingDir,
		indexURL:   cfg.IndexURL,
		client: &http.Client{
			Timeout:   DownloadTimeout,
			Transport: &http.Transport{DialContext: dialer.DialContext},
		},
		indexHTTP:       &http.Client{Timeout: 30 * time.Second},
		runner:          cfg.Runner,
		logger:          cfg.Logger,
		minResume:       cfg.MinResumeSize,
		checkpointEvery: cfg.CheckpointInterval,
		minInstalled:    cfg.MinInstalledSize,
		progressEvery:   cfg.ProgressInterval,
	}
}

var snapshotNameRe = regexp.MustCompile(`backup_\d{4}-\d{2}-\d{2}\.tar\.gz`)

// LatestSnapshotURL scrapes the snapshot index for the most recent
// backup archive.
func (m *Manager) LatestSnapshotURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.indexURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.indexHTTP.Do(req)
	if err != nil {
		return "", &NetworkError{URL: m.indexURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{URL: m.indexURL, Err: fmt.Errorf("snapshot index returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{URL: m.indexURL, Err: err}
	}

	names := snapshotNameRe.FindAllString(string(body), -1)
	if len(names) == 0 {
		return "", fmt.Errorf("no snapshots found at %s", m.indexURL)
	}
	sort.Strings(names)

	// file names embed the date, so the lexicographically last is newest
	return strings.TrimSuffix(m.indexURL, "/") + "/" + names[len(names)-1], nil
}

// Installed reports whether substantial blockchain data already exists.
func (m *Manager) Installed() bool {
	chain := filepath.Join(m.dataDir, "chain")
	blockStore := filepath.Join(m.dataDir, "block_store")
	if _, err := os.Stat(chain); err != nil {
		return false
	}
	if _, err := os.Stat(blockStore); err != nil {
		return false
	}
	return dirSize(chain) > m.minInstalled
}

// Download fetches the snapshot at url, resuming any viable partial file,
// then extracts it into the data directory and deletes the artifact.
// Interrupted transfers return a PartialTransferError; re-invoking
// Download continues from the persisted partial state.
func (m *Manager) Download(ctx context.Context, url string, progress ProgressFunc) error {
	if progress == nil {
		progress = func(Progress) {}
	}
	session := uuid.NewString()[:8]
	logger := m.logger.With("session", session)

	// Idempotent short-circuit: already installed.
	if m.Installed() {
		logger.Info("blockchain data already present, skipping download")
		progress(Progress{SessionID: session, Percent: 100, Downloaded: 0, Total: 0})
		return nil
	}

	dest := m.destPath(url)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory %s: %w", filepath.Dir(dest), err)
	}
	m.adoptLegacyArtifact(dest)

	resumeOffset := m.resumeOffset(dest, logger)
	if resumeOffset > 0 {
		initial := clampPercent(float32(resumeOffset) / float32(EstimatedTotalSize) * 100)
		progress(Progress{SessionID: session, Percent: initial, Downloaded: resumeOffset, Total: EstimatedTotalSize})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	// The server's capability governs resumability: anything but 206 in
	// answer to a range request means start over from zero.
	if resumeOffset > 0 && resp.StatusCode != http.StatusPartialContent {
		logger.Warn("server does not support resume, restarting from zero")
		os.Remove(dest)
		resumeOffset = 0
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return &NetworkError{URL: url, Err: fmt.Errorf("download returned status %d", resp.StatusCode)}
	}

	totalSize := uint64(FallbackTotalSize)
	if resp.ContentLength > 0 {
		totalSize = uint64(resp.ContentLength) + resumeOffset
	}

	file, err := m.openDest(dest, resumeOffset)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := m.stream(resp.Body, file, session, resumeOffset, totalSize, progress, logger); err != nil {
		return err
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", dest, err)
	}
	file.Close()

	logger.Info("download completed", "path", dest)
	progress(Progress{SessionID: session, Percent: 100, Downloaded: totalSize, Total: totalSize})

	// Extraction is not resumable; a failure here is retried wholesale.
	if err := m.extract(ctx, dest); err != nil {
		return err
	}
	os.Remove(dest)
	return nil
}

// stream copies the response body to the destination, flushing at every
// checkpoint interval and reporting throttled progress.
func (m *Manager) stream(body io.Reader, file *os.File, session string,
	resumeOffset, totalSize uint64, progress ProgressFunc, logger *slog.Logger) error {

	downloaded := resumeOffset
	lastCheckpoint := downloaded
	startTime := time.Now()
	lastReport := startTime

	buf := make([]byte, 1<<20)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write %s: %w", file.Name(), err)
			}
			downloaded += uint64(n)

			if downloaded-lastCheckpoint >= m.checkpointEvery {
				if err := file.Sync(); err == nil {
					lastCheckpoint = downloaded
					logger.Debug("download checkpoint",
						"downloadedGB", fmt.Sprintf("%.1f", float64(downloaded)/1e9),
						"totalGB", fmt.Sprintf("%.1f", float64(totalSize)/1e9))
				}
			}

			if time.Since(lastReport) >= m.progressEvery {
				progress(m.report(session, downloaded, resumeOffset, totalSize, startTime))
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			// Preserve what we have before surfacing the interruption.
			file.Sync()
			logger.Warn("download interrupted, partial state preserved",
				"downloadedGB", fmt.Sprintf("%.1f", float64(downloaded)/1e9))
			return &PartialTransferError{Downloaded: downloaded, Total: totalSize, Err: readErr}
		}
	}
}

func (m *Manager) report(session string, downloaded, resumeOffset, totalSize uint64, startTime time.Time) Progress {
	elapsed := time.Since(startTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(downloaded-resumeOffset) / elapsed
	}
	var eta time.Duration
	if rate > 0 && totalSize > downloaded {
		eta = time.Duration(float64(totalSize-downloaded)/rate) * time.Second
	}
	return Progress{
		SessionID:   session,
		Percent:     clampPercent(float32(downloaded) / float32(totalSize) * 100),
		Downloaded:  downloaded,
		Total:       totalSize,
		BytesPerSec: rate,
		ETA:         eta,
	}
}

// destPath derives the artifact path from the URL's file name.
func (m *Manager) destPath(url string) string {
	name := DefaultSnapshotName
	if i := strings.LastIndex(url, "/"); i >= 0 && i < len(url)-1 {
		name = url[i+1:]
	}
	return filepath.Join(m.stagingDir, name)
}

// adoptLegacyArtifact renames an artifact left by older releases so its
// partial content can be resumed.
func (m *Manager) adoptLegacyArtifact(dest string) {
	legacy := filepath.Join(m.stagingDir, legacySnapshotName)
	if legacy == dest {
		return
	}
	if _, err := os.Stat(legacy); err != nil {
		return
	}
	if _, err := os.Stat(dest); err == nil {
		return
	}
	if err := os.Rename(legacy, dest); err == nil {
		m.logger.Info("renamed existing snapshot artifact", "from", legacy, "to", dest)
	}
}

// resumeOffset inspects any partial file at dest. Files below
// MinResumeSize are discarded as false starts.
func (m *Manager) resumeOffset(dest string, logger *slog.Logger) uint64 {
	info, err := os.Stat(dest)
	if err != nil {
		return 0
	}
	size := uint64(info.Size())
	if size >= m.minResume {
		logger.Info("found partial download, resuming",
			"resumeGB", fmt.Sprintf("%.1f", float64(size)/1e9))
		return size
	}
	if size > 0 {
		logger.Info("discarding small partial download", "sizeMB", size/1_000_000)
		os.Remove(dest)
	}
	return 0
}

func (m *Manager) openDest(dest string, resumeOffset uint64) (*os.File, error) {
	if resumeOffset > 0 {
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s for resume: %w", dest, err)
		}
		return f, nil
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	return f, nil
}

func clampPercent(p float32) float32 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// dirSize returns the cumulative size of all files under path.
func dirSize(path string) uint64 {
	var size uint64
	filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			size += uint64(info.Size())
		}
		return nil
	})
	return size
}

// extract unpacks the archive in the staging dir and moves the known data
// directories into the data dir, replacing any existing copies.
func (m *Manager) extract(ctx context.Context, artifact string) error {
	m.logger.Info("extracting snapshot", "path", artifact)

	res, err := m.runner.Run(ctx, "", "tar", "-xzf", artifact, "-C", m.stagingDir)
	if err != nil {
		return fmt.Errorf("failed to extract snapshot: %s", strings.TrimSpace(string(res.Stderr)))
	}

	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", m.dataDir, err)
	}

	for _, dir := range paths.DataDirs {
		src := filepath.Join(m.stagingDir, dir)
		dst := filepath.Join(m.dataDir, dir)
		if _, err := os.Stat(src); err != nil {
			m.logger.Warn("directory not found in extracted data", "dir", dir)
			continue
		}
		if _, err := os.Stat(dst); err == nil {
			os.RemoveAll(dst)
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to move %s: %w", dir, err)
		}
		m.logger.Debug("moved data directory", "dir", dir)
	}
	return nil
}
