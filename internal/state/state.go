// Package state persists durable node sync progress and lifetime counters.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Checkpoint debounce thresholds. A status poller can call
// UpdateSyncProgress every few seconds; only meaningful movement
// is worth a disk write.
const (
	// BlockSaveThreshold is the minimum block advance that forces a save.
	BlockSaveThreshold = 100

	// ProgressSaveThreshold is the minimum absolute progress change (in
	// percentage points) that forces a save.
	ProgressSaveThreshold = 1.0
)

// NodeState is the durable record of sync progress and lifetime counters.
// The schema is additive-stable: unknown fields are ignored and missing
// fields default to zero values.
type NodeState struct {
	LastBlock          uint64  `json:"last_block"`
	LastSyncProgress   float32 `json:"last_sync_progress"`
	TotalUptimeSeconds uint64  `json:"total_uptime_seconds"`
	BlocksValidated    uint64  `json:"blocks_validated"`
	DataRelayedGB      float32 `json:"data_relayed_gb"`
	FirstSyncCompleted bool    `json:"first_sync_completed"`
	InstallDate        string  `json:"install_date"`
	LastRunDate        string  `json:"last_run_date"`
}

// DefaultState returns a fresh record for a new installation.
func DefaultState() NodeState {
	now := time.Now().Format(time.RFC3339)
	return NodeState{
		InstallDate: now,
		LastRunDate: now,
	}
}

// Store persists NodeState as a JSON file with debounced checkpointing.
// All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	state  NodeState
	logger *slog.Logger

	// last persisted checkpoint, for the debounce policy
	savedBlock    uint64
	savedProgress float32
}

// NewStore creates a store backed by the given file path and loads any
// existing record. Loading is fail-open: a missing or corrupt file yields
// the default state so a bad checkpoint never blocks node operation.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	s.state = s.load()
	s.savedBlock = s.state.LastBlock
	s.savedProgress = s.state.LastSyncProgress
	return s
}

func (s *Store) load() NodeState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("state file unreadable, using defaults", "path", s.path, "error", err)
		}
		return DefaultState()
	}

	var st NodeState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("state file corrupt, using defaults", "path", s.path, "error", err)
		return DefaultState()
	}
	return st
}

// State returns a copy of the current record.
func (s *Store) State() NodeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Save persists the full record, creating parent directories as needed.
// Writes are whole-file replacement.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", filepath.Dir(s.path), err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", s.path, err)
	}

	s.savedBlock = s.state.LastBlock
	s.savedProgress = s.state.LastSyncProgress
	return nil
}

// UpdateSyncProgress records a new sync checkpoint. FirstSyncCompleted
// becomes sticky once progress reaches 100. The record is persisted only
// when the block advanced by at least BlockSaveThreshold or progress moved
// by at least ProgressSaveThreshold since the last save.
func (s *Store) UpdateSyncProgress(block uint64, progress float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.LastBlock = block
	s.state.LastSyncProgress = progress
	s.state.LastRunDate = time.Now().Format(time.RFC3339)

	if progress >= 100.0 && !s.state.FirstSyncCompleted {
		s.state.FirstSyncCompleted = true
	}

	var blockDiff uint64
	if block > s.savedBlock {
		blockDiff = block - s.savedBlock
	}
	progressDiff := progress - s.savedProgress
	if progressDiff < 0 {
		progressDiff = -progressDiff
	}

	if blockDiff >= BlockSaveThreshold || progressDiff >= ProgressSaveThreshold {
		if err := s.saveLocked(); err != nil {
			s.logger.Warn("failed to persist sync checkpoint", "error", err)
		}
	}
}

// IncrementUptime adds to the lifetime uptime counter and persists.
func (s *Store) IncrementUptime(seconds uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalUptimeSeconds += seconds
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("failed to persist uptime", "error", err)
	}
}

// IncrementBlocksValidated adds to the blocks-validated counter and persists.
func (s *Store) IncrementBlocksValidated(count uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BlocksValidated += count
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("failed to persist blocks validated", "error", err)
	}
}

// AddDataRelayed adds to the data-relayed counter and persists.
func (s *Store) AddDataRelayed(gb float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DataRelayedGB += gb
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("failed to persist data relayed", "error", err)
	}
}

// FormattedUptime renders the lifetime uptime as "Nd Nh Nm".
func (s *Store) FormattedUptime() string {
	s.mu.Lock()
	total := s.state.TotalUptimeSeconds
	s.mu.Unlock()

	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
