// Package node owns the lifecycle state machine for the blockchain node:
// starting and stopping the container group, reconciling observed status
// against the running containers, and feeding durable sync checkpoints to
// the state store.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/koinosops/nodeman/internal/compose"
	"github.com/koinosops/nodeman/internal/rpc"
	"github.com/koinosops/nodeman/internal/state"
)

// Status is one of the node lifecycle states.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusSyncing  Status = "syncing"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

const (
	// FallbackTargetBlock is the hard-coded sync target used when both
	// the remote reference API and the log hint are unavailable. It is
	// an approximation, flagged as estimated in the status.
	FallbackTargetBlock = 43_000_000

	// RunningThreshold is the sync percentage at which the node is
	// considered fully synced.
	RunningThreshold = 99.9

	// RestartPause separates the stop and start halves of a restart so
	// the container group settles in between.
	RestartPause = 2 * time.Second

	// DefaultChainContainer and DefaultP2PContainer are the compose
	// container names whose logs carry sync and peer hints.
	DefaultChainContainer = "koinos-chain-1"
	DefaultP2PContainer   = "koinos-p2p-1"
)

// NodeStatus is the live status snapshot. The Manager owns the single
// mutable instance; all callers receive value copies.
type NodeStatus struct {
	Status       Status  `json:"status"`
	SyncProgress float32 `json:"sync_progress"`
	CurrentBlock uint64  `json:"current_block"`
	TargetBlock  uint64  `json:"target_block"`
	// TargetEstimated marks TargetBlock as derived from a log hint or
	// the fallback constant rather than the reference API.
	TargetEstimated bool   `json:"target_estimated"`
	PeersCount      uint32 `json:"peers_count"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Manager is the lifecycle controller. It is the only writer of the live
// NodeStatus; reads take a copy under the lock.
type Manager struct {
	installDir string
	runtime    *compose.Runtime
	local      *rpc.HeightClient
	remote     *rpc.HeightClient
	store      *state.Store
	logger     *slog.Logger

	chainContainer string
	p2pContainer   string

	mu     sync.Mutex
	status NodeStatus
}

// Config configures the Manager.
type Config struct {
	// InstallDir contains docker-compose.yml and node configuration.
	InstallDir string

	// Runtime drives the container group.
	Runtime *compose.Runtime

	// Local queries the node's own JSON-RPC endpoint.
	Local *rpc.HeightClient

	// Remote queries the public reference endpoint for the target
	// height. Optional in the sense that failures degrade to estimates.
	Remote *rpc.HeightClient

	// Store receives debounced sync checkpoints.
	Store *state.Store

	// Logger for lifecycle events.
	Logger *slog.Logger

	// ChainContainer and P2PContainer override the container names
	// scraped for sync and peer hints.
	ChainContainer string
	P2PContainer   string
}

// NewManager creates a Manager. The initial status is Stopped with the
// checkpointed block and progress restored from the store, so a cold
// restart does not present as zero progress.
func NewManager(cfg Config) *Manager {
	if cfg.Local == nil {
		cfg.Local = rpc.NewHeightClient(rpc.DefaultLocalEndpoint, rpc.LocalTimeout)
	}
	if cfg.Remote == nil {
		cfg.Remote = rpc.NewHeightClient(rpc.DefaultRemoteEndpoint, rpc.RemoteTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChainContainer == "" {
		cfg.ChainContainer = DefaultChainContainer
	}
	if cfg.P2PContainer == "" {
		cfg.P2PContainer = DefaultP2PContainer
	}

	m := &Manager{
		installDir:     cfg.InstallDir,
		runtime:        cfg.Runtime,
		local:          cfg.Local,
		remote:         cfg.Remote,
		store:          cfg.Store,
		logger:         cfg.Logger,
		chainContainer: cfg.ChainContainer,
		p2pContainer:   cfg.P2PContainer,
		status:         NodeStatus{Status: StatusStopped},
	}
	if m.store != nil {
		saved := m.store.State()
		m.status.CurrentBlock = saved.LastBlock
		m.status.SyncProgress = saved.LastSyncProgress
	}
	return m
}

// Status returns a copy of the live status without touching the runtime.
func (m *Manager) Status() NodeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start brings up the container group and restores the saved sync
// checkpoint. The install directory and compose file must exist; the
// container daemon is launched if it is not already running.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := os.Stat(m.installDir); err != nil {
		return fmt.Errorf("node not initialized at %s, run setup first", m.installDir)
	}
	if _, err := os.Stat(filepath.Join(m.installDir, "docker-compose.yml")); err != nil {
		return fmt.Errorf("docker-compose.yml not found in %s, run setup first", m.installDir)
	}
	if err := m.runtime.EnsureDaemon(ctx); err != nil {
		return err
	}

	m.setStatus(StatusStarting, "")

	if err := m.runtime.Up(ctx); err != nil {
		m.setStatus(StatusError, err.Error())
		return fmt.Errorf("failed to start node: %w", err)
	}

	m.resumeSyncIfNeeded()

	next := StatusSyncing
	var resumeBlock uint64
	if m.store != nil {
		saved := m.store.State()
		resumeBlock = saved.LastBlock
		if saved.FirstSyncCompleted {
			next = StatusRunning
		}
	}
	m.setStatus(next, "")
	m.logger.Info("node started", "resumeBlock", resumeBlock)
	return nil
}

// Stop brings down the container group. On success the status becomes
// Stopped with live progress and peer count zeroed; the durable
// checkpoint in the store is untouched. A failure leaves status alone.
func (m *Manager) Stop(ctx context.Context) error {
	if err := m.runtime.Down(ctx); err != nil {
		return fmt.Errorf("failed to stop node: %w", err)
	}

	m.mu.Lock()
	m.status.Status = StatusStopped
	m.status.SyncProgress = 0
	m.status.PeersCount = 0
	m.status.ErrorMessage = ""
	m.mu.Unlock()

	m.logger.Info("node stopped")
	return nil
}

// Restart stops the node, waits briefly for the container group to
// settle, then starts it again.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	select {
	case <-time.After(RestartPause):
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.Start(ctx)
}

// Refresh reconciles the live status against the container group and the
// chain, returning the resulting snapshot. A Stopped node short-circuits.
// A transient local RPC failure leaves the status unchanged; only the
// containers being absent forces Stopped.
func (m *Manager) Refresh(ctx context.Context) NodeStatus {
	m.mu.Lock()
	snap := m.status
	m.mu.Unlock()

	if snap.Status == StatusStopped {
		return snap
	}

	running, err := m.runtime.NodeRunning(ctx)
	if err != nil || !running {
		m.mu.Lock()
		m.status.Status = StatusStopped
		m.status.PeersCount = 0
		snap = m.status
		m.mu.Unlock()
		return snap
	}

	height, err := m.local.HeadHeight(ctx)
	if err != nil {
		m.logger.Debug("local height query failed, keeping last status", "error", err)
		return snap
	}

	target, estimated := m.targetHeight(ctx, height)

	snap.CurrentBlock = height
	snap.TargetBlock = target
	snap.TargetEstimated = estimated
	if height > 0 {
		snap.SyncProgress = syncProgress(height, target)
		if snap.SyncProgress >= RunningThreshold {
			snap.Status = StatusRunning
		} else {
			snap.Status = StatusSyncing
		}
	}
	snap.PeersCount = m.peerCount(ctx)
	snap.ErrorMessage = ""

	if m.store != nil {
		m.store.UpdateSyncProgress(height, snap.SyncProgress)
	}

	m.mu.Lock()
	m.status = snap
	m.mu.Unlock()
	return snap
}

// targetHeight resolves the sync target: the reference API when
// reachable, else a log-scraped estimate, else the fallback constant.
// The bool result reports whether the value is an estimate.
func (m *Manager) targetHeight(ctx context.Context, currentBlock uint64) (uint64, bool) {
	if h, err := m.remote.HeadHeight(ctx); err == nil && h > 0 {
		m.logger.Debug("got reference height", "height", h)
		return h, false
	}

	if logs, err := m.runtime.ContainerLogs(ctx, m.chainContainer, 5); err == nil {
		if target, ok := EstimateTargetFromLogs(currentBlock, logs); ok {
			m.logger.Debug("estimated target height from chain logs", "target", target)
			return target, true
		}
	}
	return FallbackTargetBlock, true
}

func (m *Manager) peerCount(ctx context.Context) uint32 {
	logs, err := m.runtime.ContainerLogs(ctx, m.p2pContainer, 20)
	if err != nil {
		return 0
	}
	return uint32(CountPeers(logs))
}

// resumeSyncIfNeeded restores the checkpointed block and progress into
// the live status so progress reporting continues where the last run
// left off.
func (m *Manager) resumeSyncIfNeeded() {
	if m.store == nil {
		return
	}
	saved := m.store.State()
	if saved.LastBlock == 0 {
		return
	}

	m.logger.Info("resuming sync from saved state",
		"block", saved.LastBlock,
		"progress", fmt.Sprintf("%.2f%%", saved.LastSyncProgress))

	m.mu.Lock()
	m.status.CurrentBlock = saved.LastBlock
	m.status.SyncProgress = saved.LastSyncProgress
	if !saved.FirstSyncCompleted {
		m.status.Status = StatusSyncing
	}
	m.mu.Unlock()
}

func (m *Manager) setStatus(s Status, errMsg string) {
	m.mu.Lock()
	m.status.Status = s
	m.status.ErrorMessage = errMsg
	m.mu.Unlock()
}

// syncProgress computes the clamped percentage; a zero target is defined
// as 0% rather than a division error.
func syncProgress(current, target uint64) float32 {
	if target == 0 {
		return 0
	}
	p := float32(current) / float32(target) * 100
	if p > 100 {
		return 100
	}
	return p
}

// serviceNames are the compose services reported in the detailed status.
var serviceNames = []string{
	"chain", "p2p", "block_store", "mempool", "jsonrpc", "grpc", "rest",
	"account_history", "transaction_store", "contract_meta_store",
	"block_producer", "amqp",
}

// SyncInfo describes sync position in the detailed report.
type SyncInfo struct {
	CurrentBlock  uint64  `json:"current_block"`
	TargetBlock   uint64  `json:"target_block"`
	Percentage    float32 `json:"percentage"`
	TimeRemaining string  `json:"time_remaining"`
}

// NetworkInfo describes connectivity in the detailed report.
type NetworkInfo struct {
	ConnectedPeers   int  `json:"connected_peers"`
	JSONRPCAvailable bool `json:"jsonrpc_available"`
	GRPCAvailable    bool `json:"grpc_available"`
	P2PAvailable     bool `json:"p2p_available"`
}

// ActivityInfo summarizes recent log errors in the detailed report.
type ActivityInfo struct {
	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error"`
}

// DetailedStatus is the full diagnostic report assembled from the
// container set, RPC queries, and log scraping.
type DetailedStatus struct {
	Containers map[string]bool `json:"containers"`
	Sync       SyncInfo        `json:"sync"`
	Network    NetworkInfo     `json:"network"`
	Activity   ActivityInfo    `json:"activity"`
}

// DetailedStatus assembles a diagnostic report. Individual probes degrade
// independently; only the container listing is required.
func (m *Manager) DetailedStatus(ctx context.Context) (*DetailedStatus, error) {
	names, err := m.runtime.RunningContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	runningSet := strings.Join(names, "\n")

	report := &DetailedStatus{Containers: make(map[string]bool, len(serviceNames))}
	for _, svc := range serviceNames {
		report.Containers[svc] = strings.Contains(runningSet, "koinos-"+svc+"-1")
	}

	if height, err := m.local.HeadHeight(ctx); err == nil {
		report.Sync.CurrentBlock = height
	}
	report.Sync.TimeRemaining = "unknown"
	if logs, err := m.runtime.ContainerLogs(ctx, m.chainContainer, 10); err == nil {
		if remaining, ok := ParseTimeRemaining(logs); ok {
			report.Sync.TimeRemaining = remaining
		}
	}
	if target, err := m.remote.HeadHeight(ctx); err == nil {
		report.Sync.TargetBlock = target
	}
	if report.Sync.CurrentBlock > 0 && report.Sync.TargetBlock > 0 {
		report.Sync.Percentage = syncProgress(report.Sync.CurrentBlock, report.Sync.TargetBlock)
	}

	report.Network.ConnectedPeers = int(m.peerCount(ctx))
	report.Network.JSONRPCAvailable = portOpen("127.0.0.1:8080")
	report.Network.GRPCAvailable = portOpen("127.0.0.1:50051")
	report.Network.P2PAvailable = portOpen("127.0.0.1:8888")

	if logs, err := m.runtime.ComposeLogs(ctx, 100); err == nil {
		report.Activity.ErrorCount = strings.Count(strings.ToLower(logs), "error")
		report.Activity.LastError = "no recent errors"
		for _, line := range strings.Split(logs, "\n") {
			if strings.Contains(strings.ToLower(line), "error") {
				report.Activity.LastError = line
			}
		}
	}
	return report, nil
}

func portOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
