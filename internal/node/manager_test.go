package node

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinosops/nodeman/internal/compose"
	"github.com/koinosops/nodeman/internal/exec"
	"github.com/koinosops/nodeman/internal/rpc"
	"github.com/koinosops/nodeman/internal/state"
)

func heightServer(t *testing.T, height uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"head_topology":{"height":"%d"}}}`, height)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// scriptHealthyCompose scripts the probe sequence for a working unified
// docker compose plus a running koinos container set.
func scriptHealthyCompose(fake *exec.FakeRunner) {
	fake.Script("docker --version", exec.FakeResponse{Stdout: "Docker version 27.0.1"})
	fake.Script("docker compose version", exec.FakeResponse{Stdout: "Docker Compose version v2.27.0"})
	fake.Script("docker info", exec.FakeResponse{Stdout: "Server Version: 27.0.1"})
	fake.Script("docker compose ps --format json",
		exec.FakeResponse{Stdout: `{"Name":"koinos-chain-1","State":"running"}`})
}

type managerEnv struct {
	manager *Manager
	store   *state.Store
	fake    *exec.FakeRunner
	install string
}

func newManagerEnv(t *testing.T, localURL, remoteURL string) *managerEnv {
	t.Helper()
	install := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(install, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	fake := exec.NewFakeRunner()
	store := state.NewStore(filepath.Join(t.TempDir(), "node_state.json"), nil)

	m := NewManager(Config{
		InstallDir: install,
		Runtime:    compose.New(compose.Config{WorkDir: install, Runner: fake}),
		Local:      rpc.NewHeightClient(localURL, time.Second),
		Remote:     rpc.NewHeightClient(remoteURL, time.Second),
		Store:      store,
	})
	return &managerEnv{manager: m, store: store, fake: fake, install: install}
}

func TestNewManagerRestoresCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node_state.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"last_block":42500000,"last_sync_progress":98.5}`), 0o644))

	store := state.NewStore(path, nil)
	m := NewManager(Config{Store: store})

	snap := m.Status()
	assert.Equal(t, StatusStopped, snap.Status)
	assert.Equal(t, uint64(42500000), snap.CurrentBlock)
	assert.Equal(t, float32(98.5), snap.SyncProgress)
}

func TestStartTransitionsToSyncing(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker compose --profile all up -d", exec.FakeResponse{})

	env.store.UpdateSyncProgress(42_000_000, 97.5)

	require.NoError(t, env.manager.Start(context.Background()))

	snap := env.manager.Status()
	assert.Equal(t, StatusSyncing, snap.Status)
	assert.Equal(t, uint64(42_000_000), snap.CurrentBlock)
	assert.Equal(t, float32(97.5), snap.SyncProgress)
}

func TestStartAfterCompletedSyncGoesRunning(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker compose --profile all up -d", exec.FakeResponse{})

	env.store.UpdateSyncProgress(43_000_000, 100)

	require.NoError(t, env.manager.Start(context.Background()))
	assert.Equal(t, StatusRunning, env.manager.Status().Status)
}

func TestStartRequiresSetup(t *testing.T) {
	m := NewManager(Config{InstallDir: filepath.Join(t.TempDir(), "missing")})
	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run setup first")
}

func TestStartRequiresComposeFile(t *testing.T) {
	m := NewManager(Config{InstallDir: t.TempDir()})
	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker-compose.yml")
}

func TestStartSurfacesComposeFailure(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker compose --profile all up -d",
		exec.FakeResponse{Stderr: "network koinos declared as external", ExitCode: 1})

	err := env.manager.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start node")

	snap := env.manager.Status()
	assert.Equal(t, StatusError, snap.Status)
	assert.NotEmpty(t, snap.ErrorMessage)
}

func TestStopZeroesLiveStatus(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker compose --profile all down", exec.FakeResponse{})

	env.store.UpdateSyncProgress(42_000_000, 97.5)
	env.manager.status = NodeStatus{
		Status: StatusSyncing, SyncProgress: 97.5, CurrentBlock: 42_000_000, PeersCount: 8,
	}

	require.NoError(t, env.manager.Stop(context.Background()))

	snap := env.manager.Status()
	assert.Equal(t, StatusStopped, snap.Status)
	assert.Zero(t, snap.SyncProgress)
	assert.Zero(t, snap.PeersCount)

	// durable checkpoint survives a stop
	assert.Equal(t, uint64(42_000_000), env.store.State().LastBlock)
}

func TestStopFailureLeavesStatus(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker compose --profile all down",
		exec.FakeResponse{Stderr: "permission denied", ExitCode: 1})

	env.manager.status = NodeStatus{Status: StatusSyncing, SyncProgress: 50}

	require.Error(t, env.manager.Stop(context.Background()))

	snap := env.manager.Status()
	assert.Equal(t, StatusSyncing, snap.Status)
	assert.Equal(t, float32(50), snap.SyncProgress)
}

func TestRefreshStoppedShortCircuits(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")

	snap := env.manager.Refresh(context.Background())

	assert.Equal(t, StatusStopped, snap.Status)
	assert.Empty(t, env.fake.Calls, "no runtime queries for a stopped node")
}

func TestRefreshForcesStoppedWhenContainersAbsent(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	env.fake.Script("docker --version", exec.FakeResponse{Stdout: "ok"})
	env.fake.Script("docker compose version", exec.FakeResponse{Stdout: "ok"})
	env.fake.Script("docker compose ps --format json", exec.FakeResponse{Stdout: ""})

	env.manager.status = NodeStatus{Status: StatusSyncing, SyncProgress: 50, PeersCount: 4}

	snap := env.manager.Refresh(context.Background())
	assert.Equal(t, StatusStopped, snap.Status)
	assert.Zero(t, snap.PeersCount)
}

func TestRefreshComputesProgressFromReferenceHeight(t *testing.T) {
	local := heightServer(t, 30_000_000)
	remote := heightServer(t, 40_000_000)
	env := newManagerEnv(t, local.URL, remote.URL)
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker logs --tail 20 koinos-p2p-1", exec.FakeResponse{
		Stdout: "Connected to peer A\nConnected to peer B\n",
	})

	env.manager.status = NodeStatus{Status: StatusSyncing}

	snap := env.manager.Refresh(context.Background())
	assert.Equal(t, StatusSyncing, snap.Status)
	assert.Equal(t, uint64(30_000_000), snap.CurrentBlock)
	assert.Equal(t, uint64(40_000_000), snap.TargetBlock)
	assert.False(t, snap.TargetEstimated)
	assert.InDelta(t, 75.0, float64(snap.SyncProgress), 0.01)
	assert.Equal(t, uint32(2), snap.PeersCount)

	// the checkpoint fed the store
	assert.Equal(t, uint64(30_000_000), env.store.State().LastBlock)
}

func TestRefreshReachesRunningNearTarget(t *testing.T) {
	local := heightServer(t, 39_970_000)
	remote := heightServer(t, 40_000_000)
	env := newManagerEnv(t, local.URL, remote.URL)
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker logs --tail 20 koinos-p2p-1", exec.FakeResponse{})

	env.manager.status = NodeStatus{Status: StatusSyncing}

	snap := env.manager.Refresh(context.Background())
	assert.Equal(t, StatusRunning, snap.Status)
	assert.GreaterOrEqual(t, snap.SyncProgress, float32(RunningThreshold))
}

func TestRefreshKeepsStatusOnRPCFailure(t *testing.T) {
	local := failingServer(t)
	env := newManagerEnv(t, local.URL, local.URL)
	scriptHealthyCompose(env.fake)

	before := NodeStatus{Status: StatusSyncing, SyncProgress: 42.5, CurrentBlock: 17_000_000}
	env.manager.status = before

	snap := env.manager.Refresh(context.Background())
	assert.Equal(t, before, snap)
	assert.Equal(t, before, env.manager.Status())
}

func TestRefreshEstimatesTargetFromChainLogs(t *testing.T) {
	local := heightServer(t, 42_000_000)
	remote := failingServer(t)
	env := newManagerEnv(t, local.URL, remote.URL)
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker logs --tail 5 koinos-chain-1", exec.FakeResponse{
		Stdout: "2026-08-29 Sync progress 99.2% (10d, 09h, 25m, 09s) block time remaining\n",
	})
	env.fake.Script("docker logs --tail 20 koinos-p2p-1", exec.FakeResponse{})

	env.manager.status = NodeStatus{Status: StatusSyncing}

	snap := env.manager.Refresh(context.Background())
	assert.Equal(t, uint64(42_010_000), snap.TargetBlock)
	assert.True(t, snap.TargetEstimated)
}

func TestRefreshFallsBackToConstantTarget(t *testing.T) {
	local := heightServer(t, 20_000_000)
	remote := failingServer(t)
	env := newManagerEnv(t, local.URL, remote.URL)
	scriptHealthyCompose(env.fake)
	// chain logs unscripted: the log fallback fails too
	env.fake.Script("docker logs --tail 20 koinos-p2p-1", exec.FakeResponse{})

	env.manager.status = NodeStatus{Status: StatusSyncing}

	snap := env.manager.Refresh(context.Background())
	assert.Equal(t, uint64(FallbackTargetBlock), snap.TargetBlock)
	assert.True(t, snap.TargetEstimated)
}

func TestSyncProgressClamping(t *testing.T) {
	assert.Equal(t, float32(0), syncProgress(5, 0), "zero target is 0%, not a division error")
	assert.Equal(t, float32(100), syncProgress(50, 25))
	assert.InDelta(t, 50.0, float64(syncProgress(1, 2)), 0.001)
}

func TestDetailedStatus(t *testing.T) {
	local := heightServer(t, 30_000_000)
	remote := heightServer(t, 40_000_000)
	env := newManagerEnv(t, local.URL, remote.URL)
	scriptHealthyCompose(env.fake)
	env.fake.Script("docker ps --format {{.Names}}", exec.FakeResponse{
		Stdout: "koinos-chain-1\nkoinos-p2p-1\nkoinos-block_store-1\n",
	})
	env.fake.Script("docker logs --tail 10 koinos-chain-1", exec.FakeResponse{
		Stdout: "Sync progress 75.0% (122d, 09h, 25m, 09s) block time remaining\n",
	})
	env.fake.Script("docker logs --tail 20 koinos-p2p-1", exec.FakeResponse{
		Stdout: "Connected to peer A\nConnected to peer B\nConnected to peer C\n",
	})
	env.fake.Script("docker compose logs --tail 100", exec.FakeResponse{
		Stdout: "chain-1  | starting\nmempool-1 | Error: amqp connection refused\n",
	})

	report, err := env.manager.DetailedStatus(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Containers["chain"])
	assert.True(t, report.Containers["p2p"])
	assert.True(t, report.Containers["block_store"])
	assert.False(t, report.Containers["mempool"])
	assert.False(t, report.Containers["amqp"])

	assert.Equal(t, uint64(30_000_000), report.Sync.CurrentBlock)
	assert.Equal(t, uint64(40_000_000), report.Sync.TargetBlock)
	assert.InDelta(t, 75.0, float64(report.Sync.Percentage), 0.01)
	assert.Equal(t, "122d, 09h, 25m, 09s", report.Sync.TimeRemaining)

	assert.Equal(t, 3, report.Network.ConnectedPeers)
	assert.Equal(t, 1, report.Activity.ErrorCount)
	assert.Contains(t, report.Activity.LastError, "amqp connection refused")
}

func TestDetailedStatusRequiresContainerListing(t *testing.T) {
	env := newManagerEnv(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	// docker binary unscripted: listing fails
	_, err := env.manager.DetailedStatus(context.Background())
	require.Error(t, err)
}
