package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinosops/nodeman/internal/compose"
	"github.com/koinosops/nodeman/internal/exec"
)

func cloneCmd(dir string) string {
	return fmt.Sprintf("git clone --depth 1 %s %s", DefaultRepoURL, dir)
}

func TestRunClonesWhenComposeFileMissing(t *testing.T) {
	dir := t.TempDir()
	fake := exec.NewFakeRunner()
	fake.Script(cloneCmd(dir), exec.FakeResponse{})

	inst := New(Config{InstallDir: dir, Runner: fake})
	require.NoError(t, inst.Run(context.Background()))

	assert.Contains(t, fake.Calls, cloneCmd(dir))
}

func TestRunSkipsCloneWhenInstalled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	fake := exec.NewFakeRunner()
	inst := New(Config{InstallDir: dir, Runner: fake})
	require.NoError(t, inst.Run(context.Background()))

	assert.NotContains(t, fake.Calls, cloneCmd(dir))
}

func TestRunSurfacesCloneFailure(t *testing.T) {
	dir := t.TempDir()
	fake := exec.NewFakeRunner()
	fake.Script(cloneCmd(dir), exec.FakeResponse{
		Stderr:   "fatal: unable to access repository",
		ExitCode: 128,
	})

	inst := New(Config{InstallDir: dir, Runner: fake})
	err := inst.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to access repository")
}

func TestSeedConfigCopiesExample(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))
	example := filepath.Join(dir, "config-example")
	require.NoError(t, os.MkdirAll(example, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(example, "chain.yml"), []byte("chain: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(example, "p2p.yml"), []byte("p2p: {}\n"), 0o644))

	inst := New(Config{InstallDir: dir, Runner: exec.NewFakeRunner()})
	require.NoError(t, inst.Run(context.Background()))

	got, err := os.ReadFile(filepath.Join(dir, "config", "chain.yml"))
	require.NoError(t, err)
	assert.Equal(t, "chain: {}\n", string(got))
	_, err = os.Stat(filepath.Join(dir, "config", "p2p.yml"))
	assert.NoError(t, err)
}

func TestSeedConfigLeavesExistingConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "chain.yml"), []byte("tuned\n"), 0o644))
	example := filepath.Join(dir, "config-example")
	require.NoError(t, os.MkdirAll(example, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(example, "chain.yml"), []byte("default\n"), 0o644))

	inst := New(Config{InstallDir: dir, Runner: exec.NewFakeRunner()})
	require.NoError(t, inst.Run(context.Background()))

	got, err := os.ReadFile(filepath.Join(dir, "config", "chain.yml"))
	require.NoError(t, err)
	assert.Equal(t, "tuned\n", string(got), "existing config must not be overwritten")
}

func TestConfigureEnvSeedsFromExample(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "env.example"),
		[]byte("JSONRPC_INTERFACE=127.0.0.1\n#COMPOSE_PROFILES=all\n"), 0o644))

	inst := New(Config{InstallDir: dir, Runner: exec.NewFakeRunner()})
	require.NoError(t, inst.Run(context.Background()))

	vars, err := godotenv.Read(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", vars["JSONRPC_INTERFACE"])
	assert.Equal(t, "all", vars["COMPOSE_PROFILES"], "commented profile line must be activated")
	assert.Equal(t, "warn", vars["KOINOS_LOG_LEVEL"])
	assert.Equal(t, "false", vars["KOINOS_LOG_JSON"])
	assert.Equal(t, "unless-stopped", vars["COMPOSE_RESTART_POLICY"])
}

func TestConfigureEnvCreatesFileWithoutExample(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	inst := New(Config{InstallDir: dir, Runner: exec.NewFakeRunner()})
	require.NoError(t, inst.Run(context.Background()))

	vars, err := godotenv.Read(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "all", vars["COMPOSE_PROFILES"])
}

func TestConfigureEnvIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	inst := New(Config{InstallDir: dir, Runner: exec.NewFakeRunner()})
	require.NoError(t, inst.Run(context.Background()))
	first, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)

	require.NoError(t, inst.Run(context.Background()))
	second, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second), "re-running setup must not grow .env")
}

func TestRunPullFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	fake := exec.NewFakeRunner()
	fake.Script("docker --version", exec.FakeResponse{Stdout: "ok"})
	fake.Script("docker compose version", exec.FakeResponse{Stdout: "ok"})
	fake.Script("docker compose pull", exec.FakeResponse{Stderr: "no network", ExitCode: 1})

	inst := New(Config{
		InstallDir: dir,
		Runner:     fake,
		Runtime:    compose.New(compose.Config{WorkDir: dir, Runner: fake}),
	})
	assert.NoError(t, inst.Run(context.Background()))
}
