package prereq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinosops/nodeman/internal/compose"
	"github.com/koinosops/nodeman/internal/exec"
)

func newTestChecker(t *testing.T, fake *exec.FakeRunner) *Checker {
	t.Helper()
	c := NewChecker(Config{
		Runtime: compose.New(compose.Config{Runner: fake}),
		Runner:  fake,
		DataDir: t.TempDir(),
	})
	c.totalMemory = func() (uint64, error) { return 16 << 30, nil }
	c.freeDisk = func(string) (uint64, error) { return 200 << 30, nil }
	return c
}

func scriptHealthyHost(fake *exec.FakeRunner) {
	fake.Script("git --version", exec.FakeResponse{Stdout: "git version 2.45.2"})
	fake.Script("docker --version", exec.FakeResponse{Stdout: "Docker version 27.0.1"})
	fake.Script("docker info", exec.FakeResponse{Stdout: "Server Version: 27.0.1"})
	fake.Script("docker version --format {{.Server.Version}}", exec.FakeResponse{Stdout: "27.0.1\n"})
	fake.Script("docker compose version", exec.FakeResponse{Stdout: "Docker Compose version v2.27.0"})
}

func findResult(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %q", name)
	return Result{}
}

func TestCheckAllMet(t *testing.T) {
	fake := exec.NewFakeRunner()
	scriptHealthyHost(fake)
	c := newTestChecker(t, fake)

	results, err := c.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.Found, "%s should be found", r.Name)
	}

	docker := findResult(t, results, "docker")
	assert.Equal(t, "27.0.1", docker.Version)
	git := findResult(t, results, "git")
	assert.Equal(t, "2.45.2", git.Version)
}

func TestCheckDockerMissing(t *testing.T) {
	fake := exec.NewFakeRunner()
	fake.Script("git --version", exec.FakeResponse{Stdout: "git version 2.45.2"})
	// no docker candidates scripted
	c := newTestChecker(t, fake)

	results, err := c.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker")

	docker := findResult(t, results, "docker")
	assert.False(t, docker.Found)
	assert.Contains(t, docker.Suggestion, "docs.docker.com")
}

func TestCheckDaemonDown(t *testing.T) {
	fake := exec.NewFakeRunner()
	fake.Script("git --version", exec.FakeResponse{Stdout: "git version 2.45.2"})
	fake.Script("docker --version", exec.FakeResponse{Stdout: "Docker version 27.0.1"})
	fake.Script("docker info", exec.FakeResponse{
		Stderr:   "Cannot connect to the Docker daemon",
		ExitCode: 1,
	})
	fake.Script("docker compose version", exec.FakeResponse{Stdout: "ok"})
	c := newTestChecker(t, fake)

	results, err := c.Check(context.Background())
	require.Error(t, err)

	docker := findResult(t, results, "docker")
	assert.False(t, docker.Found)
	assert.Contains(t, docker.Message, "not running")
}

func TestCheckLowMemory(t *testing.T) {
	fake := exec.NewFakeRunner()
	scriptHealthyHost(fake)
	c := newTestChecker(t, fake)
	c.totalMemory = func() (uint64, error) { return 2 << 30, nil }

	results, err := c.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")

	memory := findResult(t, results, "memory")
	assert.False(t, memory.Found)
	assert.Contains(t, memory.Message, "4GB required")
}

func TestCheckLowDisk(t *testing.T) {
	fake := exec.NewFakeRunner()
	scriptHealthyHost(fake)
	c := newTestChecker(t, fake)
	c.freeDisk = func(string) (uint64, error) { return 10 << 30, nil }

	results, err := c.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk")

	diskResult := findResult(t, results, "disk")
	assert.False(t, diskResult.Found)
	assert.Contains(t, diskResult.Message, "60GB required")
}
