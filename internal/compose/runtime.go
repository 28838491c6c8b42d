// Package compose drives the node's container runtime through the docker
// CLI. It locates a working binary by probing a short candidate list and
// supports both the unified `docker compose` subcommand and the legacy
// standalone docker-compose binary, first success wins.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/koinosops/nodeman/internal/exec"
)

// Candidate binary locations. PATH lookup first, then the usual install
// prefixes (Homebrew paths matter on macOS where GUI apps inherit a
// minimal PATH).
var (
	DockerCandidates = []string{
		"docker",
		"/opt/homebrew/bin/docker",
		"/usr/local/bin/docker",
		"/usr/bin/docker",
	}
	ComposeCandidates = []string{
		"docker-compose",
		"/opt/homebrew/bin/docker-compose",
		"/usr/local/bin/docker-compose",
		"/usr/bin/docker-compose",
	}
)

// Daemon readiness polling. Docker Desktop can take tens of seconds to
// come up after launch.
const (
	ReadinessAttempts = 30
	ReadinessBackoff  = 2 * time.Second
)

// DefaultProfile is the compose profile that brings up all node services.
const DefaultProfile = "all"

// Config configures the Runtime.
type Config struct {
	// WorkDir is the directory containing docker-compose.yml.
	WorkDir string

	// Profile is the compose profile passed to up/down.
	Profile string

	// Runner executes external commands.
	Runner exec.Runner

	// Logger for runtime operations.
	Logger *slog.Logger
}

// Runtime is the container runtime adapter.
type Runtime struct {
	workDir string
	profile string
	runner  exec.Runner
	logger  *slog.Logger
}

// New creates a Runtime.
func New(cfg Config) *Runtime {
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Runner == nil {
		cfg.Runner = exec.NewOSRunner()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runtime{
		workDir: cfg.WorkDir,
		profile: cfg.Profile,
		runner:  cfg.Runner,
		logger:  cfg.Logger,
	}
}

// FindDocker resolves a working docker binary path by probing candidates
// with a version check.
func (r *Runtime) FindDocker(ctx context.Context) (string, error) {
	for _, c := range DockerCandidates {
		if _, err := r.runner.Run(ctx, "", c, "--version"); err == nil {
			return c, nil
		}
	}
	return "", ErrDockerNotFound
}

// DaemonReady reports whether the docker daemon answers `docker info`.
func (r *Runtime) DaemonReady(ctx context.Context) bool {
	docker, err := r.FindDocker(ctx)
	if err != nil {
		return false
	}
	res, err := r.runner.Run(ctx, "", docker, "info")
	if err != nil {
		if strings.Contains(string(res.Stderr), "Docker Desktop is starting") {
			r.logger.Info("docker desktop is starting, waiting")
		}
		return false
	}
	return true
}

// EnsureDaemon verifies the daemon is reachable, attempting to launch the
// runtime and polling readiness with fixed backoff when it is not.
func (r *Runtime) EnsureDaemon(ctx context.Context) error {
	if r.DaemonReady(ctx) {
		return nil
	}

	if err := r.launchDaemon(ctx); err != nil {
		return err
	}

	r.logger.Info("waiting for docker daemon to start")
	for i := 0; i < ReadinessAttempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ReadinessBackoff):
		}
		if r.DaemonReady(ctx) {
			r.logger.Info("docker daemon started")
			return nil
		}
		r.logger.Debug("docker daemon still starting", "attempt", i+1, "max", ReadinessAttempts)
	}
	return fmt.Errorf("docker is taking too long to start; ensure Docker is fully started and try again")
}

// launchDaemon makes a best-effort attempt to start the container runtime.
func (r *Runtime) launchDaemon(ctx context.Context) error {
	switch runtime.GOOS {
	case "darwin":
		if _, err := r.runner.Run(ctx, "", "open", "/Applications/Docker.app"); err != nil {
			return fmt.Errorf("docker is not running; start Docker Desktop and try again")
		}
		return nil
	case "linux":
		if _, err := r.runner.Run(ctx, "", "systemctl", "start", "docker"); err != nil {
			return fmt.Errorf("docker daemon is not running; start it with 'systemctl start docker' and try again")
		}
		return nil
	default:
		return fmt.Errorf("docker daemon is not running; start Docker and try again")
	}
}

// invocation resolves the compose program and its base arguments.
// Prefers the unified subcommand, falls back to the legacy binary.
func (r *Runtime) invocation(ctx context.Context) (string, []string, error) {
	if docker, err := r.FindDocker(ctx); err == nil {
		if _, err := r.runner.Run(ctx, "", docker, "compose", "version"); err == nil {
			return docker, []string{"compose"}, nil
		}
	}
	for _, c := range ComposeCandidates {
		if _, err := r.runner.Run(ctx, "", c, "--version"); err == nil {
			return c, nil, nil
		}
	}
	return "", nil, ErrComposeNotFound
}

// ComposeAvailable reports whether a compose invocation can be resolved.
func (r *Runtime) ComposeAvailable(ctx context.Context) error {
	_, _, err := r.invocation(ctx)
	return err
}

// compose runs a compose subcommand in the work dir.
func (r *Runtime) compose(ctx context.Context, args ...string) (exec.Result, error) {
	prog, base, err := r.invocation(ctx)
	if err != nil {
		return exec.Result{}, err
	}
	full := append(append([]string{}, base...), args...)
	res, err := r.runner.Run(ctx, r.workDir, prog, full...)
	if err != nil {
		return res, &ProcessError{
			Command: prog + " " + strings.Join(full, " "),
			Stderr:  string(res.Stderr),
			Err:     err,
		}
	}
	return res, nil
}

// Up brings up all services under the configured profile.
func (r *Runtime) Up(ctx context.Context) error {
	_, err := r.compose(ctx, "--profile", r.profile, "up", "-d")
	return err
}

// Down brings down all services under the configured profile.
func (r *Runtime) Down(ctx context.Context) error {
	_, err := r.compose(ctx, "--profile", r.profile, "down")
	return err
}

// Pull pre-fetches service images.
func (r *Runtime) Pull(ctx context.Context) error {
	_, err := r.compose(ctx, "pull")
	return err
}

// PS returns the compose service listing in machine-readable form.
func (r *Runtime) PS(ctx context.Context) (string, error) {
	res, err := r.compose(ctx, "ps", "--format", "json")
	if err != nil {
		return "", err
	}
	return string(res.Stdout), nil
}

// NodeRunning reports whether the node's containers show up as running in
// the compose service listing.
func (r *Runtime) NodeRunning(ctx context.Context) (bool, error) {
	out, err := r.PS(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "koinos") && strings.Contains(out, "running"), nil
}

// ContainerLogs returns the last tail lines of a container's output.
func (r *Runtime) ContainerLogs(ctx context.Context, container string, tail int) (string, error) {
	docker, err := r.FindDocker(ctx)
	if err != nil {
		return "", err
	}
	res, err := r.runner.Run(ctx, "", docker, "logs", "--tail", fmt.Sprintf("%d", tail), container)
	if err != nil {
		return "", &ProcessError{
			Command: fmt.Sprintf("%s logs %s", docker, container),
			Stderr:  string(res.Stderr),
			Err:     err,
		}
	}
	// docker logs may write to either stream
	return string(res.Stdout) + string(res.Stderr), nil
}

// ComposeLogs returns the last tail lines of the combined service logs.
func (r *Runtime) ComposeLogs(ctx context.Context, tail int) (string, error) {
	res, err := r.compose(ctx, "logs", "--tail", fmt.Sprintf("%d", tail))
	if err != nil {
		return "", err
	}
	return string(res.Stdout), nil
}

// RunningContainers returns the names of all running containers.
func (r *Runtime) RunningContainers(ctx context.Context) ([]string, error) {
	docker, err := r.FindDocker(ctx)
	if err != nil {
		return nil, err
	}
	res, err := r.runner.Run(ctx, "", docker, "ps", "--format", "{{.Names}}")
	if err != nil {
		return nil, &ProcessError{
			Command: docker + " ps",
			Stderr:  string(res.Stderr),
			Err:     err,
		}
	}
	var names []string
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}
