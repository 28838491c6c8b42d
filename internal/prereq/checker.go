// Package prereq verifies that the host can run a blockchain node:
// required binaries, a live container daemon, and enough memory and disk
// for the chain data.
package prereq

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"

	"github.com/koinosops/nodeman/internal/compose"
	"github.com/koinosops/nodeman/internal/exec"
)

const (
	// MinMemoryBytes is the minimum host RAM for a syncing node.
	MinMemoryBytes = 4 << 30

	// MinDiskBytes is the minimum free space for the chain data set.
	MinDiskBytes = 60 << 30
)

// Result contains the outcome of one prerequisite check.
type Result struct {
	Name       string `json:"name"`
	Required   bool   `json:"required"`
	Found      bool   `json:"found"`
	Version    string `json:"version,omitempty"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// memoryFunc and diskFunc exist so tests can script host resources.
type (
	memoryFunc func() (uint64, error)
	diskFunc   func(path string) (uint64, error)
)

// Checker performs prerequisite checks.
type Checker struct {
	runtime *compose.Runtime
	runner  exec.Runner
	dataDir string

	totalMemory memoryFunc
	freeDisk    diskFunc

	results []Result
}

// Config configures the Checker.
type Config struct {
	// Runtime probes docker and compose.
	Runtime *compose.Runtime

	// Runner probes auxiliary binaries.
	Runner exec.Runner

	// DataDir is the volume checked for free space.
	DataDir string
}

// NewChecker creates a Checker backed by real host probes.
func NewChecker(cfg Config) *Checker {
	if cfg.Runner == nil {
		cfg.Runner = exec.NewOSRunner()
	}
	return &Checker{
		runtime: cfg.Runtime,
		runner:  cfg.Runner,
		dataDir: cfg.DataDir,
		totalMemory: func() (uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.Total, nil
		},
		freeDisk: func(path string) (uint64, error) {
			du, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return du.Free, nil
		},
	}
}

// Check runs all prerequisite checks. The results always cover every
// check; the error summarizes the first unmet required prerequisite.
func (c *Checker) Check(ctx context.Context) ([]Result, error) {
	c.results = c.results[:0]

	c.checkGit(ctx)
	c.checkDocker(ctx)
	c.checkCompose(ctx)
	c.checkMemory()
	c.checkDisk()

	for _, r := range c.results {
		if r.Required && !r.Found {
			return c.results, fmt.Errorf("prerequisite not met: %s: %s", r.Name, r.Message)
		}
	}
	return c.results, nil
}

// Results returns the results of the last Check call.
func (c *Checker) Results() []Result {
	return c.results
}

func (c *Checker) checkGit(ctx context.Context) {
	r := Result{Name: "git", Required: true}
	res, err := c.runner.Run(ctx, "", "git", "--version")
	if err != nil {
		r.Message = "git is not installed"
		r.Suggestion = "Install git: https://git-scm.com/downloads"
	} else {
		r.Found = true
		r.Version = strings.TrimSpace(strings.TrimPrefix(string(res.Stdout), "git version"))
	}
	c.results = append(c.results, r)
}

func (c *Checker) checkDocker(ctx context.Context) {
	r := Result{Name: "docker", Required: true}

	docker, err := c.runtime.FindDocker(ctx)
	if err != nil {
		r.Message = "Docker is not installed"
		r.Suggestion = "Install Docker: https://docs.docker.com/get-docker/"
		c.results = append(c.results, r)
		return
	}

	if !c.runtime.DaemonReady(ctx) {
		r.Message = "Docker daemon is not running"
		if runtime.GOOS == "linux" {
			r.Suggestion = "Start Docker with: sudo systemctl start docker"
		} else {
			r.Suggestion = "Start Docker Desktop"
		}
		c.results = append(c.results, r)
		return
	}

	r.Found = true
	if res, err := c.runner.Run(ctx, "", docker, "version", "--format", "{{.Server.Version}}"); err == nil {
		r.Version = strings.TrimSpace(string(res.Stdout))
	}
	c.results = append(c.results, r)
}

func (c *Checker) checkCompose(ctx context.Context) {
	r := Result{Name: "docker compose", Required: true}
	if err := c.runtime.ComposeAvailable(ctx); err != nil {
		r.Message = "docker compose is not available"
		r.Suggestion = "Install the Docker Compose plugin: https://docs.docker.com/compose/install/"
	} else {
		r.Found = true
	}
	c.results = append(c.results, r)
}

func (c *Checker) checkMemory() {
	r := Result{Name: "memory", Required: true}
	total, err := c.totalMemory()
	if err != nil {
		r.Message = fmt.Sprintf("could not determine host memory: %v", err)
		c.results = append(c.results, r)
		return
	}
	r.Version = fmt.Sprintf("%.1fGB", float64(total)/(1<<30))
	if total < MinMemoryBytes {
		r.Message = fmt.Sprintf("%.1fGB RAM found, %dGB required", float64(total)/(1<<30), MinMemoryBytes>>30)
		r.Suggestion = "A syncing node needs at least 4GB of RAM"
	} else {
		r.Found = true
	}
	c.results = append(c.results, r)
}

func (c *Checker) checkDisk() {
	r := Result{Name: "disk", Required: true}
	free, err := c.freeDisk(c.dataDir)
	if err != nil {
		r.Message = fmt.Sprintf("could not determine free space for %s: %v", c.dataDir, err)
		c.results = append(c.results, r)
		return
	}
	r.Version = fmt.Sprintf("%.0fGB free", float64(free)/(1<<30))
	if free < MinDiskBytes {
		r.Message = fmt.Sprintf("%.0fGB free on %s, %dGB required", float64(free)/(1<<30), c.dataDir, MinDiskBytes>>30)
		r.Suggestion = "Free up disk space; the chain data set needs about 60GB"
	} else {
		r.Found = true
	}
	c.results = append(c.results, r)
}
