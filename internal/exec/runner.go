// Package exec abstracts external command execution for testability.
package exec

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// DefaultTimeout is the recommended timeout for short probe commands.
const DefaultTimeout = 5 * time.Second

// Result holds the outcome of an executed command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner abstracts command execution so tests can substitute a scripted
// fake instead of invoking real system binaries.
type Runner interface {
	// Run executes a command in the given working directory (empty = inherit)
	// and returns captured stdout/stderr. A non-zero exit status is returned
	// as an error alongside the captured output.
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// OSRunner executes real system commands via os/exec.
type OSRunner struct{}

// NewOSRunner creates the production command runner.
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

func (r *OSRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res, err
}
