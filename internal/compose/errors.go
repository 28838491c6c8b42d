package compose

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDockerNotFound indicates no working docker binary could be located.
var ErrDockerNotFound = errors.New("docker binary not found; install Docker and ensure it is on PATH")

// ErrComposeNotFound indicates neither `docker compose` nor a standalone
// docker-compose binary is available.
var ErrComposeNotFound = errors.New("neither 'docker compose' nor 'docker-compose' is available")

// ProcessError reports an external runtime command that failed, with the
// captured standard error text.
type ProcessError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ProcessError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr != "" {
		return fmt.Sprintf("%s failed: %s", e.Command, stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }
