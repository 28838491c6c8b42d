package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeResponse is a scripted response for one command invocation.
type FakeResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// FakeRunner is a scripted Runner for tests. Responses are keyed by the
// command line ("name arg1 arg2 ..."); unscripted commands fail.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]FakeResponse
	Calls     []string
}

// NewFakeRunner creates an empty scripted runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]FakeResponse)}
}

// Script registers a response for the given command line.
func (f *FakeRunner) Script(cmdline string, resp FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = resp
}

func (f *FakeRunner) Run(_ context.Context, _ string, name string, args ...string) (Result, error) {
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))

	f.mu.Lock()
	f.Calls = append(f.Calls, cmdline)
	resp, ok := f.responses[cmdline]
	f.mu.Unlock()

	if !ok {
		return Result{ExitCode: 127}, fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}

	res := Result{
		Stdout:   []byte(resp.Stdout),
		Stderr:   []byte(resp.Stderr),
		ExitCode: resp.ExitCode,
	}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, fmt.Errorf("exit status %d", resp.ExitCode)
	}
	return res, nil
}
