package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts external binary execution so scanner tests can
// inject canned output without the real binaries installed.
type CommandRunner interface {
	// LookPath reports whether binary is present on PATH, returning its
	// resolved location.
	LookPath(binary string) (string, error)

	// Run executes binary with args under ctx and returns its stdout.
	// A non-zero exit or a ctx deadline expiry is returned as an error
	// carrying the first stderr line for diagnostics.
	Run(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// ExecRunner is the production CommandRunner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a CommandRunner that executes real subprocesses.
func NewExecRunner() ExecRunner { return ExecRunner{} }

// LookPath implements CommandRunner.
func (ExecRunner) LookPath(binary string) (string, error) {
	return exec.LookPath(binary)
}

// Run implements CommandRunner. Stdout and stderr are captured separately;
// only stdout is returned since both scanners emit their JSON there.
func (ExecRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out: %w", binary, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w%s", binary, err, firstStderrLine(&stderr))
	}
	return stdout.Bytes(), nil
}

// firstStderrLine formats the first non-empty stderr line as an error suffix,
// or returns "" when stderr produced nothing useful.
func firstStderrLine(stderr *bytes.Buffer) string {
	for _, line := range strings.Split(stderr.String(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return fmt.Sprintf(" (stderr: %s)", trimmed)
		}
	}
	return ""
}
