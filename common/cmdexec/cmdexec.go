// Package cmdexec runs external commands with bounded timeouts and returns
// structured results.
//
// Every host tool hakonix touches (zfs, nixos-container, extra-container,
// machinectl, nix) is invoked through the Runner interface so higher layers
// can be tested against fakes and never parse raw subprocess state.
package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds commands whose callers do not pick their own limit.
// Most zfs and machinectl calls finish in well under a second; builds
// override this with a much larger value.
const DefaultTimeout = 60 * time.Second

// ErrTimeout is wrapped by errors returned when a command exceeds its bound.
// It is the only error class that crosses the lifecycle boundary; callers
// test for it with errors.Is.
var ErrTimeout = errors.New("command timed out")

// Result is the structured outcome of a finished command. Output is
// whitespace-trimmed so callers can compare and parse it directly.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the command exited with code 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Detail returns stderr, falling back to stdout when stderr is empty.
// Lifecycle results surface this as the user-facing error text.
func (r Result) Detail() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner abstracts command execution. The process-backed implementation is
// Exec; tests substitute fakes keyed on the command name.
type Runner interface {
	// Run executes name with args, waiting at most timeout. A non-zero exit
	// is reported through the Result, not the error. The error is non-nil
	// only when the command could not be run at all or exceeded its bound;
	// timeout errors wrap ErrTimeout and the process is already killed.
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
}

// Exec is the production Runner backed by os/exec.
type Exec struct{}

// NewExec returns a process-backed Runner.
func NewExec() *Exec {
	return &Exec{}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Give in-container commands a moment to flush after SIGKILL of the
	// leader, then sever the pipes so Wait cannot hang on them.
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, commandLine(name, args))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{
				Stdout:   strings.TrimSpace(stdout.String()),
				Stderr:   strings.TrimSpace(stderr.String()),
				ExitCode: exitErr.ExitCode(),
			}, nil
		}
		return Result{}, fmt.Errorf("run %s: %w", commandLine(name, args), err)
	}

	return Result{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		ExitCode: 0,
	}, nil
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
