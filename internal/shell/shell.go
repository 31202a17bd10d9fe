// Package shell runs model-proposed commands inside the project root with a
// hard timeout. A command that cannot run at all (timeout, spawn failure) is
// reported as a synthetic failure with exit code -1 so callers handle every
// outcome through one result type.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/kestrelhq/kestrel/internal/logging"
)

var logger = logging.New("shell")

// DefaultTimeout bounds a single command run.
const DefaultTimeout = 60 * time.Second

// maxCapturedBytes caps stdout/stderr capture per stream.
const maxCapturedBytes = 64 * 1024

// Result is the outcome of one command run. ExitCode is -1 when the command
// timed out or could not be started.
type Result struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Success reports whether the command exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Runner executes shell commands in a fixed working directory.
type Runner struct {
	dir     string
	timeout time.Duration
}

// NewRunner creates a runner rooted at dir. A zero timeout uses
// DefaultTimeout.
func NewRunner(dir string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{dir: dir, timeout: timeout}
}

// Run executes command through the shell and captures its output. The run is
// bounded by the runner's timeout and the caller's context; whichever fires
// first kills the whole process group.
func (r *Runner) Run(ctx context.Context, command string) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.dir
	setProcGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running command", "command", command, "dir", r.dir)
	err := cmd.Run()

	res := Result{
		Command: command,
		Stdout:  clip(stdout.String()),
		Stderr:  clip(stderr.String()),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		logger.Warn("command did not finish", "command", command, "timed_out", res.TimedOut)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure (missing shell, permission error).
			res.ExitCode = -1
			res.Stderr = clip(err.Error())
		}
	}
	return res
}

// RunAll executes commands in order. Unlike edit application, a failing
// command does not stop the batch: command output (including failures) is
// context for the model, not a state mutation to protect.
func (r *Runner) RunAll(ctx context.Context, commands []string) []Result {
	results := make([]Result, 0, len(commands))
	for _, c := range commands {
		results = append(results, r.Run(ctx, c))
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

// clip truncates captured output to the per-stream cap.
func clip(s string) string {
	if len(s) <= maxCapturedBytes {
		return s
	}
	return s[:maxCapturedBytes] + "\n... (output truncated)"
}
