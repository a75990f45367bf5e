// Package tool runs the external programs phyling orchestrates: profile
// search, alignment, trimming, tree inference and tree summarization.
//
// Each program is exposed as a [Stage], a uniform capability that turns an
// input file into an output file. Stages are built by name from
// configuration, so tests can substitute in-process fakes for any of them.
package tool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/logging"
)

// StderrTailBytes bounds how much of a tool's stderr is kept for reports.
const StderrTailBytes = 4096

// waitDelay bounds how long Wait blocks on inherited pipes after the
// process group has been killed.
const waitDelay = 5 * time.Second

// Command is one external process invocation.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Stdout string // File receiving stdout; empty discards it
}

// Result describes a finished process.
type Result struct {
	ExitCode int
	Stderr   string // Last StderrTailBytes of stderr
	Duration time.Duration
	TimedOut bool
}

// Executor runs commands with a per-invocation timeout. The process and
// everything it spawns share a process group that is killed when the
// context is canceled or the timeout expires.
type Executor struct {
	timeout time.Duration
	logger  *logging.Logger
}

// NewExecutor creates an Executor. A zero timeout disables it.
func NewExecutor(timeout time.Duration, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{timeout: timeout, logger: logger}
}

// Exec runs c to completion. The error wraps ErrCanceled, ErrTimeout,
// ErrToolFailed (non-zero exit) or ErrToolNotFound.
func (e *Executor) Exec(ctx context.Context, c Command) (Result, error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	stderr := newTailBuffer(StderrTailBytes)
	cmd.Stderr = stderr

	if c.Stdout != "" {
		f, err := os.Create(c.Stdout)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("create stdout file: %w", err)
		}
		defer func() { _ = f.Close() }()
		cmd.Stdout = f
	}

	e.logger.Debug("exec", "path", c.Path, "args", c.Args)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		ExitCode: -1,
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		return res, errors.Wrapf(errors.ErrCanceled, "%s", c.Path)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		return res, errors.NewTimeoutError(filepath.Base(c.Path), e.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, errors.Wrapf(errors.ErrToolFailed, "%s exited with status %d", c.Path, res.ExitCode)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return res, errors.Wrapf(errors.ErrToolNotFound, "%s", c.Path)
	}
	return res, fmt.Errorf("run %s: %w", c.Path, err)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data = append(t.data, p...)
	if over := len(t.data) - t.max; over > 0 {
		t.data = append(t.data[:0], t.data[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.data)
}
