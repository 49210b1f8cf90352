// Package process launches compiler, interpreter and program processes for the
// sandbox and keeps them on a short leash.
//
// THE THREE RULES:
//  1. No shell. The executable and every argument are handed to the kernel as an
//     argument vector, so a file name or source text full of `;`, `$()` or `|`
//     is just bytes.
//  2. A wall-clock deadline. When it fires, the whole process group is killed,
//     not only the direct child, so a program that forks cannot leave orphans.
//  3. Bounded output. stdout and stderr are captured into capped buffers; a program
//     printing in an endless loop costs at most MaxOutputBytes of memory per stream.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	DefaultTimeout        = 5 * time.Second
	DefaultMaxOutputBytes = 1 << 20 // 1 MiB per stream
	DefaultWaitDelay      = time.Second
)

// Command describes a single process invocation.
type Command struct {
	// Path is the executable. A bare name is resolved through $PATH.
	Path string
	Args []string
	// Dir is the working directory. Empty means the server's own.
	Dir string
	// Timeout overrides the supervisor default when positive.
	Timeout time.Duration
	// Env replaces the environment when non-nil.
	Env []string
}

func (c Command) name() string {
	return filepath.Base(c.Path)
}

// Result is what the process left behind.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Supervisor runs commands under a timeout. It holds no per-run state and is
// safe for concurrent use.
type Supervisor struct {
	timeout   time.Duration
	maxOutput int
	waitDelay time.Duration
	logger    *slog.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithDefaultTimeout sets the timeout used when Command.Timeout is zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.timeout = d }
}

// WithMaxOutputBytes caps each captured stream. Zero or negative means unlimited.
func WithMaxOutputBytes(n int) Option {
	return func(s *Supervisor) { s.maxOutput = n }
}

// WithWaitDelay bounds how long Run waits for output pipes after the process
// has exited or been killed.
func WithWaitDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.waitDelay = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutputBytes,
		waitDelay: DefaultWaitDelay,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

// DefaultTimeout returns the timeout applied when a command does not set one.
func (s *Supervisor) DefaultTimeout() time.Duration {
	return s.timeout
}

// Run starts the command, waits for it to finish or time out, and returns what
// it printed.
//
// A nil error means the process exited with status 0. Any other outcome is
// reported as a *Error carrying the Kind and the (possibly partial) Result.
func (s *Supervisor) Run(ctx context.Context, c Command) (*Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- the argument vector is never interpreted by a shell.
	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}

	stdout := newCappedBuffer(s.maxOutput)
	stderr := newCappedBuffer(s.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = s.waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		s.logger.Debug("process spawn failed",
			slog.String("command", c.name()),
			slog.String("error", err.Error()),
		)
		res := &Result{ExitCode: -1}
		return res, &Error{Kind: KindSpawn, Command: c.name(), Result: res, Err: err}
	}

	waitErr := cmd.Wait()
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// Descendants still hold the pipes, so the group is non-empty and its
		// ID cannot have been reused yet.
		_ = killProcessGroup(cmd)
	}

	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  -1,
		Duration:  time.Since(start),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	s.logger.Debug("process finished",
		slog.String("command", c.name()),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("duration", res.Duration),
	)

	if err := classify(runCtx, cmd, c, res, timeout, waitErr); err != nil {
		return res, err
	}
	return res, nil
}

func classify(runCtx context.Context, cmd *exec.Cmd, c Command, res *Result, timeout time.Duration, waitErr error) error {
	if waitErr == nil {
		return nil
	}

	// Exited cleanly but a descendant held the pipes open past WaitDelay.
	// The output we have is what the program produced; the stragglers were killed.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		return nil
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return &Error{
			Kind:    KindTimeout,
			Command: c.name(),
			Result:  res,
			Err:     fmt.Errorf("execution timed out after %s", timeout),
		}
	case runCtx.Err() != nil:
		return &Error{Kind: KindSignal, Command: c.name(), Result: res, Err: runCtx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && signaled(exitErr) {
		return &Error{Kind: KindSignal, Command: c.name(), Result: res, Err: waitErr}
	}
	return &Error{Kind: KindExit, Command: c.name(), Result: res, Err: waitErr}
}
