package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/sandbox/process"
	"github.com/sakif/code-sandbox/internal/sandbox/workspace"
)

// ErrInterpreterNotFound is returned by ResolveInterpreter when no candidate
// executable answered the probe.
var ErrInterpreterNotFound = errors.New("interpreter not found")

// InterpretedConfig describes a language run directly by an interpreter.
type InterpretedConfig struct {
	Language  model.Language
	Extension string // ".py"
	// Candidates are tried in order; the first one that answers
	// `<name> --version` with exit status 0 is used.
	Candidates   []string
	ProbeTimeout time.Duration
	RunTimeout   time.Duration
}

type resolution struct {
	path    string
	version string
	err     error
}

// InterpretedAdapter runs `<interpreter> <source file>`.
type InterpretedAdapter struct {
	cfg    InterpretedConfig
	runner Runner
	logger *slog.Logger

	// Written once, read by every request after that. Two requests racing on
	// the first probe both probe; the first to store wins and the results
	// are identical anyway.
	resolved atomic.Pointer[resolution]
}

// NewInterpreted creates an InterpretedAdapter.
func NewInterpreted(cfg InterpretedConfig, runner Runner, logger *slog.Logger) *InterpretedAdapter {
	return &InterpretedAdapter{cfg: cfg, runner: runner, logger: logger}
}

func (a *InterpretedAdapter) Language() model.Language {
	return a.cfg.Language
}

// ResolveInterpreter returns the interpreter executable, probing the candidates
// on first use and caching the answer for the life of the process.
func (a *InterpretedAdapter) ResolveInterpreter(ctx context.Context) (string, error) {
	if r := a.resolved.Load(); r != nil {
		return r.path, r.err
	}

	r := a.probe(ctx)
	if ctx.Err() != nil {
		// A probe cut short by the caller says nothing about the host.
		return r.path, r.err
	}
	if a.resolved.CompareAndSwap(nil, r) {
		if r.err != nil {
			a.logger.Warn("no interpreter available",
				slog.String("language", string(a.cfg.Language)),
				slog.String("error", r.err.Error()),
			)
		} else {
			a.logger.Info("interpreter resolved",
				slog.String("language", string(a.cfg.Language)),
				slog.String("path", r.path),
				slog.String("version", r.version),
			)
		}
	}
	r = a.resolved.Load()
	return r.path, r.err
}

func (a *InterpretedAdapter) probe(ctx context.Context) *resolution {
	for _, name := range a.cfg.Candidates {
		res, err := a.runner.Run(ctx, process.Command{
			Path:    name,
			Args:    []string{"--version"},
			Timeout: a.cfg.ProbeTimeout,
		})
		if err != nil {
			a.logger.Debug("interpreter probe failed",
				slog.String("candidate", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		// Old interpreters print their version on stderr.
		version := strings.TrimSpace(process.FirstNonEmpty(res.Stdout, res.Stderr))
		return &resolution{path: name, version: version}
	}
	return &resolution{err: fmt.Errorf("%s %w (tried %s)",
		a.cfg.Language, ErrInterpreterNotFound, strings.Join(a.cfg.Candidates, ", "))}
}

// Execute writes the source and runs it with the resolved interpreter.
func (a *InterpretedAdapter) Execute(ctx context.Context, ws *workspace.Workspace, source string) Outcome {
	start := time.Now()

	interpreter, err := a.ResolveInterpreter(ctx)
	if err != nil {
		return Outcome{Output: err.Error(), Kind: model.FailureToolchain, Duration: time.Since(start)}
	}

	src, err := Materialize(ws, a.cfg.Extension, source)
	if err != nil {
		return internalFailure("writing source: %v", err)
	}

	res, err := a.runner.Run(ctx, process.Command{
		Path:    interpreter,
		Args:    []string{src},
		Dir:     ws.Dir,
		Timeout: a.cfg.RunTimeout,
	})
	if err != nil {
		return failure(err, model.FailureRuntime, time.Since(start))
	}
	return Outcome{Output: res.Stdout, Duration: time.Since(start)}
}
