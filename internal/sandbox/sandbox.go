// Package sandbox assembles the execution core (supervisor, workspaces and
// language adapters) from configuration. The HTTP server and sandboxctl both
// build theirs here, so the two can never disagree about toolchains or limits.
package sandbox

import (
	"fmt"
	"log/slog"

	"github.com/sakif/code-sandbox/internal/config"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/sandbox/adapter"
	"github.com/sakif/code-sandbox/internal/sandbox/process"
	"github.com/sakif/code-sandbox/internal/sandbox/workspace"
)

// Sandbox is the wired execution core.
type Sandbox struct {
	Supervisor *process.Supervisor
	Workspaces *workspace.Manager
	Registry   *adapter.Registry
}

// New builds a Sandbox. The scratch directory is not created until the first
// workspace is acquired.
func New(cfg config.Config, logger *slog.Logger) (*Sandbox, error) {
	// Callers may have edited cfg after Load, e.g. sandboxctl flags.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sup := process.New(
		process.WithDefaultTimeout(cfg.RunTimeout),
		process.WithMaxOutputBytes(cfg.MaxOutputBytes),
		process.WithLogger(logger),
	)

	adapters := adapter.Builtin(adapter.Toolchain{
		CPPCompiler:      cfg.CPPCompiler,
		CCompiler:        cfg.CCompiler,
		PythonCandidates: cfg.PythonCandidates,
		CompileTimeout:   cfg.CompileTimeout,
		RunTimeout:       cfg.RunTimeout,
		ProbeTimeout:     cfg.ProbeTimeout,
	}, sup, logger)

	if cfg.LanguagesFile != "" {
		lf, err := config.LoadLanguages(cfg.LanguagesFile)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, extraAdapters(lf, cfg, sup, logger)...)
	}

	reg, err := adapter.NewRegistry(adapters...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	return &Sandbox{
		Supervisor: sup,
		Workspaces: workspace.NewManager(cfg.ScratchDir, logger),
		Registry:   reg,
	}, nil
}

func extraAdapters(lf *config.LanguagesFile, cfg config.Config, runner adapter.Runner, logger *slog.Logger) []adapter.Adapter {
	var out []adapter.Adapter
	for _, c := range lf.Compiled {
		out = append(out, adapter.NewCompiled(adapter.CompiledConfig{
			Language:       model.Language(c.Language),
			Extension:      c.Extension,
			Compiler:       c.Compiler,
			Flags:          c.Flags,
			CompileTimeout: cfg.CompileTimeout,
			RunTimeout:     cfg.RunTimeout,
		}, runner, logger))
	}
	for _, c := range lf.Interpreted {
		out = append(out, adapter.NewInterpreted(adapter.InterpretedConfig{
			Language:     model.Language(c.Language),
			Extension:    c.Extension,
			Candidates:   c.Candidates,
			ProbeTimeout: cfg.ProbeTimeout,
			RunTimeout:   cfg.RunTimeout,
		}, runner, logger))
	}
	return out
}
