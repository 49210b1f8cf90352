package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/sandbox/process"
	"github.com/sakif/code-sandbox/internal/sandbox/workspace"
)

// CompiledConfig describes a language that is compiled to a native binary.
type CompiledConfig struct {
	Language  model.Language
	Extension string // ".cpp"
	Compiler  string // "g++"
	// Flags go before the source file. Empty by default, giving exactly
	// `<compiler> <src> -o <artifact>`.
	Flags          []string
	CompileTimeout time.Duration
	RunTimeout     time.Duration
}

// CompiledAdapter builds the source with a compiler and then runs the artifact.
type CompiledAdapter struct {
	cfg    CompiledConfig
	runner Runner
	logger *slog.Logger
}

// NewCompiled creates a CompiledAdapter.
func NewCompiled(cfg CompiledConfig, runner Runner, logger *slog.Logger) *CompiledAdapter {
	return &CompiledAdapter{cfg: cfg, runner: runner, logger: logger}
}

func (a *CompiledAdapter) Language() model.Language {
	return a.cfg.Language
}

// Execute writes, builds and runs. The run step only happens after a
// successful build.
func (a *CompiledAdapter) Execute(ctx context.Context, ws *workspace.Workspace, source string) Outcome {
	start := time.Now()

	src, err := Materialize(ws, a.cfg.Extension, source)
	if err != nil {
		return internalFailure("writing source: %v", err)
	}

	artifact, out := a.Build(ctx, ws, src)
	if !out.Succeeded() {
		out.Duration = time.Since(start)
		return out
	}

	out = a.Run(ctx, ws, artifact)
	out.Duration = time.Since(start)
	return out
}

// Build compiles src into the workspace artifact path.
func (a *CompiledAdapter) Build(ctx context.Context, ws *workspace.Workspace, src string) (string, Outcome) {
	artifact := ws.ArtifactPath()

	args := make([]string, 0, len(a.cfg.Flags)+3)
	args = append(args, a.cfg.Flags...)
	args = append(args, src, "-o", artifact)

	res, err := a.runner.Run(ctx, process.Command{
		Path:    a.cfg.Compiler,
		Args:    args,
		Dir:     ws.Dir,
		Timeout: a.cfg.CompileTimeout,
	})
	if err != nil {
		out := failure(err, model.FailureBuild, 0)
		a.logger.Debug("build failed",
			slog.String("language", string(a.cfg.Language)),
			slog.String("workspace", ws.ID),
			slog.String("kind", string(out.Kind)),
		)
		return "", out
	}
	return artifact, Outcome{Duration: res.Duration}
}

// Run executes a previously built artifact with no arguments.
func (a *CompiledAdapter) Run(ctx context.Context, ws *workspace.Workspace, artifact string) Outcome {
	res, err := a.runner.Run(ctx, process.Command{
		Path:    artifact,
		Dir:     ws.Dir,
		Timeout: a.cfg.RunTimeout,
	})
	if err != nil {
		return failure(err, model.FailureRuntime, 0)
	}
	return Outcome{Output: res.Stdout, Duration: res.Duration}
}
