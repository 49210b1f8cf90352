// Package adapter holds one Adapter per supported language. An adapter knows how
// to put source text on disk, how to turn it into something runnable, and how
// to run it. The orchestrator never branches on language beyond picking the
// adapter: adding a language means adding an adapter here, nothing else.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/sandbox/process"
	"github.com/sakif/code-sandbox/internal/sandbox/workspace"
)

// Outcome is the result of one execution as seen by an adapter.
// Kind is model.FailureNone on success, in which case Output is stdout.
type Outcome struct {
	Output   string
	Kind     model.FailureKind
	Duration time.Duration
}

// Succeeded reports whether the program built and ran to a zero exit status.
func (o Outcome) Succeeded() bool {
	return o.Kind == model.FailureNone
}

// Adapter runs source code for one language inside a workspace.
type Adapter interface {
	Language() model.Language
	Execute(ctx context.Context, ws *workspace.Workspace, source string) Outcome
}

// Runner is the part of process.Supervisor the adapters need.
type Runner interface {
	Run(ctx context.Context, c process.Command) (*process.Result, error)
}

// Materialize writes source verbatim into the workspace and returns its path.
// No transformation or inspection happens here; the boundary is the process
// supervisor, not the source text.
func Materialize(ws *workspace.Workspace, ext, source string) (string, error) {
	path := ws.SourcePath(ext)
	if err := ws.WriteFile(path, []byte(source)); err != nil {
		return "", err
	}
	return path, nil
}

// failure turns a Run error into an Outcome. stageKind is the kind used for an
// ordinary non-zero exit or signal at this stage (build or run).
func failure(err error, stageKind model.FailureKind, elapsed time.Duration) Outcome {
	var perr *process.Error
	if !errors.As(err, &perr) {
		return Outcome{Output: err.Error(), Kind: model.FailureInternal, Duration: elapsed}
	}

	kind := stageKind
	switch perr.Kind {
	case process.KindSpawn:
		kind = model.FailureToolchain
	case process.KindTimeout:
		kind = model.FailureTimeout
	}
	return Outcome{Output: perr.Diagnostic(), Kind: kind, Duration: elapsed}
}

func internalFailure(format string, err error) Outcome {
	return Outcome{Output: fmt.Sprintf(format, err), Kind: model.FailureInternal}
}
