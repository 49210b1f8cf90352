package adapter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/code-sandbox/internal/sandbox/process"
	"github.com/sakif/code-sandbox/internal/sandbox/workspace"
)

// fakeRunner answers Run calls from a script keyed by executable path and
// records every command it saw.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []process.Command
	respond func(c process.Command) (*process.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, c process.Command) (*process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.respond == nil {
		return &process.Result{}, nil
	}
	return f.respond(c)
}

func (f *fakeRunner) Calls() []process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Command(nil), f.calls...)
}

func (f *fakeRunner) countPath(path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Path == path {
			n++
		}
	}
	return n
}

func procErr(kind process.Kind, stderr string, err error) (*process.Result, error) {
	res := &process.Result{Stderr: stderr, ExitCode: 1}
	return res, &process.Error{Kind: kind, Command: "fake", Result: res, Err: err}
}

var errFake = errors.New("exit status 1")

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir(), discardLogger()).Acquire()
	require.NoError(t, err)
	t.Cleanup(ws.Release)
	return ws
}
