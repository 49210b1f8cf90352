package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/repository"
	"github.com/sakif/code-sandbox/internal/sandbox/adapter"
	"github.com/sakif/code-sandbox/internal/sandbox/workspace"
)

// =========================================================================
// TEST DOUBLES
// =========================================================================

// funcAdapter is an adapter whose behaviour is a plain function, so each test
// can script exactly what "running the code" does.
type funcAdapter struct {
	lang  model.Language
	calls atomic.Int32
	fn    func(ctx context.Context, ws *workspace.Workspace, source string) adapter.Outcome
}

func (f *funcAdapter) Language() model.Language { return f.lang }

func (f *funcAdapter) Execute(ctx context.Context, ws *workspace.Workspace, source string) adapter.Outcome {
	f.calls.Add(1)
	return f.fn(ctx, ws, source)
}

// echoAdapter writes the source into the workspace and "prints" it back.
func echoAdapter(lang model.Language) *funcAdapter {
	return &funcAdapter{lang: lang, fn: func(_ context.Context, ws *workspace.Workspace, source string) adapter.Outcome {
		if _, err := adapter.Materialize(ws, ".src", source); err != nil {
			return adapter.Outcome{Output: err.Error(), Kind: model.FailureInternal}
		}
		return adapter.Outcome{Output: source, Duration: time.Millisecond}
	}}
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	records []model.ExecutionRecord
	err     error
}

func (m *mockHistoryRepo) Create(_ context.Context, rec *model.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = fmt.Sprintf("mock-%d", len(m.records)+1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockHistoryRepo) GetByID(_ context.Context, id string) (*model.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, apperror.NotFound("execution", id)
}

func (m *mockHistoryRepo) List(_ context.Context, opts repository.ListOptions) ([]model.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := append([]model.ExecutionRecord(nil), m.records...)
	if opts.Offset >= len(out) {
		return []model.ExecutionRecord{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// failingProvider simulates a host whose scratch area cannot be written.
type failingProvider struct{ err error }

func (f failingProvider) Acquire() (*workspace.Workspace, error) { return nil, f.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setup returns a service over the given adapters and the scratch root it uses.
// The root does not exist until the first workspace is acquired.
func setup(t *testing.T, adapters []adapter.Adapter, opts ...ExecutionOption) (*ExecutionService, string) {
	t.Helper()
	reg, err := adapter.NewRegistry(adapters...)
	require.NoError(t, err)

	root := filepath.Join(t.TempDir(), "scratch")
	mgr := workspace.NewManager(root, testLogger())
	return NewExecutionService(reg, mgr, testLogger(), opts...), root
}

// assertRootEmpty checks that no workspace outlived its execution.
func assertRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "leftover workspaces in %s", root)
}

// =========================================================================
// TESTS
// =========================================================================

func TestExecute_Validation(t *testing.T) {
	tests := []struct {
		name      string
		lang      model.Language
		code      string
		wantField string
	}{
		{name: "empty code", lang: model.LanguageCPP, code: "", wantField: "code"},
		{name: "code too long", lang: model.LanguageCPP, code: string(make([]byte, MaxCodeLength+1)), wantField: "code"},
		{name: "unknown language", lang: "cobol", code: "DISPLAY 'HI'.", wantField: "language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := echoAdapter(model.LanguageCPP)
			svc, root := setup(t, []adapter.Adapter{a})

			result, err := svc.Execute(context.Background(), tt.lang, tt.code)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, apperror.ErrValidation))

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantField, appErr.Field)

			// Rejected before any workspace existed.
			assert.NoDirExists(t, root)
			assert.Zero(t, a.calls.Load())
		})
	}
}

func TestExecute_Success(t *testing.T) {
	repo := &mockHistoryRepo{}
	svc, root := setup(t, []adapter.Adapter{echoAdapter(model.LanguagePython)}, WithHistory(repo))

	result, err := svc.Execute(context.Background(), model.LanguagePython, "print('hi')")

	require.NoError(t, err)
	assert.Equal(t, "print('hi')", result.Output)
	assert.False(t, result.Error)
	assert.Equal(t, model.FailureNone, result.Kind)
	assertRootEmpty(t, root)

	require.Len(t, repo.records, 1)
	rec := repo.records[0]
	assert.Equal(t, model.LanguagePython, rec.Language)
	assert.True(t, rec.Succeeded)
	assert.Equal(t, len("print('hi')"), rec.OutputBytes)
}

func TestExecute_FailureIsAResultNotAnError(t *testing.T) {
	kinds := []model.FailureKind{
		model.FailureToolchain,
		model.FailureBuild,
		model.FailureRuntime,
		model.FailureTimeout,
	}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			a := &funcAdapter{lang: model.LanguageCPP, fn: func(context.Context, *workspace.Workspace, string) adapter.Outcome {
				return adapter.Outcome{Output: "diagnostic for " + string(kind), Kind: kind}
			}}
			repo := &mockHistoryRepo{}
			svc, root := setup(t, []adapter.Adapter{a}, WithHistory(repo))

			result, err := svc.Execute(context.Background(), model.LanguageCPP, "int main(){}")

			require.NoError(t, err)
			assert.True(t, result.Error)
			assert.Equal(t, "diagnostic for "+string(kind), result.Output)
			assert.Equal(t, kind, result.Kind)
			assert.Equal(t, int32(1), a.calls.Load(), "failed runs are never retried")
			assertRootEmpty(t, root)

			require.Len(t, repo.records, 1)
			assert.False(t, repo.records[0].Succeeded)
			assert.Equal(t, kind, repo.records[0].Kind)
		})
	}
}

func TestExecute_PanicBecomesInternalError(t *testing.T) {
	a := &funcAdapter{lang: model.LanguageCPP, fn: func(_ context.Context, ws *workspace.Workspace, source string) adapter.Outcome {
		_, _ = adapter.Materialize(ws, ".cpp", source)
		panic("compiler exploded")
	}}
	svc, root := setup(t, []adapter.Adapter{a})

	result, err := svc.Execute(context.Background(), model.LanguageCPP, "int main(){}")

	require.NoError(t, err)
	assert.True(t, result.Error)
	assert.Equal(t, "internal error: compiler exploded", result.Output)
	assert.Equal(t, model.FailureInternal, result.Kind)
	assertRootEmpty(t, root)
}

func TestExecute_WorkspaceFailure(t *testing.T) {
	reg, err := adapter.NewRegistry(echoAdapter(model.LanguageCPP))
	require.NoError(t, err)
	svc := NewExecutionService(reg, failingProvider{err: os.ErrPermission}, testLogger())

	result, err := svc.Execute(context.Background(), model.LanguageCPP, "int main(){}")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, apperror.ErrWorkspace))
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestExecute_WorkspaceFailureWithRealManager(t *testing.T) {
	// A regular file where the scratch root should be.
	root := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	reg, err := adapter.NewRegistry(echoAdapter(model.LanguageCPP))
	require.NoError(t, err)
	svc := NewExecutionService(reg, workspace.NewManager(root, testLogger()), testLogger())

	_, err = svc.Execute(context.Background(), model.LanguageCPP, "int main(){}")
	assert.True(t, errors.Is(err, apperror.ErrWorkspace))
}

func TestExecute_ClientCancellationDoesNotStopTheRun(t *testing.T) {
	var sawErr error
	a := &funcAdapter{lang: model.LanguagePython, fn: func(ctx context.Context, _ *workspace.Workspace, source string) adapter.Outcome {
		sawErr = ctx.Err()
		return adapter.Outcome{Output: source}
	}}
	svc, root := setup(t, []adapter.Adapter{a})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Execute(ctx, model.LanguagePython, "print(1)")

	require.NoError(t, err)
	assert.False(t, result.Error)
	assert.NoError(t, sawErr)
	assertRootEmpty(t, root)
}

func TestExecute_HistoryFailureDoesNotFailTheRequest(t *testing.T) {
	repo := &mockHistoryRepo{err: errors.New("disk full")}
	svc, _ := setup(t, []adapter.Adapter{echoAdapter(model.LanguagePython)}, WithHistory(repo))

	result, err := svc.Execute(context.Background(), model.LanguagePython, "print(1)")

	require.NoError(t, err)
	assert.False(t, result.Error)
}

func TestExecute_ConcurrentSubmissionsAreIsolated(t *testing.T) {
	var (
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	a := &funcAdapter{lang: model.LanguageCPP, fn: func(_ context.Context, ws *workspace.Workspace, source string) adapter.Outcome {
		mu.Lock()
		ids[ws.ID] = true
		mu.Unlock()

		if _, err := adapter.Materialize(ws, ".cpp", source); err != nil {
			return adapter.Outcome{Output: err.Error(), Kind: model.FailureInternal}
		}
		time.Sleep(5 * time.Millisecond)
		got, err := os.ReadFile(ws.SourcePath(".cpp"))
		if err != nil {
			return adapter.Outcome{Output: err.Error(), Kind: model.FailureInternal}
		}
		return adapter.Outcome{Output: string(got)}
	}}
	svc, root := setup(t, []adapter.Adapter{a})

	const n = 50
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			code := fmt.Sprintf("// submission %d", i)
			result, err := svc.Execute(context.Background(), model.LanguageCPP, code)
			if err != nil {
				return err
			}
			if result.Output != code {
				return fmt.Errorf("submission %d saw %q", i, result.Output)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, ids, n, "every submission gets its own workspace")
	assertRootEmpty(t, root)
}

func TestExecute_MaxConcurrent(t *testing.T) {
	var current, peak atomic.Int32
	a := &funcAdapter{lang: model.LanguageCPP, fn: func(context.Context, *workspace.Workspace, string) adapter.Outcome {
		now := current.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return adapter.Outcome{Output: "ok"}
	}}
	svc, _ := setup(t, []adapter.Adapter{a}, WithMaxConcurrent(2))

	var g errgroup.Group
	for range 10 {
		g.Go(func() error {
			_, err := svc.Execute(context.Background(), model.LanguageCPP, "x")
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecute_GateHonoursRequestContext(t *testing.T) {
	release := make(chan struct{})
	a := &funcAdapter{lang: model.LanguageCPP, fn: func(context.Context, *workspace.Workspace, string) adapter.Outcome {
		<-release
		return adapter.Outcome{}
	}}
	svc, _ := setup(t, []adapter.Adapter{a}, WithMaxConcurrent(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Execute(context.Background(), model.LanguageCPP, "x")
	}()
	require.Eventually(t, func() bool { return a.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Execute(ctx, model.LanguageCPP, "y")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestLanguages(t *testing.T) {
	svc, _ := setup(t, []adapter.Adapter{echoAdapter(model.LanguagePython), echoAdapter(model.LanguageCPP)})
	assert.Equal(t, []model.Language{model.LanguageCPP, model.LanguagePython}, svc.Languages())
}
