// Package service contains the business logic layer of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Sandbox / Repository     → runs processes, reads/writes the database
//
// Services accept primitives, not HTTP types, which is why sandboxctl can
// drive ExecutionService directly. They return apperror values, never status
// codes; the handler does the translation.
//
// Dependencies arrive as interfaces (WorkspaceProvider,
// repository.ExecutionRepository), so the tests swap in hand-written fakes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/metrics"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/repository"
	"github.com/sakif/code-sandbox/internal/sandbox/adapter"
	"github.com/sakif/code-sandbox/internal/sandbox/workspace"
)

const (
	MaxCodeLength = 100000 // ~100KB of source
	// historyTimeout bounds the best-effort history write after a run.
	historyTimeout = 2 * time.Second
)

// WorkspaceProvider hands out fresh execution workspaces.
// *workspace.Manager is the production implementation.
type WorkspaceProvider interface {
	Acquire() (*workspace.Workspace, error)
}

// ExecutionService is the orchestrator: it validates a submission, gives it a
// private workspace, hands it to the language adapter and turns whatever
// happened into a result.
//
// THE CONTRACT:
//   - Nothing touches the filesystem until the request has been validated.
//   - Every workspace that gets created is released, on every path, panics included.
//   - Compile errors, crashes and timeouts are results, not errors.
//   - Nothing is retried. Running untrusted code twice is never the answer.
type ExecutionService struct {
	registry   *adapter.Registry
	workspaces WorkspaceProvider
	history    repository.ExecutionRepository
	gate       *semaphore.Weighted
	logger     *slog.Logger
}

var _ executor.Executor = (*ExecutionService)(nil)

// ExecutionOption configures an ExecutionService.
type ExecutionOption func(*ExecutionService)

// WithHistory stores an ExecutionRecord for every finished run.
func WithHistory(repo repository.ExecutionRepository) ExecutionOption {
	return func(s *ExecutionService) { s.history = repo }
}

// WithMaxConcurrent caps the number of simultaneous executions.
// Zero or negative means unlimited.
func WithMaxConcurrent(n int) ExecutionOption {
	return func(s *ExecutionService) {
		if n > 0 {
			s.gate = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewExecutionService creates a new ExecutionService.
func NewExecutionService(registry *adapter.Registry, workspaces WorkspaceProvider, logger *slog.Logger, opts ...ExecutionOption) *ExecutionService {
	s := &ExecutionService{
		registry:   registry,
		workspaces: workspaces,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Languages lists the languages that can be submitted.
func (s *ExecutionService) Languages() []model.Language {
	return s.registry.Languages()
}

// Execute runs code written in lang and returns its output.
//
// The returned error is non-nil only for a rejected request (apperror.ErrValidation)
// or a host that could not create a workspace (apperror.ErrWorkspace).
func (s *ExecutionService) Execute(ctx context.Context, lang model.Language, code string) (*model.ExecutionResult, error) {
	// === VALIDATION ===
	if code == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if len(code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	a, ok := s.registry.Get(lang)
	if !ok {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("unsupported language %q", lang))
	}

	// === ADMISSION ===
	if s.gate != nil {
		if err := s.gate.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for an execution slot: %w", err)
		}
		defer s.gate.Release(1)
	}

	// === WORKSPACE ===
	ws, err := s.workspaces.Acquire()
	if err != nil {
		metrics.WorkspaceFailures.Inc()
		s.logger.Error("workspace creation failed",
			slog.String("language", string(lang)),
			slog.String("error", err.Error()),
		)
		return nil, apperror.WorkspaceUnavailable(err)
	}
	defer ws.Release()

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	// A client that hangs up does not stop the run; the wall-clock limit does.
	// The workspace is still released by the deferred call above.
	out := s.run(context.WithoutCancel(ctx), a, ws, code)

	result := &model.ExecutionResult{
		Output:   out.Output,
		Error:    !out.Succeeded(),
		Kind:     out.Kind,
		Duration: out.Duration,
	}

	metrics.ObserveExecution(lang, out.Kind, out.Duration)
	s.logger.Info("execution finished",
		slog.String("language", string(lang)),
		slog.String("workspace", ws.ID),
		slog.String("outcome", metrics.Outcome(out.Kind)),
		slog.Duration("duration", out.Duration),
	)

	s.record(ctx, lang, result)
	return result, nil
}

// run calls the adapter, converting a panic into an internal failure so the
// caller still gets a result and the workspace is still released.
func (s *ExecutionService) run(ctx context.Context, a adapter.Adapter, ws *workspace.Workspace, code string) (out adapter.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("adapter panicked",
				slog.String("language", string(a.Language())),
				slog.String("workspace", ws.ID),
				slog.Any("panic", r),
			)
			out = adapter.Outcome{
				Output: fmt.Sprintf("internal error: %v", r),
				Kind:   model.FailureInternal,
			}
		}
	}()
	return a.Execute(ctx, ws, code)
}

// record stores a history entry. It never fails the request.
func (s *ExecutionService) record(ctx context.Context, lang model.Language, result *model.ExecutionResult) {
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	rec := &model.ExecutionRecord{
		Language:    lang,
		Succeeded:   !result.Error,
		Kind:        result.Kind,
		DurationMs:  result.Duration.Milliseconds(),
		OutputBytes: len(result.Output),
		RequestID:   chimw.GetReqID(ctx),
	}
	if err := s.history.Create(ctx, rec); err != nil {
		metrics.HistoryWriteFailures.Inc()
		s.logger.Warn("failed to store execution record",
			slog.String("language", string(lang)),
			slog.String("error", err.Error()),
		)
	}
}
