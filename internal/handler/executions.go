package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/model"
)

// HistoryReader is the read side of the execution history.
// *service.HistoryService is the production implementation.
type HistoryReader interface {
	GetByID(ctx context.Context, id string) (*model.ExecutionRecord, error)
	List(ctx context.Context, limit, offset int) ([]model.ExecutionRecord, error)
}

// ExecutionsHandler serves the execution history.
type ExecutionsHandler struct {
	history HistoryReader
	logger  *slog.Logger
}

// NewExecutionsHandler creates a new ExecutionsHandler.
func NewExecutionsHandler(history HistoryReader, logger *slog.Logger) *ExecutionsHandler {
	return &ExecutionsHandler{
		history: history,
		logger:  logger,
	}
}

// HandleList serves GET /api/executions?limit=&offset=.
func (h *ExecutionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.history.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleGetByID serves GET /api/executions/{id}.
func (h *ExecutionsHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.history.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// queryInt reads an optional integer query parameter. Missing means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
