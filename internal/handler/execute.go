// Package handler contains the HTTP handlers of the sandbox API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path params, query, JSON body)
//  2. Call the service layer
//  3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no business rules. Whether code is too long, which languages
// exist, what counts as a failure: all of that is decided by the service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/model"
)

// MaxRequestBodyBytes caps the JSON body of an execution request.
const MaxRequestBodyBytes = 1 << 20

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	exec   executor.Executor
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(exec executor.Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleRun returns a handler bound to one language, for the fixed routes
// POST /run-cpp and POST /run-python.
func (h *ExecuteHandler) HandleRun(lang model.Language) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.run(w, r, lang)
	}
}

// HandleRunLanguage serves POST /api/run/{language}.
func (h *ExecuteHandler) HandleRunLanguage(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, model.Language(chi.URLParam(r, "language")))
}

// LanguageInfo is one entry of GET /api/languages.
type LanguageInfo struct {
	Language model.Language `json:"language"`
}

// HandleLanguages serves GET /api/languages.
func (h *ExecuteHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	langs := h.exec.Languages()
	out := make([]LanguageInfo, 0, len(langs))
	for _, l := range langs {
		out = append(out, LanguageInfo{Language: l})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ExecuteHandler) run(w http.ResponseWriter, r *http.Request, lang model.Language) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)

	var req model.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "request_too_large",
				Message: "request body must be 1 MiB or less",
			})
			return
		}
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON request body"))
		return
	}

	result, err := h.exec.Execute(r.Context(), lang, req.Code)
	if err != nil {
		if !errors.Is(err, apperror.ErrValidation) {
			h.logger.Error("execution request failed",
				slog.String("language", string(lang)),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
