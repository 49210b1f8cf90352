// Package model defines the data structures shared by the sandbox, the service
// layer and the HTTP handlers.
package model

import "time"

// Language identifies a registered runtime adapter ("cpp", "python", ...).
type Language string

const (
	LanguageCPP    Language = "cpp"
	LanguageC      Language = "c"
	LanguagePython Language = "python"
)

// FailureKind classifies why an execution did not succeed.
//
// Callers of the HTTP API never see this value: every kind collapses into
// {"error": true}. It exists for logs, metrics and the execution history.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureToolchain FailureKind = "toolchain_unavailable"
	FailureBuild     FailureKind = "build_failure"
	FailureRuntime   FailureKind = "runtime_failure"
	FailureTimeout   FailureKind = "timeout_exceeded"
	FailureInternal  FailureKind = "internal"
)

// ExecutionRequest is the body of POST /run-cpp and POST /run-python.
type ExecutionRequest struct {
	Code string `json:"code"`
}

// ExecutionResult is the only thing returned to the caller.
// Output holds stdout on success, or the most specific diagnostic on failure.
type ExecutionResult struct {
	Output string `json:"output"`
	Error  bool   `json:"error"`

	Kind     FailureKind   `json:"-"`
	Duration time.Duration `json:"-"`
}

// ExecutionRecord is one row of execution history.
// It deliberately carries no source code and no output text.
type ExecutionRecord struct {
	ID          string      `json:"id"`
	Language    Language    `json:"language"`
	Succeeded   bool        `json:"succeeded"`
	Kind        FailureKind `json:"kind,omitempty"`
	DurationMs  int64       `json:"durationMs"`
	OutputBytes int         `json:"outputBytes"`
	RequestID   string      `json:"requestId,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
