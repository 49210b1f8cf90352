// Package executor defines the contract between the HTTP layer and whatever
// actually runs submitted code. The handlers depend on this interface only;
// service.ExecutionService is the production implementation.
package executor

import (
	"context"

	"github.com/sakif/code-sandbox/internal/model"
)

// Executor runs one submission to completion.
//
// A non-nil error means the request itself was rejected (validation) or the
// host could not prepare a workspace. Anything that goes wrong with the
// submitted program is reported through the result's Error flag instead.
type Executor interface {
	Execute(ctx context.Context, lang model.Language, code string) (*model.ExecutionResult, error)
	Languages() []model.Language
}
