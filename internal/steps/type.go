package steps

import (
	"context"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
)

// defaultTypeTarget is probed when a type step carries no target.
const defaultTypeTarget = "input"

// TypeExecutor handles type steps. The live session submits the field when
// the target reads like a search box; failures propagate and fail the step.
type TypeExecutor struct{}

// NewTypeExecutor creates a new type executor.
func NewTypeExecutor() *TypeExecutor {
	return &TypeExecutor{}
}

// Execute fills the step's target input with the step value.
func (e *TypeExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (any, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if rc.Live() {
		target := step.Target
		if target == "" {
			target = defaultTypeTarget
		}
		return rc.Session.TypeText(ctx, target, step.Value, step.Description)
	}
	return simulateType(ctx, step)
}

// Action returns the workflow action this executor handles.
func (e *TypeExecutor) Action() constants.Action {
	return constants.ActionType
}
