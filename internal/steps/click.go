package steps

import (
	"context"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
)

// defaultClickTarget is probed when a click step carries no target.
const defaultClickTarget = "button"

// ClickExecutor handles click steps. Locator and interaction failures from
// the live session propagate and fail the step, which is what triggers
// self-healing for moved or renamed elements.
type ClickExecutor struct{}

// NewClickExecutor creates a new click executor.
func NewClickExecutor() *ClickExecutor {
	return &ClickExecutor{}
}

// Execute clicks the step's target element.
func (e *ClickExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (any, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if rc.Live() {
		target := step.Target
		if target == "" {
			target = defaultClickTarget
		}
		return rc.Session.ClickElement(ctx, target)
	}
	return simulateClick(ctx, step)
}

// Action returns the workflow action this executor handles.
func (e *ClickExecutor) Action() constants.Action {
	return constants.ActionClick
}
