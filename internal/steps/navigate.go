package steps

import (
	"context"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
)

// defaultNavigateURL is loaded when a navigate step carries no target.
const defaultNavigateURL = "https://www.google.com"

// NavigateExecutor handles navigate steps. With a live session the real
// page-load record is returned and failures fail the step; without one the
// load is simulated.
type NavigateExecutor struct{}

// NewNavigateExecutor creates a new navigate executor.
func NewNavigateExecutor() *NavigateExecutor {
	return &NavigateExecutor{}
}

// Execute loads the step's target URL.
func (e *NavigateExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (any, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if rc.Live() {
		target := step.Target
		if target == "" {
			target = defaultNavigateURL
		}
		return rc.Session.Navigate(ctx, target)
	}
	return simulateNavigate(ctx, step)
}

// Action returns the workflow action this executor handles.
func (e *NavigateExecutor) Action() constants.Action {
	return constants.ActionNavigate
}
