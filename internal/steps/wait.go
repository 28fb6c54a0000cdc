package steps

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
)

// WaitExecutor handles wait steps. With a live session it also waits for
// the network to go quiet so a following extract sees a settled page.
type WaitExecutor struct{}

// NewWaitExecutor creates a new wait executor.
func NewWaitExecutor() *WaitExecutor {
	return &WaitExecutor{}
}

// Execute pauses the run for the step value's seconds.
func (e *WaitExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (any, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if rc.Live() {
		pause := waitDuration(step.Value)
		if err := timeSleep(ctx, pause); err != nil {
			return nil, err
		}
		rc.Session.WaitIdle(ctx, constants.PostWaitIdleTimeout)
		return &domain.WaitResult{
			WaitedMS:   pause.Milliseconds(),
			PageReady:  true,
			CurrentURL: rc.Session.CurrentURL(ctx),
			Live:       true,
		}, nil
	}
	return simulateWait(ctx, step)
}

// Action returns the workflow action this executor handles.
func (e *WaitExecutor) Action() constants.Action {
	return constants.ActionWait
}

// waitDuration parses the step value as seconds, falling back to the
// default pause on absent, malformed or negative values.
func waitDuration(value string) time.Duration {
	seconds := constants.DefaultWaitSeconds
	if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && v >= 0 {
		seconds = v
	}
	return time.Duration(seconds * float64(time.Second))
}
