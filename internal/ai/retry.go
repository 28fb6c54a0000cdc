package ai

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/errors"
)

// timeSleep is a wrapper for time.After that can be overridden in tests.
// It returns a channel that receives after the given duration.
//
//nolint:gochecknoglobals // Required for test mocking
var timeSleep = func(d interface{ Nanoseconds() int64 }) <-chan time.Time {
	return time.After(time.Duration(d.Nanoseconds()))
}

// invokeFunc performs one model call attempt.
type invokeFunc func() (string, error)

// InvokeWithRetry calls Invoke and retries throttled attempts. Waits grow
// linearly (5s, 10s, 15s, ...) and the throttle gate is cleared before each
// retry so the client does not reject the attempt itself. Non-throttle
// errors return immediately.
func (c *Client) InvokeWithRetry(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	return c.withRetry(ctx, func() (string, error) {
		return c.Invoke(ctx, prompt, system, maxTokens)
	})
}

// InvokeVisionWithRetry is InvokeWithRetry for multimodal calls.
func (c *Client) InvokeVisionWithRetry(ctx context.Context, prompt, system string, png []byte, maxTokens int) (string, error) {
	return c.withRetry(ctx, func() (string, error) {
		return c.InvokeVision(ctx, prompt, system, png, maxTokens)
	})
}

func (c *Client) withRetry(ctx context.Context, invoke invokeFunc) (string, error) {
	if c == nil {
		return "", errors.ErrAIUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		out, err := invoke()
		if err == nil {
			if attempt > 1 {
				c.logger.Info().Int("attempt", attempt).Msg("model call succeeded after retry")
			}
			return out, nil
		}
		if !stderrors.Is(err, errors.ErrThrottled) {
			return "", err
		}

		lastErr = err
		if attempt < c.maxAttempts {
			wait := time.Duration(attempt) * constants.AIRetryWaitUnit
			c.logger.Warn().
				Int("attempt", attempt).
				Int("max_attempts", c.maxAttempts).
				Dur("wait", wait).
				Msg("model call throttled, will retry")

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-timeSleep(wait):
			}
			c.ClearThrottle()
		}
	}

	return "", errors.Wrapf(lastErr, "max retries (%d) exceeded", c.maxAttempts)
}
