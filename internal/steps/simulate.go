package steps

import (
	"context"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
)

// Simulated results let a run proceed with plausible data when neither a
// browser nor the model can serve a step. Delays approximate real page
// timing so live views of a simulated run still read naturally.

// timeSleep is the context-aware pause used by wait steps and simulated
// action delays; tests swap it out.
var timeSleep = ctxutil.Sleep

type delayRange struct {
	min, max time.Duration
}

// simDelays holds the per-action pause window. Wait steps pause for their
// own value instead.
var simDelays = map[constants.Action]delayRange{
	constants.ActionNavigate:    {min: 1000 * time.Millisecond, max: 2500 * time.Millisecond},
	constants.ActionClick:       {min: 400 * time.Millisecond, max: 1200 * time.Millisecond},
	constants.ActionType:        {min: 500 * time.Millisecond, max: 1000 * time.Millisecond},
	constants.ActionExtract:     {min: 1500 * time.Millisecond, max: 3000 * time.Millisecond},
	constants.ActionConditional: {min: 200 * time.Millisecond, max: 500 * time.Millisecond},
}

// simPause sleeps a random duration within the action's delay window.
func simPause(ctx context.Context, action constants.Action) error {
	r, ok := simDelays[action]
	if !ok {
		return nil
	}
	span := int64(r.max - r.min)
	d := r.min + time.Duration(rand.Int63n(span+1)) //nolint:gosec // non-cryptographic, simulated timing only
	return timeSleep(ctx, d)
}

// simulateNavigate fabricates a successful page load.
func simulateNavigate(ctx context.Context, step *domain.Step) (*domain.NavigateResult, error) {
	if err := simPause(ctx, constants.ActionNavigate); err != nil {
		return nil, err
	}
	target := step.Target
	if target == "" {
		target = "https://example.com"
	}
	return &domain.NavigateResult{
		URL:        target,
		StatusCode: 200,
		PageTitle:  "Page at " + simHost(target),
		LoadTimeMS: 200 + rand.Int63n(1801), //nolint:gosec // non-cryptographic, simulated timing only
		DOMReady:   true,
		Simulated:  true,
	}, nil
}

// simulateClick fabricates a successful click.
func simulateClick(ctx context.Context, step *domain.Step) (*domain.ClickResult, error) {
	if err := simPause(ctx, constants.ActionClick); err != nil {
		return nil, err
	}
	element := step.Target
	if element == "" {
		element = defaultClickTarget
	}
	return &domain.ClickResult{
		Element:        element,
		Clicked:        true,
		ResponseTimeMS: 50 + rand.Int63n(251), //nolint:gosec // non-cryptographic, simulated timing only
		Simulated:      true,
	}, nil
}

// simulateType fabricates a successful fill.
func simulateType(ctx context.Context, step *domain.Step) (*domain.TypeResult, error) {
	if err := simPause(ctx, constants.ActionType); err != nil {
		return nil, err
	}
	element := step.Target
	if element == "" {
		element = defaultTypeTarget
	}
	return &domain.TypeResult{
		Element:     element,
		TextEntered: step.Value,
		Characters:  utf8.RuneCountInString(step.Value),
		Simulated:   true,
	}, nil
}

// simulateExtract fabricates a small extraction record.
func simulateExtract(ctx context.Context, step *domain.Step) (map[string]any, error) {
	if err := simPause(ctx, constants.ActionExtract); err != nil {
		return nil, err
	}
	return map[string]any{
		"note":            "Simulated extraction - no live browser available",
		"page_title":      "Simulated Page",
		"items_extracted": 3 + rand.Intn(13), //nolint:gosec // non-cryptographic, simulated filler
		"content": []map[string]string{
			{"tag": "h1", "text": "Results for: " + clip(step.Description, 50)},
			{"tag": "p", "text": "This is simulated content. Real browser automation will extract actual page data."},
		},
		"simulated": true,
	}, nil
}

// simulateWait pauses for the step value and fabricates the wait record.
func simulateWait(ctx context.Context, step *domain.Step) (*domain.WaitResult, error) {
	pause := waitDuration(step.Value)
	if err := timeSleep(ctx, pause); err != nil {
		return nil, err
	}
	return &domain.WaitResult{
		WaitedMS:  pause.Milliseconds(),
		PageReady: true,
		Simulated: true,
	}, nil
}

// simulateConditional fabricates a verdict. Without a page or a model there
// is nothing to evaluate against, so the run continues.
func simulateConditional(ctx context.Context, condition string) (*domain.ConditionalResult, error) {
	if err := simPause(ctx, constants.ActionConditional); err != nil {
		return nil, err
	}
	return &domain.ConditionalResult{
		Expression:  condition,
		EvaluatedTo: true,
		BranchTaken: domain.BranchContinue,
		Simulated:   true,
	}, nil
}

// simHost extracts the host portion of a URL for the simulated page title,
// falling back to the raw target when it carries no scheme.
func simHost(target string) string {
	i := strings.Index(target, "//")
	if i < 0 {
		return target
	}
	rest := target[i+2:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return rest[:j]
	}
	return rest
}
