package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/browser"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// Session is the live-browser surface the executors drive.
// *browser.Session implements it. A nil Session routes steps to the AI and
// simulation backends.
type Session interface {
	// Navigate loads a URL and returns the page-load record.
	Navigate(ctx context.Context, rawURL string) (*domain.NavigateResult, error)

	// ClickElement locates the target and clicks it.
	ClickElement(ctx context.Context, target string) (*domain.ClickResult, error)

	// TypeText locates the target input and fills it with value.
	TypeText(ctx context.Context, target, value, description string) (*domain.TypeResult, error)

	// Harvest collects the current page's visible content.
	Harvest(ctx context.Context) (*browser.RawContent, error)

	// WaitIdle waits best-effort for the network to go quiet.
	WaitIdle(ctx context.Context, limit time.Duration)

	// CurrentURL returns the page's current URL, empty on failure.
	CurrentURL(ctx context.Context) string
}

// Assistant is the AI surface the executors consume. *ai.Client implements
// it, including as a nil pointer whose Available reports false.
type Assistant interface {
	// Available reports whether the assistant can take a call right now.
	Available() bool

	// StructureContent shapes harvested page content into structured data.
	StructureContent(ctx context.Context, pageTitle, url, pageText, description, target string) (map[string]any, error)

	// GenerateExtract synthesizes extraction data from prior step context.
	GenerateExtract(ctx context.Context, contextLines []string, description, target string) (map[string]any, error)

	// EvaluateCondition evaluates a condition against previous result data.
	EvaluateCondition(ctx context.Context, condition, prevDataJSON string) (*ai.ConditionalVerdict, error)
}

// RunContext carries the per-run backends and history an executor needs.
// The engine builds one per run and appends to History as steps finish.
type RunContext struct {
	// RunID identifies the owning run, for log correlation.
	RunID string

	// Session is the run's browser session, nil when the run is simulated.
	Session Session

	// AI is the model client, nil when AI assistance is disabled.
	AI Assistant

	// History holds the run's earlier steps in execution order, with their
	// final status and result data. Conditional evaluation reads the most
	// recent completed result from here; generative extraction builds its
	// prompt context from it.
	History []*domain.Step
}

// Live reports whether a browser session backs this run.
func (rc *RunContext) Live() bool {
	return rc.Session != nil
}

// aiUsable reports whether the assistant can serve a call. Available folds
// in the throttle gate, so a throttled client routes straight to fallback.
func (rc *RunContext) aiUsable() bool {
	return rc.AI != nil && rc.AI.Available()
}

// prevCompletedData returns the most recent completed step's result JSON,
// or "" when no step has completed yet.
func prevCompletedData(history []*domain.Step) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status == constants.StepStatusCompleted {
			return history[i].ResultData
		}
	}
	return ""
}

// extractContext builds the generative-extract prompt context: the last
// three completed steps, each followed by a compacted result line.
func extractContext(history []*domain.Step) []string {
	var completed []*domain.Step
	for _, s := range history {
		if s.Status == constants.StepStatusCompleted {
			completed = append(completed, s)
		}
	}
	if len(completed) > 3 {
		completed = completed[len(completed)-3:]
	}

	lines := make([]string, 0, len(completed)*2)
	for _, s := range completed {
		lines = append(lines, fmt.Sprintf("Step %d (%s): %s", s.StepNumber, s.Action, s.Description))
		if s.ResultData == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(s.ResultData), &v); err != nil {
			continue
		}
		compact, err := json.Marshal(v)
		if err != nil {
			continue
		}
		lines = append(lines, "  Result: "+clip(string(compact), 300))
	}
	return lines
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
