package ai

import (
	"context"
	"strings"
)

// Heal asks the model to repair a failed step. The returned fix carries a
// replacement target and/or value plus a human-readable explanation.
func (c *Client) Heal(ctx context.Context, action, target, description, errMsg string) (*HealFix, error) {
	raw, err := c.InvokeWithRetry(ctx, healPrompt(action, target, description, errMsg), healSystem, healMaxTokens)
	if err != nil {
		return nil, err
	}
	var fix HealFix
	if err := decodeJSON(raw, &fix); err != nil {
		return nil, err
	}
	return &fix, nil
}

// StructureContent asks the model to reshape harvested page content per the
// extraction description. The result is arbitrary JSON keyed by the model.
func (c *Client) StructureContent(ctx context.Context, pageTitle, url, pageText, description, target string) (map[string]any, error) {
	raw, err := c.Invoke(ctx, extractPrompt(pageTitle, url, pageText, description, target), extractSystem, extractMaxTokens)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := decodeJSON(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// GenerateExtract asks the model to synthesize extraction output from prior
// step context. Used when no browser page is available.
func (c *Client) GenerateExtract(ctx context.Context, contextLines []string, description, target string) (map[string]any, error) {
	raw, err := c.Invoke(ctx, generativeExtractPrompt(contextLines, description, target), extractSystem, extractMaxTokens)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := decodeJSON(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// EvaluateCondition asks the model to judge a conditional expression against
// the previous step's result data (as JSON text).
func (c *Client) EvaluateCondition(ctx context.Context, condition, prevDataJSON string) (*ConditionalVerdict, error) {
	raw, err := c.Invoke(ctx, conditionalPrompt(condition, prevDataJSON), conditionalSystem, conditionalMaxTokens)
	if err != nil {
		return nil, err
	}
	var verdict ConditionalVerdict
	if err := decodeJSON(raw, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// PickElement sends a screenshot plus element digest to the vision model and
// returns its selector choice.
func (c *Client) PickElement(ctx context.Context, png []byte, target, action string, elements []ElementInfo) (*ElementPick, error) {
	raw, err := c.InvokeVisionWithRetry(ctx, visionPrompt(target, action, elements), visionSystem, png, visionMaxTokens)
	if err != nil {
		return nil, err
	}
	var pick ElementPick
	if err := decodeJSON(raw, &pick); err != nil {
		return nil, err
	}
	return &pick, nil
}

// SummarizeRun asks the model for a 2-3 sentence run summary.
func (c *Client) SummarizeRun(ctx context.Context, workflowName, status string, completed, total int, stepDetails []string) (string, error) {
	raw, err := c.Invoke(ctx, summaryPrompt(workflowName, status, completed, total, stepDetails), summarySystem, summaryMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// SuggestFix asks the model to analyze a step failure. Callers fall back to
// StaticSuggestion when the model is unavailable.
func (c *Client) SuggestFix(ctx context.Context, action, description, target, errMsg string) (string, error) {
	raw, err := c.Invoke(ctx, suggestionPrompt(action, description, target, errMsg), suggestionSystem, suggestionMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// staticSuggestions maps error categories to canned fix advice, keyed by the
// wire names embedded in step error messages.
var staticSuggestions = map[string]string{ //nolint:gochecknoglobals // Static lookup table
	"ElementNotFound": "The target element may have changed. Try using a more specific CSS selector or waiting for the element to appear with a `wait` step before this one.",
	"TimeoutError":    "The page took too long to load. Increase the step timeout in Settings, or add a `wait` step before this action to ensure content is ready.",
	"AccessDenied":    "The page requires authentication. Add a login step before accessing this resource, or check if cookies/sessions have expired.",
	"ElementObscured": "A popup or overlay is blocking the element. Add a step to dismiss any modals or cookie banners before clicking.",
	"ElementDisabled": "The target button is disabled, likely because required form fields are empty. Ensure all prerequisite fields are filled before this step.",
	"StaleElement":    "The page re-rendered while trying to interact with the element. Add a short `wait` step (1-2s) before retrying.",
	"ParseError":      "The page structure has changed. Update the extraction target to match the current page layout.",
}

// defaultSuggestion is returned when no category matches the error message.
const defaultSuggestion = "Try retrying the step. If the error persists, check the target selector and ensure the page is fully loaded."

// StaticSuggestion returns canned fix advice for a step error message.
// Matching is case-insensitive on the error category names.
func StaticSuggestion(errMsg string) string {
	lower := strings.ToLower(errMsg)
	for key, advice := range staticSuggestions {
		if strings.Contains(lower, strings.ToLower(key)) {
			return advice
		}
	}
	return defaultSuggestion
}
