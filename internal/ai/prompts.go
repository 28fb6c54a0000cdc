package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/webrunhq/webrun/internal/errors"
)

// System prompts. Each keeps the model on a strict JSON contract so responses
// can be parsed without free-text cleanup beyond fence stripping.
const (
	extractSystem = `You are a web data extraction AI. Given raw page content and a description of what to extract,
parse the content and return structured JSON data.

Return ONLY valid JSON. The data should be well-structured with appropriate field names.
Always return an object (not an array at the top level).`

	conditionalSystem = `You are a condition evaluator for browser automation. Given a condition expression
and the result data from previous steps, evaluate whether the condition is true or false.

Return ONLY a JSON object with:
- "evaluated_to": true or false
- "reason": brief explanation of the evaluation`

	healSystem = "You are a browser automation debugging expert. Return ONLY valid JSON."

	visionSystem = "You are a browser automation expert. Given a screenshot and element list, identify the correct interactive element. Return ONLY valid JSON."

	summarySystem = "You are a concise business analyst. Summarize workflow results clearly."

	suggestionSystem = "You are a browser automation debugging expert. Be concise and actionable."
)

// Per-call completion budgets.
const (
	extractMaxTokens     = 2048
	conditionalMaxTokens = 256
	healMaxTokens        = 512
	visionMaxTokens      = 256
	summaryMaxTokens     = 256
	suggestionMaxTokens  = 256
)

// HealFix is the model's proposed repair for a failed step.
type HealFix struct {
	FixedTarget string `json:"fixed_target"`
	FixedValue  string `json:"fixed_value"`
	Explanation string `json:"explanation"`
}

// ConditionalVerdict is the model's evaluation of a conditional expression.
type ConditionalVerdict struct {
	EvaluatedTo bool   `json:"evaluated_to"`
	Reason      string `json:"reason"`
}

// ElementPick is the model's choice of selector for a vision locate call.
type ElementPick struct {
	Selector string `json:"selector"`
	Reason   string `json:"reason"`
}

// ElementInfo describes one interactive element harvested from the page for
// the vision prompt. Field names match the in-page collection script so the
// evaluate result unmarshals directly.
type ElementInfo struct {
	Idx         int    `json:"idx"`
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	AriaLabel   string `json:"ariaLabel"`
	ClassName   string `json:"className"`
	Visible     bool   `json:"visible"`
	Text        string `json:"text"`
}

// extractPrompt asks the model to structure harvested page content.
func extractPrompt(pageTitle, url, pageText, description, target string) string {
	return fmt.Sprintf(`Page: %s (%s)

Page content:
%s

Extraction task: %s
Target: %s

Extract the requested data from the page content above. Return ONLY valid JSON.`,
		pageTitle, url, pageText, description, target)
}

// generativeExtractPrompt asks the model to synthesize extraction data from
// prior step context when no page is available.
func generativeExtractPrompt(contextLines []string, description, target string) string {
	return fmt.Sprintf(`Previous steps context:
%s

Current step: Extract data
Description: %s
Target: %s

Generate realistic, detailed structured JSON data that would be extracted from this page.
Return ONLY valid JSON.`,
		strings.Join(contextLines, "\n"), description, target)
}

// conditionalPrompt asks the model to evaluate a condition against the
// previous step's result data.
func conditionalPrompt(condition, prevDataJSON string) string {
	return fmt.Sprintf(`Condition to evaluate: %s

Previous step result data:
%s

Evaluate this condition based on the data. Return JSON with "evaluated_to" (boolean) and "reason" (string).`,
		condition, prevDataJSON)
}

// healPrompt asks the model to repair a failed step.
func healPrompt(action, target, description, errMsg string) string {
	return fmt.Sprintf(`A browser automation step failed. Suggest a fix.

Step: %s on target "%s"
Description: %s
Error: %s

Return JSON: {"fixed_target": "...", "fixed_value": "...", "explanation": "..."}`,
		action, target, description, errMsg)
}

// visionPrompt asks the vision model to pick a selector for the target from
// a screenshot plus a digest of the page's interactive elements.
func visionPrompt(target, action string, elements []ElementInfo) string {
	actionHint := ""
	switch action {
	case "type":
		actionHint = "\nIMPORTANT: The action is TYPE/FILL — you MUST return an <input>, <textarea>, <select>, or [contenteditable] element. Do NOT return links (<a>) or buttons."
	case "click":
		actionHint = "\nThe action is CLICK — return a clickable element (link, button, or interactive element)."
	}

	return fmt.Sprintf(`I need to find this element on the page: "%s"

Here are the interactive elements on the page:
%s

Look at the screenshot and the element list. Which element best matches "%s"?%s

Return ONLY a JSON object with:
- "selector": a CSS selector that uniquely identifies the correct element
- "reason": brief explanation of why this element matches

The selector must target a VISIBLE, REAL element (not a honeypot or hidden field).
Return ONLY valid JSON, nothing else.`,
		target, formatElements(elements), target, actionHint)
}

// formatElements renders the element digest for the vision prompt, skipping
// invisible entries.
func formatElements(elements []ElementInfo) string {
	var lines []string
	for _, el := range elements {
		if !el.Visible {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] <%s", el.Idx, el.Tag)
		if el.Type != "" {
			fmt.Fprintf(&b, " type=%q", el.Type)
		}
		if el.ID != "" {
			fmt.Fprintf(&b, " id=%q", el.ID)
		}
		if el.Name != "" {
			fmt.Fprintf(&b, " name=%q", el.Name)
		}
		if el.Placeholder != "" {
			fmt.Fprintf(&b, " placeholder=%q", el.Placeholder)
		}
		if el.AriaLabel != "" {
			fmt.Fprintf(&b, " aria-label=%q", el.AriaLabel)
		}
		b.WriteString(">")
		if el.Text != "" {
			fmt.Fprintf(&b, " %q", el.Text)
		}
		lines = append(lines, b.String())
	}
	if len(lines) == 0 {
		return "(no visible interactive elements found)"
	}
	return strings.Join(lines, "\n")
}

// summaryPrompt asks the model for a short business-facing run summary.
func summaryPrompt(workflowName, status string, completed, total int, stepDetails []string) string {
	return fmt.Sprintf(`Summarize this workflow run in 2-3 concise sentences for a business user.

Workflow: %s
Status: %s
Steps completed: %d/%d

Step details:
%s

Write a natural, insightful summary focusing on key findings and results. Be specific with numbers and data points.`,
		workflowName, status, completed, total, strings.Join(stepDetails, "\n"))
}

// suggestionPrompt asks the model to explain a step failure and propose fixes.
func suggestionPrompt(action, description, target, errMsg string) string {
	if description == "" {
		description = "N/A"
	}
	if target == "" {
		target = "N/A"
	}
	return fmt.Sprintf(`A browser automation step failed. Analyze the error and suggest a fix.

Step: %s - %s
Target: %s
Error: %s

Provide:
1. Root cause (1 sentence)
2. Suggested fix (1-2 sentences)
3. Alternative approach if the fix doesn't work (1 sentence)

Be concise and practical.`,
		action, description, target, errMsg)
}

// stripFences removes a surrounding markdown code fence from a model
// response. Models frequently wrap JSON in ``` blocks despite instructions.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		text = text[3:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// decodeJSON strips fences and unmarshals the response into v, wrapping
// malformed output in ErrAIParse.
func decodeJSON(raw string, v any) error {
	text := stripFences(raw)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return errors.Wrapf(errors.ErrAIParse, "malformed model response: %v", err)
	}
	return nil
}
