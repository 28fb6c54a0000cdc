package server

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/constants"
)

// TestRunSummaryLocalFallback verifies the deterministic summary composed
// without a model: progress, duration, extraction and failure counts.
func TestRunSummaryLocalFallback(t *testing.T) {
	srv, st, _ := newTestServer(t, nil, nil)

	wf := seedWorkflow(t, st, def(1, constants.ActionNavigate, "https://demo.example.com"))
	run := seedRun(t, st, wf.ID, constants.RunStatusFailed, 3, 2)
	seedStep(t, st, run.ID, 1, constants.ActionNavigate, constants.StepStatusCompleted)
	seedStep(t, st, run.ID, 2, constants.ActionExtract, constants.StepStatusCompleted)
	seedStep(t, st, run.ID, 3, constants.ActionClick, constants.StepStatusFailed)

	var body summaryBody
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/runs/"+run.ID+"/summary", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, body.AIGenerated)
	assert.Equal(t,
		"**checkout smoke** completed 2/3 steps in 3.0s. "+
			"Successfully extracted data from 1 source(s). "+
			"1 step(s) failed during execution.",
		body.Summary)
}

// TestRunSummaryLocalCompleted verifies a fully successful run closes its
// summary with the completion line.
func TestRunSummaryLocalCompleted(t *testing.T) {
	srv, st, _ := newTestServer(t, nil, nil)

	wf := seedWorkflow(t, st, def(1, constants.ActionNavigate, "https://demo.example.com"))
	run := seedRun(t, st, wf.ID, constants.RunStatusCompleted, 2, 2)
	seedStep(t, st, run.ID, 1, constants.ActionNavigate, constants.StepStatusCompleted)
	seedStep(t, st, run.ID, 2, constants.ActionClick, constants.StepStatusCompleted)

	var body summaryBody
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/runs/"+run.ID+"/summary", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t,
		"**checkout smoke** completed 2/2 steps in 3.0s. "+
			"All objectives were achieved successfully.",
		body.Summary)
}

// TestRunSummaryOrphanRun verifies a run whose workflow was deleted still
// summarizes, under a generic name.
func TestRunSummaryOrphanRun(t *testing.T) {
	srv, st, _ := newTestServer(t, nil, nil)
	run := seedRun(t, st, "deleted-workflow", constants.RunStatusCompleted, 1, 1)

	var body summaryBody
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/runs/"+run.ID+"/summary", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body.Summary, "**Workflow** completed 1/1 steps")
}

// TestRunSummaryModel verifies the model path: the handler hands the model
// the workflow name, run status and one annotated line per step.
func TestRunSummaryModel(t *testing.T) {
	model := &mockSummarizer{available: true, summary: "Checkout passed end to end."}
	srv, st, _ := newTestServer(t, nil, nil, WithAI(model))

	wf := seedWorkflow(t, st, def(1, constants.ActionNavigate, "https://demo.example.com"))
	run := seedRun(t, st, wf.ID, constants.RunStatusFailed, 2, 1)

	first := seedStep(t, st, run.ID, 1, constants.ActionNavigate, constants.StepStatusCompleted)
	first.ResultData = `{"url":"https://demo.example.com"}`
	require.NoError(t, st.UpdateStep(context.Background(), first))

	second := seedStep(t, st, run.ID, 2, constants.ActionClick, constants.StepStatusFailed)
	second.ErrorMessage = "ElementNotFound: #pay"
	require.NoError(t, st.UpdateStep(context.Background(), second))

	var body summaryBody
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/runs/"+run.ID+"/summary", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, body.AIGenerated)
	assert.Equal(t, "Checkout passed end to end.", body.Summary)
	assert.Equal(t, "checkout smoke", model.lastName)
	assert.Equal(t, "failed", model.lastStatus)
	require.Equal(t, []string{
		`Step 1 (navigate) - step 1: passed | Data: {"url":"https://demo.example.com"}`,
		"Step 2 (click) - step 2: FAILED | Error: ElementNotFound: #pay",
	}, model.lastDetails)
}

// TestRunSummaryModelFailure verifies a model error degrades to the local
// summary instead of failing the request.
func TestRunSummaryModelFailure(t *testing.T) {
	model := &mockSummarizer{available: true, err: errors.New("throttled")}
	srv, st, _ := newTestServer(t, nil, nil, WithAI(model))

	wf := seedWorkflow(t, st, def(1, constants.ActionNavigate, "https://demo.example.com"))
	run := seedRun(t, st, wf.ID, constants.RunStatusCompleted, 1, 1)
	seedStep(t, st, run.ID, 1, constants.ActionNavigate, constants.StepStatusCompleted)

	var body summaryBody
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/runs/"+run.ID+"/summary", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, body.AIGenerated)
	assert.Contains(t, body.Summary, "**checkout smoke** completed 1/1 steps")
}

// TestRunSummaryUnknownRun verifies the 404 path.
func TestRunSummaryUnknownRun(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/runs/nope/summary", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestStepSuggestionsStatic verifies the canned advice path matches on the
// error category embedded in the step's message.
func TestStepSuggestionsStatic(t *testing.T) {
	srv, st, _ := newTestServer(t, nil, nil)

	wf := seedWorkflow(t, st, def(1, constants.ActionClick, "#buy"))
	run := seedRun(t, st, wf.ID, constants.RunStatusFailed, 1, 0)
	step := seedStep(t, st, run.ID, 1, constants.ActionClick, constants.StepStatusFailed)
	step.ErrorMessage = "ElementNotFound: no usable element for '#buy'"
	require.NoError(t, st.UpdateStep(context.Background(), step))

	var body suggestionBody
	rec := doJSON(t, srv.Handler(), http.MethodGet,
		"/api/runs/"+run.ID+"/steps/"+step.ID+"/suggestions", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, body.AIGenerated)
	assert.Equal(t, ai.StaticSuggestion(step.ErrorMessage), body.Suggestion)
	assert.Contains(t, body.Suggestion, "CSS selector")
}

// TestStepSuggestionsModel verifies the model path receives the step's
// action, target and error message.
func TestStepSuggestionsModel(t *testing.T) {
	model := &mockSummarizer{available: true, suggestion: "Switch to the data-testid selector."}
	srv, st, _ := newTestServer(t, nil, nil, WithAI(model))

	wf := seedWorkflow(t, st, def(1, constants.ActionClick, "#buy"))
	run := seedRun(t, st, wf.ID, constants.RunStatusFailed, 1, 0)
	step := seedStep(t, st, run.ID, 1, constants.ActionClick, constants.StepStatusFailed)
	step.Target = "#buy"
	step.ErrorMessage = "ElementObscured: cookie banner intercepts clicks"
	require.NoError(t, st.UpdateStep(context.Background(), step))

	var body suggestionBody
	rec := doJSON(t, srv.Handler(), http.MethodGet,
		"/api/runs/"+run.ID+"/steps/"+step.ID+"/suggestions", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, body.AIGenerated)
	assert.Equal(t, "Switch to the data-testid selector.", body.Suggestion)
	assert.Equal(t, "click", model.lastAction)
	assert.Equal(t, "#buy", model.lastTarget)
	assert.Equal(t, step.ErrorMessage, model.lastErrMsg)
}

// TestStepSuggestionsRequireError verifies a step with no recorded failure
// is rejected, and unknown records 404.
func TestStepSuggestionsRequireError(t *testing.T) {
	srv, st, _ := newTestServer(t, nil, nil)

	wf := seedWorkflow(t, st, def(1, constants.ActionNavigate, "https://demo.example.com"))
	run := seedRun(t, st, wf.ID, constants.RunStatusCompleted, 1, 1)
	step := seedStep(t, st, run.ID, 1, constants.ActionNavigate, constants.StepStatusCompleted)

	rec := doJSON(t, srv.Handler(), http.MethodGet,
		"/api/runs/"+run.ID+"/steps/"+step.ID+"/suggestions", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "step has no recorded error", detailOf(t, rec))

	rec = doJSON(t, srv.Handler(), http.MethodGet,
		"/api/runs/"+run.ID+"/steps/nope/suggestions", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet,
		"/api/runs/nope/steps/"+step.ID+"/suggestions", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
