package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
)

// requestTimeout caps unary API calls. Event streams use a separate client
// bounded only by their context.
const requestTimeout = 30 * time.Second

// sseMaxLineBytes bounds one SSE line. Step events can carry base64
// screenshots, so the limit is generous.
const sseMaxLineBytes = 4 << 20

// apiClient talks to a running webrun server over its HTTP API.
type apiClient struct {
	baseURL string
	hc      *http.Client
	sse     *http.Client
}

// newAPIClient creates a client for the server at baseURL.
func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: requestTimeout},
		sse:     &http.Client{},
	}
}

// apiError is a non-2xx response from the server, carrying the detail
// message the API puts in its error bodies.
type apiError struct {
	Status int
	Detail string
}

// Error renders the server's detail message, or the bare status when the
// body carried none.
func (e *apiError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return e.Detail
}

// workflowRecord is a workflow as the API returns it, with run metadata.
type workflowRecord struct {
	domain.Workflow
	RunCount int     `json:"run_count"`
	LastRun  *runRef `json:"last_run,omitempty"`
}

// runRef is the compact run reference embedded in workflow listings.
type runRef struct {
	ID        string              `json:"id"`
	Status    constants.RunStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

// runRecord is a run as the API returns it, with the workflow name and,
// on single-run reads, the step records.
type runRecord struct {
	domain.Run
	WorkflowName string         `json:"workflow_name,omitempty"`
	Steps        []*domain.Step `json:"steps,omitempty"`
}

// runStarted is the acknowledgement for a triggered run.
type runStarted struct {
	RunID   string              `json:"run_id"`
	Status  constants.RunStatus `json:"status"`
	Trigger constants.Trigger   `json:"trigger,omitempty"`
}

// workflowPayload is the create-workflow request body.
type workflowPayload struct {
	Name         string                     `json:"name"`
	Description  string                     `json:"description,omitempty"`
	Steps        []domain.StepDefinition    `json:"steps"`
	Variables    map[string]domain.Variable `json:"variables,omitempty"`
	TriggerType  constants.Trigger          `json:"trigger_type,omitempty"`
	ScheduleCron string                     `json:"schedule_cron,omitempty"`
	Status       constants.WorkflowStatus   `json:"status,omitempty"`
}

// summaryRecord is the run summary response.
type summaryRecord struct {
	Summary     string `json:"summary"`
	AIGenerated bool   `json:"ai_generated"`
}

// suggestionRecord is the step fix-suggestion response.
type suggestionRecord struct {
	Suggestion  string `json:"suggestion"`
	AIGenerated bool   `json:"ai_generated"`
}

// do executes one API call. body (when non-nil) is marshaled as JSON;
// out (when non-nil) receives the decoded response body.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return webrunerrors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return webrunerrors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("webrun server unreachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return webrunerrors.Wrap(err, "decode response")
		}
	}
	return nil
}

// decodeAPIError extracts the detail message from an error response.
func decodeAPIError(resp *http.Response) error {
	apiErr := &apiError{Status: resp.StatusCode}

	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		apiErr.Detail = body.Detail
	}
	return apiErr
}

// Health checks the server's liveness endpoint.
func (c *apiClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// ListWorkflows fetches every workflow, newest first.
func (c *apiClient) ListWorkflows(ctx context.Context) ([]workflowRecord, error) {
	var workflows []workflowRecord
	if err := c.do(ctx, http.MethodGet, "/api/workflows", nil, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// GetWorkflow fetches one workflow by ID.
func (c *apiClient) GetWorkflow(ctx context.Context, id string) (*workflowRecord, error) {
	var wf workflowRecord
	if err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// CreateWorkflow persists a new workflow definition.
func (c *apiClient) CreateWorkflow(ctx context.Context, payload *workflowPayload) (*workflowRecord, error) {
	var wf workflowRecord
	if err := c.do(ctx, http.MethodPost, "/api/workflows", payload, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// DeleteWorkflow removes a workflow definition. Run history survives.
func (c *apiClient) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/workflows/"+url.PathEscape(id), nil, nil)
}

// TriggerRun starts a manual run of the workflow.
func (c *apiClient) TriggerRun(ctx context.Context, workflowID string) (*runStarted, error) {
	var ack runStarted
	if err := c.do(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(workflowID)+"/run", nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// ListRuns fetches run records, newest first. workflowID filters when
// non-empty.
func (c *apiClient) ListRuns(ctx context.Context, workflowID string) ([]runRecord, error) {
	path := "/api/runs"
	if workflowID != "" {
		path += "?workflow_id=" + url.QueryEscape(workflowID)
	}

	var runs []runRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun fetches one run with its step records.
func (c *apiClient) GetRun(ctx context.Context, runID string) (*runRecord, error) {
	var run runRecord
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Resolve submits a retry/skip decision for a failed step.
func (c *apiClient) Resolve(ctx context.Context, runID, stepID string, decision constants.Decision) error {
	body := map[string]string{"decision": string(decision)}
	path := "/api/runs/" + url.PathEscape(runID) + "/steps/" + url.PathEscape(stepID) + "/resolve"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// Abort cancels a running run.
func (c *apiClient) Abort(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/abort", nil, nil)
}

// RunSummary fetches the run's natural-language summary.
func (c *apiClient) RunSummary(ctx context.Context, runID string) (*summaryRecord, error) {
	var summary summaryRecord
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID)+"/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// StepSuggestions fetches fix suggestions for a failed step.
func (c *apiClient) StepSuggestions(ctx context.Context, runID, stepID string) (*suggestionRecord, error) {
	path := "/api/runs/" + url.PathEscape(runID) + "/steps/" + url.PathEscape(stepID) + "/suggestions"

	var suggestion suggestionRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &suggestion); err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// StreamEvents opens the run's live SSE stream and delivers its events on
// the returned channel. The channel closes after the terminal event, when
// the context is canceled, or when the connection drops.
func (c *apiClient) StreamEvents(ctx context.Context, runID string) (<-chan domain.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/runs/"+url.PathEscape(runID)+"/live", nil)
	if err != nil {
		return nil, webrunerrors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.sse.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webrun server unreachable at %s: %w", c.baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeAPIError(resp)
	}

	ch := make(chan domain.Event, 16)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), sseMaxLineBytes)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var ev domain.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}()

	return ch, nil
}
