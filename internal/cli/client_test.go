package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// TestNewAPIClientTrimsSlash verifies base URL normalization.
func TestNewAPIClientTrimsSlash(t *testing.T) {
	client := newAPIClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", client.baseURL)
}

// TestAPIClientListWorkflows verifies list decoding, run metadata included.
func TestAPIClientListWorkflows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/workflows", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id":"0b1f8a9e-2d4c-4f7a-9a6b-3c5d7e9f1a2b","name":"Daily price check","steps":[{"step_number":1,"action":"navigate"}],"trigger_type":"scheduled","status":"active","run_count":4,"last_run":{"id":"7c0a2f00-0000-4000-8000-000000000000","status":"completed","created_at":"2026-08-20T09:00:00Z"}},
			{"id":"1c2d3e4f-0000-4000-8000-000000000000","name":"Login smoke test","steps":[],"trigger_type":"manual","status":"paused","run_count":0}
		]`)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	workflows, err := client.ListWorkflows(context.Background())

	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "Daily price check", workflows[0].Name)
	assert.Equal(t, 4, workflows[0].RunCount)
	require.NotNil(t, workflows[0].LastRun)
	assert.Equal(t, constants.RunStatusCompleted, workflows[0].LastRun.Status)
	assert.Nil(t, workflows[1].LastRun)
}

// TestAPIClientGetWorkflowNotFound verifies 404 handling carries the
// server's detail message.
func TestAPIClientGetWorkflowNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"workflow not found"}`)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	_, err := client.GetWorkflow(context.Background(), "nope")

	require.Error(t, err)
	assert.True(t, isNotFound(err))
	assert.Contains(t, err.Error(), "workflow not found")
}

// TestAPIClientErrorWithoutDetail verifies the bare-status fallback for
// empty error bodies.
func TestAPIClientErrorWithoutDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	err := client.Health(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server returned status 502")
}

// TestAPIClientUnreachable verifies connection errors name the server URL.
func TestAPIClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // deliberately closed

	client := newAPIClient(srv.URL)
	err := client.Health(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "webrun server unreachable at "+srv.URL)
}

// TestAPIClientCreateWorkflow verifies the create request body and
// response decoding.
func TestAPIClientCreateWorkflow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/workflows", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload workflowPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Checkout", payload.Name)
		require.Len(t, payload.Steps, 1)
		assert.Equal(t, constants.ActionNavigate, payload.Steps[0].Action)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"9d8c7b6a-0000-4000-8000-000000000000","name":%q,"steps":[],"trigger_type":"manual","status":"active"}`, payload.Name)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	created, err := client.CreateWorkflow(context.Background(), &workflowPayload{
		Name:  "Checkout",
		Steps: []domain.StepDefinition{{StepNumber: 1, Action: constants.ActionNavigate, Target: "https://example.com"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "9d8c7b6a-0000-4000-8000-000000000000", created.ID)
	assert.Equal(t, "Checkout", created.Name)
}

// TestAPIClientTriggerRun verifies the run trigger acknowledgement.
func TestAPIClientTriggerRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/workflows/wf-1/run", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"run_id":"7c0a2f00-0000-4000-8000-000000000000","status":"pending","trigger":"manual"}`)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	ack, err := client.TriggerRun(context.Background(), "wf-1")

	require.NoError(t, err)
	assert.Equal(t, "7c0a2f00-0000-4000-8000-000000000000", ack.RunID)
	assert.Equal(t, constants.RunStatusPending, ack.Status)
}

// TestAPIClientListRunsFilter verifies the workflow filter parameter.
func TestAPIClientListRunsFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/runs", r.URL.Path)
		assert.Equal(t, "wf-1", r.URL.Query().Get("workflow_id"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	runs, err := client.ListRuns(context.Background(), "wf-1")

	require.NoError(t, err)
	assert.Empty(t, runs)
}

// TestAPIClientResolve verifies the decision request body.
func TestAPIClientResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/runs/run-1/steps/step-9/resolve", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "retry", body["decision"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"detail":"decision accepted"}`)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	err := client.Resolve(context.Background(), "run-1", "step-9", constants.DecisionRetry)

	require.NoError(t, err)
}

// TestAPIClientStreamEvents verifies SSE parsing: data lines become
// events, other lines are ignored, and the terminal event ends the stream.
func TestAPIClientStreamEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/runs/run-1/live", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		fmt.Fprint(w, ": stream opened\n\n")
		fmt.Fprint(w, "data: {\"type\":\"run_started\",\"run_id\":\"run-1\",\"total_steps\":2}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"step_started\",\"run_id\":\"run-1\",\"step_number\":1,\"action\":\"navigate\"}\n\n")
		fmt.Fprint(w, "data: not json, must be skipped\n\n")
		fmt.Fprint(w, "data: {\"type\":\"run_completed\",\"run_id\":\"run-1\"}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	events, err := client.StreamEvents(context.Background(), "run-1")
	require.NoError(t, err)

	var received []domain.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				require.Len(t, received, 3)
				assert.Equal(t, domain.EventRunStarted, received[0].Type)
				assert.Equal(t, domain.EventStepStarted, received[1].Type)
				assert.Equal(t, domain.EventRunCompleted, received[2].Type)
				return
			}
			received = append(received, ev)
		case <-timeout:
			t.Fatal("event stream did not close after terminal event")
		}
	}
}

// TestAPIClientStreamEventsNotFound verifies error decoding before the
// stream starts.
func TestAPIClientStreamEventsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"run not found"}`)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	_, err := client.StreamEvents(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

// TestAPIClientStreamEventsContextCancel verifies the channel closes when
// the caller gives up on a silent stream.
func TestAPIClientStreamEventsContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := newAPIClient(srv.URL)
	events, err := client.StreamEvents(ctx, "run-1")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should close without delivering events")
	case <-time.After(5 * time.Second):
		t.Fatal("event channel did not close after context cancel")
	}
}
