package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/browser"
	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/engine"
	"github.com/webrunhq/webrun/internal/steps"
	"github.com/webrunhq/webrun/internal/store"
)

// newTestServer assembles a server over a fresh in-memory store. execs
// populate the engine's step registry, engOpts attach engine collaborators
// and opts attach server collaborators. The engine is closed on cleanup.
func newTestServer(t *testing.T, execs []steps.Executor, engOpts []engine.Option, opts ...Option) (*Server, *store.MemStore, *engine.Engine) {
	t.Helper()

	st := store.NewMemStore()
	reg := steps.NewRegistry()
	for _, e := range execs {
		reg.Register(e)
	}

	eng := engine.New(st, reg, config.EngineConfig{
		EventQueueSize:    64,
		ResolutionTimeout: 250 * time.Millisecond,
		ScreenshotQuality: 70,
	}, zerolog.Nop(), engOpts...)
	t.Cleanup(eng.Close)

	srv := New(st, eng, config.ServerConfig{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}, zerolog.Nop(), opts...)
	return srv, st, eng
}

// doJSON runs one request through the router. A non-nil body is sent as
// JSON; a non-nil out receives the decoded reply when the status is 2xx.
func doJSON(t *testing.T, h http.Handler, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if out != nil && rec.Code < http.StatusMultipleChoices {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "body: %s", rec.Body.String())
	}
	return rec
}

// newRawRequest builds a request carrying a literal body, for tests that
// send malformed JSON.
func newRawRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// serve runs one request through the router.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// detailOf extracts the detail message from an error or acknowledgement
// body.
func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var d detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d), "body: %s", rec.Body.String())
	return d.Detail
}

// seedWorkflow persists a manual, active workflow with the given steps.
func seedWorkflow(t *testing.T, st store.Store, defs ...domain.StepDefinition) *domain.Workflow {
	t.Helper()

	now := time.Now().UTC()
	wf := &domain.Workflow{
		ID:          uuid.NewString(),
		Name:        "checkout smoke",
		Description: "exercises the purchase path",
		Steps:       defs,
		TriggerType: constants.TriggerManual,
		Status:      constants.WorkflowStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.CreateWorkflow(context.Background(), wf))
	return wf
}

// seedRun persists a run in the given state. Started and terminal states
// get timestamps three seconds apart.
func seedRun(t *testing.T, st store.Store, workflowID string, status constants.RunStatus, total, completed int) *domain.Run {
	t.Helper()

	now := time.Now().UTC()
	run := &domain.Run{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		Status:         status,
		Trigger:        constants.TriggerManual,
		TotalSteps:     total,
		CompletedSteps: completed,
		CreatedAt:      now,
	}
	if status != constants.RunStatusPending {
		started := now.Add(-3 * time.Second)
		run.StartedAt = &started
	}
	if status.IsTerminal() {
		run.CompletedAt = &now
	}
	require.NoError(t, st.CreateRun(context.Background(), run))
	return run
}

// seedStep persists a step record under the run.
func seedStep(t *testing.T, st store.Store, runID string, n int, action constants.Action, status constants.StepStatus) *domain.Step {
	t.Helper()

	step := &domain.Step{
		ID:          uuid.NewString(),
		RunID:       runID,
		StepNumber:  n,
		Action:      action,
		Description: fmt.Sprintf("step %d", n),
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateStep(context.Background(), step))
	return step
}

// def builds a step definition.
func def(n int, action constants.Action, target string) domain.StepDefinition {
	return domain.StepDefinition{
		StepNumber:  n,
		Action:      action,
		Target:      target,
		Description: fmt.Sprintf("step %d", n),
	}
}

// stubExecutor serves one action with a fixed outcome.
type stubExecutor struct {
	action constants.Action
	result any
	err    error

	mu    sync.Mutex
	calls int
}

func (e *stubExecutor) Execute(ctx context.Context, _ *steps.RunContext, _ *domain.Step) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *stubExecutor) Action() constants.Action { return e.action }

// flakyExecutor fails a fixed number of times before succeeding.
type flakyExecutor struct {
	action   constants.Action
	failures int
	cause    error
	result   any

	mu    sync.Mutex
	calls int
}

func (e *flakyExecutor) Execute(ctx context.Context, _ *steps.RunContext, _ *domain.Step) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	e.mu.Lock()
	e.calls++
	n := e.calls
	e.mu.Unlock()

	if n <= e.failures {
		return nil, e.cause
	}
	return e.result, nil
}

func (e *flakyExecutor) Action() constants.Action { return e.action }

// gatedExecutor parks until released, keeping its run live while the test
// drives the streaming endpoints.
type gatedExecutor struct {
	action  constants.Action
	release chan struct{}
	result  any
}

func newGatedExecutor(action constants.Action, result any) *gatedExecutor {
	return &gatedExecutor{action: action, release: make(chan struct{}), result: result}
}

func (e *gatedExecutor) Execute(ctx context.Context, _ *steps.RunContext, _ *domain.Step) (any, error) {
	select {
	case <-e.release:
		return e.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *gatedExecutor) Action() constants.Action { return e.action }

// stubSession is a canned browser session for live-mode streaming tests.
type stubSession struct {
	frame   []byte
	shotErr error
}

func (s *stubSession) Navigate(context.Context, string) (*domain.NavigateResult, error) {
	return &domain.NavigateResult{Live: true}, nil
}

func (s *stubSession) ClickElement(context.Context, string) (*domain.ClickResult, error) {
	return &domain.ClickResult{Clicked: true, Live: true}, nil
}

func (s *stubSession) TypeText(context.Context, string, string, string) (*domain.TypeResult, error) {
	return &domain.TypeResult{Live: true}, nil
}

func (s *stubSession) Harvest(context.Context) (*browser.RawContent, error) {
	return &browser.RawContent{}, nil
}

func (s *stubSession) WaitIdle(context.Context, time.Duration) {}

func (s *stubSession) CurrentURL(context.Context) string { return "https://demo.example.com" }

func (s *stubSession) Screenshot(context.Context, int) ([]byte, error) {
	if s.shotErr != nil {
		return nil, s.shotErr
	}
	return s.frame, nil
}

func (s *stubSession) Close() {}

// stubSource hands the same session to every run.
type stubSource struct {
	sess engine.Session
}

func (s *stubSource) NewSession(context.Context) (engine.Session, error) {
	return s.sess, nil
}

// mockSummarizer scripts the model surface behind the summary and
// suggestion handlers.
type mockSummarizer struct {
	mu          sync.Mutex
	available   bool
	summary     string
	suggestion  string
	err         error
	lastName    string
	lastStatus  string
	lastDetails []string
	lastAction  string
	lastTarget  string
	lastErrMsg  string
}

func (m *mockSummarizer) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *mockSummarizer) SummarizeRun(_ context.Context, workflowName, status string, _, _ int, stepDetails []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastName = workflowName
	m.lastStatus = status
	m.lastDetails = stepDetails
	if m.err != nil {
		return "", m.err
	}
	return m.summary, nil
}

func (m *mockSummarizer) SuggestFix(_ context.Context, action, _, target, errMsg string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAction = action
	m.lastTarget = target
	m.lastErrMsg = errMsg
	if m.err != nil {
		return "", m.err
	}
	return m.suggestion, nil
}

// waitForRunStatus polls the store until the run reaches the status.
func waitForRunStatus(t *testing.T, st store.Store, runID string, status constants.RunStatus) *domain.Run {
	t.Helper()

	var run *domain.Run
	require.Eventually(t, func() bool {
		var err error
		run, err = st.GetRun(context.Background(), runID)
		return err == nil && run.Status == status
	}, 5*time.Second, 10*time.Millisecond, "run never reached %s", status)
	return run
}
