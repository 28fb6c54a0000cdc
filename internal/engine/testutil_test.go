package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/browser"
	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/steps"
)

// mockStore implements store.Store in memory for engine tests. Records are
// cloned on write and read so assertions see persisted state, not the
// engine's live pointers.
type mockStore struct {
	mu        sync.Mutex
	workflows map[string]*domain.Workflow
	runs      map[string]*domain.Run
	steps     map[string]map[string]*domain.Step

	updateRunErr  error
	updateStepErr error
	runSaves      int
	stepSaves     int
}

func newMockStore() *mockStore {
	return &mockStore{
		workflows: make(map[string]*domain.Workflow),
		runs:      make(map[string]*domain.Run),
		steps:     make(map[string]map[string]*domain.Step),
	}
}

func cloneRun(r *domain.Run) *domain.Run {
	c := *r
	return &c
}

func cloneStep(s *domain.Step) *domain.Step {
	c := *s
	return &c
}

func (m *mockStore) CreateWorkflow(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; ok {
		return webrunerrors.ErrAlreadyExists
	}
	m.workflows[wf.ID] = wf
	return nil
}

func (m *mockStore) GetWorkflow(_ context.Context, id string) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, webrunerrors.ErrWorkflowNotFound
	}
	return wf, nil
}

func (m *mockStore) UpdateWorkflow(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; !ok {
		return webrunerrors.ErrWorkflowNotFound
	}
	m.workflows[wf.ID] = wf
	return nil
}

func (m *mockStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, id)
	return nil
}

func (m *mockStore) ListWorkflows(_ context.Context) ([]*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, wf)
	}
	return out, nil
}

func (m *mockStore) CreateRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return webrunerrors.ErrAlreadyExists
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, webrunerrors.ErrRunNotFound
	}
	return cloneRun(run), nil
}

func (m *mockStore) UpdateRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runSaves++
	if m.updateRunErr != nil {
		return m.updateRunErr
	}
	if _, ok := m.runs[run.ID]; !ok {
		return webrunerrors.ErrRunNotFound
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *mockStore) ListRuns(_ context.Context, workflowID string) ([]*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		out = append(out, cloneRun(run))
	}
	return out, nil
}

func (m *mockStore) CreateStep(_ context.Context, step *domain.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps[step.RunID] == nil {
		m.steps[step.RunID] = make(map[string]*domain.Step)
	}
	if _, ok := m.steps[step.RunID][step.ID]; ok {
		return webrunerrors.ErrAlreadyExists
	}
	m.steps[step.RunID][step.ID] = cloneStep(step)
	return nil
}

func (m *mockStore) GetStep(_ context.Context, runID, stepID string) (*domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.steps[runID][stepID]
	if !ok {
		return nil, webrunerrors.ErrStepNotFound
	}
	return cloneStep(step), nil
}

func (m *mockStore) UpdateStep(_ context.Context, step *domain.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepSaves++
	if m.updateStepErr != nil {
		return m.updateStepErr
	}
	if _, ok := m.steps[step.RunID][step.ID]; !ok {
		return webrunerrors.ErrStepNotFound
	}
	m.steps[step.RunID][step.ID] = cloneStep(step)
	return nil
}

func (m *mockStore) ListSteps(_ context.Context, runID string) ([]*domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Step, 0, len(m.steps[runID]))
	for _, step := range m.steps[runID] {
		out = append(out, cloneStep(step))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

// funcExecutor adapts a closure to the steps.Executor interface so tests
// can script per-step outcomes.
type funcExecutor struct {
	action constants.Action
	fn     func(ctx context.Context, rc *steps.RunContext, step *domain.Step) (any, error)
}

func (f *funcExecutor) Execute(ctx context.Context, rc *steps.RunContext, step *domain.Step) (any, error) {
	return f.fn(ctx, rc, step)
}

func (f *funcExecutor) Action() constants.Action { return f.action }

// staticExecutor registers an executor that always returns result.
func staticExecutor(reg *steps.Registry, action constants.Action, result any) {
	reg.Register(&funcExecutor{action: action, fn: func(_ context.Context, _ *steps.RunContext, _ *domain.Step) (any, error) {
		return result, nil
	}})
}

// failingExecutor registers an executor that fails failures times before
// succeeding with result. The returned counter reports invocations.
func failingExecutor(reg *steps.Registry, action constants.Action, failures int, cause error, result any) *int {
	calls := new(int)
	reg.Register(&funcExecutor{action: action, fn: func(_ context.Context, _ *steps.RunContext, _ *domain.Step) (any, error) {
		*calls++
		if *calls <= failures {
			return nil, cause
		}
		return result, nil
	}})
	return calls
}

// blockingExecutor registers an executor that parks until its context is
// canceled, for abort and shutdown tests.
func blockingExecutor(reg *steps.Registry, action constants.Action, started chan<- struct{}) {
	reg.Register(&funcExecutor{action: action, fn: func(ctx context.Context, _ *steps.RunContext, _ *domain.Step) (any, error) {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}})
}

// mockRunSession implements the engine's Session interface. Step traffic
// never reaches it in these tests; only screenshots and teardown do.
type mockRunSession struct {
	mu         sync.Mutex
	shot       []byte
	shotErr    error
	shotCalls  int
	closeCalls int
}

func (m *mockRunSession) Navigate(_ context.Context, _ string) (*domain.NavigateResult, error) {
	return nil, webrunerrors.ErrSessionClosed
}

func (m *mockRunSession) ClickElement(_ context.Context, _ string) (*domain.ClickResult, error) {
	return nil, webrunerrors.ErrSessionClosed
}

func (m *mockRunSession) TypeText(_ context.Context, _, _, _ string) (*domain.TypeResult, error) {
	return nil, webrunerrors.ErrSessionClosed
}

func (m *mockRunSession) Harvest(_ context.Context) (*browser.RawContent, error) {
	return nil, webrunerrors.ErrSessionClosed
}

func (m *mockRunSession) WaitIdle(_ context.Context, _ time.Duration) {}

func (m *mockRunSession) CurrentURL(_ context.Context) string { return "" }

func (m *mockRunSession) Screenshot(_ context.Context, _ int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shotCalls++
	if m.shotErr != nil {
		return nil, m.shotErr
	}
	return m.shot, nil
}

func (m *mockRunSession) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
}

// stubSource hands out a fixed session, or fails session creation.
type stubSource struct {
	sess Session
	err  error
}

func (s *stubSource) NewSession(_ context.Context) (Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sess, nil
}

// mockHealer implements the Healer interface. Only Heal and Available are
// exercised by the engine; the assistant operations report unavailable.
type mockHealer struct {
	mu        sync.Mutex
	available bool
	fix       *ai.HealFix
	healErr   error
	healCalls int

	lastAction string
	lastTarget string
	lastErrMsg string
}

func (m *mockHealer) Available() bool { return m.available }

func (m *mockHealer) Heal(_ context.Context, action, target, _, errMsg string) (*ai.HealFix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healCalls++
	m.lastAction = action
	m.lastTarget = target
	m.lastErrMsg = errMsg
	if m.healErr != nil {
		return nil, m.healErr
	}
	return m.fix, nil
}

func (m *mockHealer) StructureContent(_ context.Context, _, _, _, _, _ string) (map[string]any, error) {
	return nil, webrunerrors.ErrAIUnavailable
}

func (m *mockHealer) GenerateExtract(_ context.Context, _ []string, _, _ string) (map[string]any, error) {
	return nil, webrunerrors.ErrAIUnavailable
}

func (m *mockHealer) EvaluateCondition(_ context.Context, _, _ string) (*ai.ConditionalVerdict, error) {
	return nil, webrunerrors.ErrAIUnavailable
}

// newTestEngine builds an engine over the mock store with self-heal on and
// a short resolution timeout so no test waits minutes for an abort.
func newTestEngine(st *mockStore, reg *steps.Registry, opts ...Option) *Engine {
	cfg := config.EngineConfig{
		EventQueueSize:    64,
		ResolutionTimeout: 250 * time.Millisecond,
		ScreenshotQuality: 70,
		HealEnabled:       true,
	}
	return New(st, reg, cfg, zerolog.Nop(), opts...)
}

// seedWorkflow stores a workflow with the given step definitions.
func seedWorkflow(t *testing.T, st *mockStore, defs ...domain.StepDefinition) *domain.Workflow {
	t.Helper()
	wf := &domain.Workflow{
		ID:          uuid.NewString(),
		Name:        "test workflow",
		Steps:       defs,
		TriggerType: constants.TriggerManual,
		Status:      constants.WorkflowStatusActive,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateWorkflow(context.Background(), wf))
	return wf
}

// def builds a step definition, numbering it n.
func def(n int, action constants.Action, target string) domain.StepDefinition {
	return domain.StepDefinition{
		StepNumber:  n,
		Action:      action,
		Target:      target,
		Description: string(action) + " step",
	}
}

// runSync materializes and executes a run on the test goroutine, with a
// subscriber attached from before the first event. decisions maps step
// numbers to operator decisions buffered on the broker before execution,
// so resolution paths complete without another goroutine.
func runSync(t *testing.T, e *Engine, wf *domain.Workflow, decisions map[int]constants.Decision) (*domain.Run, <-chan domain.Event) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	run := &domain.Run{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Status:     constants.RunStatusPending,
		Trigger:    constants.TriggerManual,
		TotalSteps: len(wf.Steps),
		CreatedAt:  now,
	}
	require.NoError(t, e.store.CreateRun(ctx, run))

	records := materializeSteps(run.ID, wf, now)
	sort.SliceStable(records, func(i, j int) bool { return records[i].StepNumber < records[j].StepNumber })
	for _, step := range records {
		require.NoError(t, e.store.CreateStep(ctx, step))
		if d, ok := decisions[step.StepNumber]; ok {
			require.NoError(t, e.broker.Resolve(run.ID, step.ID, d))
		}
	}

	ch := e.bus.Subscribe(run.ID)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.mu.Lock()
	e.active[run.ID] = &activeRun{cancel: cancel}
	e.mu.Unlock()

	e.executeRun(runCtx, run, records)
	return run, ch
}

// drainEvents empties everything queued on the subscription right now.
func drainEvents(ch <-chan domain.Event) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// eventTypes projects the type sequence of a captured stream.
func eventTypes(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

// stepByNumber finds a persisted step record by its number.
func stepByNumber(t *testing.T, st *mockStore, runID string, n int) *domain.Step {
	t.Helper()
	list, err := st.ListSteps(context.Background(), runID)
	require.NoError(t, err)
	for _, step := range list {
		if step.StepNumber == n {
			return step
		}
	}
	t.Fatalf("no step %d in run %s", n, runID)
	return nil
}
