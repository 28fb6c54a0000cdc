package store

import (
	"context"
	"sort"
	"sync"

	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/errors"
)

// MemStore implements Store with in-memory maps. It backs tests and the
// ephemeral mode where nothing should touch disk. Records are copied on the
// way in and out so callers never share memory with the store.
type MemStore struct {
	mu        sync.RWMutex
	workflows map[string]*domain.Workflow
	runs      map[string]*domain.Run
	steps     map[string]map[string]*domain.Step // runID → stepID → step
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows: make(map[string]*domain.Workflow),
		runs:      make(map[string]*domain.Run),
		steps:     make(map[string]map[string]*domain.Step),
	}
}

// CreateWorkflow persists a new workflow definition.
func (s *MemStore) CreateWorkflow(ctx context.Context, wf *domain.Workflow) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if wf == nil || wf.ID == "" {
		return errors.Wrap(errors.ErrEmptyValue, "failed to create workflow")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "failed to create workflow '%s'", wf.ID)
	}
	s.workflows[wf.ID] = copyWorkflow(wf)
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *MemStore) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrWorkflowNotFound, "failed to get workflow '%s'", id)
	}
	return copyWorkflow(wf), nil
}

// UpdateWorkflow saves the current workflow state.
func (s *MemStore) UpdateWorkflow(ctx context.Context, wf *domain.Workflow) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if wf == nil || wf.ID == "" {
		return errors.Wrap(errors.ErrEmptyValue, "failed to update workflow")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; !ok {
		return errors.Wrapf(errors.ErrWorkflowNotFound, "failed to update workflow '%s'", wf.ID)
	}
	s.workflows[wf.ID] = copyWorkflow(wf)
	return nil
}

// DeleteWorkflow removes a workflow definition.
func (s *MemStore) DeleteWorkflow(ctx context.Context, id string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return errors.Wrapf(errors.ErrWorkflowNotFound, "failed to delete workflow '%s'", id)
	}
	delete(s.workflows, id)
	return nil
}

// ListWorkflows returns all workflows, newest first.
func (s *MemStore) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	workflows := make([]*domain.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		workflows = append(workflows, copyWorkflow(wf))
	}
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
	return workflows, nil
}

// CreateRun persists a new run record.
func (s *MemStore) CreateRun(ctx context.Context, run *domain.Run) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if run == nil || run.ID == "" {
		return errors.Wrap(errors.ErrEmptyValue, "failed to create run")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "failed to create run '%s'", run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	s.steps[run.ID] = make(map[string]*domain.Step)
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "failed to get run '%s'", id)
	}
	return copyRun(run), nil
}

// UpdateRun saves the current run state.
func (s *MemStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if run == nil || run.ID == "" {
		return errors.Wrap(errors.ErrEmptyValue, "failed to update run")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errors.Wrapf(errors.ErrRunNotFound, "failed to update run '%s'", run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// ListRuns returns runs newest first, optionally filtered by workflow.
func (s *MemStore) ListRuns(ctx context.Context, workflowID string) ([]*domain.Run, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		runs = append(runs, copyRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// CreateStep persists a new step record under its run.
func (s *MemStore) CreateStep(ctx context.Context, step *domain.Step) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if step == nil || step.ID == "" || step.RunID == "" {
		return errors.Wrap(errors.ErrEmptyValue, "failed to create step")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	runSteps, ok := s.steps[step.RunID]
	if !ok {
		return errors.Wrapf(errors.ErrRunNotFound, "failed to create step '%s'", step.ID)
	}
	if _, ok = runSteps[step.ID]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "failed to create step '%s'", step.ID)
	}
	runSteps[step.ID] = copyStep(step)
	return nil
}

// GetStep retrieves one step of a run.
func (s *MemStore) GetStep(ctx context.Context, runID, stepID string) (*domain.Step, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	step, ok := s.steps[runID][stepID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrStepNotFound, "failed to get step '%s'", stepID)
	}
	return copyStep(step), nil
}

// UpdateStep saves the current step state.
func (s *MemStore) UpdateStep(ctx context.Context, step *domain.Step) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if step == nil || step.ID == "" || step.RunID == "" {
		return errors.Wrap(errors.ErrEmptyValue, "failed to update step")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	runSteps, ok := s.steps[step.RunID]
	if !ok {
		return errors.Wrapf(errors.ErrRunNotFound, "failed to update step '%s'", step.ID)
	}
	if _, ok = runSteps[step.ID]; !ok {
		return errors.Wrapf(errors.ErrStepNotFound, "failed to update step '%s'", step.ID)
	}
	runSteps[step.ID] = copyStep(step)
	return nil
}

// ListSteps returns all steps of a run, ordered by step number.
func (s *MemStore) ListSteps(ctx context.Context, runID string) ([]*domain.Step, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	runSteps := s.steps[runID]
	steps := make([]*domain.Step, 0, len(runSteps))
	for _, step := range runSteps {
		steps = append(steps, copyStep(step))
	}
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepNumber < steps[j].StepNumber
	})
	return steps, nil
}

func copyWorkflow(wf *domain.Workflow) *domain.Workflow {
	cp := *wf
	cp.Steps = make([]domain.StepDefinition, len(wf.Steps))
	copy(cp.Steps, wf.Steps)
	if wf.Variables != nil {
		cp.Variables = make(map[string]domain.Variable, len(wf.Variables))
		for k, v := range wf.Variables {
			cp.Variables[k] = v
		}
	}
	return &cp
}

func copyRun(run *domain.Run) *domain.Run {
	cp := *run
	if run.StartedAt != nil {
		t := *run.StartedAt
		cp.StartedAt = &t
	}
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copyStep(step *domain.Step) *domain.Step {
	cp := *step
	if step.StartedAt != nil {
		t := *step.StartedAt
		cp.StartedAt = &t
	}
	if step.CompletedAt != nil {
		t := *step.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
