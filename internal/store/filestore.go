package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/flock"
)

// FileStore implements Store on the local filesystem.
//
// Layout under the data directory:
//
//	workflows/<workflow-id>.json
//	runs/<run-id>/run.json
//	runs/<run-id>/steps/<step-id>.json
//
// Workflow writes serialize on workflows/.lock; run and step writes
// serialize on the owning run's runs/<run-id>/.lock.
type FileStore struct {
	dataDir string // Usually ~/.webrun
}

// NewFileStore creates a FileStore rooted at dataDir. If dataDir is empty,
// the default ~/.webrun directory is used.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		dataDir = filepath.Join(home, constants.WebrunHome)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// DataDir returns the root directory this store persists under.
func (s *FileStore) DataDir() string {
	return s.dataDir
}

// checkID validates a record identifier before it becomes a file name.
// Separators and dot segments are refused so an identifier can never
// address a path outside the data directory.
func checkID(id string) error {
	if id == "" {
		return errors.ErrEmptyValue
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return errors.Wrapf(errors.ErrInvalidID, "%q", id)
	}
	return nil
}

// CreateWorkflow persists a new workflow definition.
func (s *FileStore) CreateWorkflow(ctx context.Context, wf *domain.Workflow) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if wf == nil {
		return errors.Wrap(errors.ErrEmptyValue, "failed to create workflow: record")
	}
	if err := checkID(wf.ID); err != nil {
		return errors.Wrap(err, "failed to create workflow: ID")
	}

	if err := os.MkdirAll(s.workflowsDir(), constants.DirPerm); err != nil {
		return errors.Wrap(err, "failed to create workflows directory")
	}

	lock, err := flock.Acquire(ctx, s.workflowsLockPath(), constants.LockTimeout)
	if err != nil {
		return errors.Wrapf(err, "failed to create workflow '%s'", wf.ID)
	}
	defer func() { _ = lock.Release() }()

	path := s.workflowPath(wf.ID)
	if _, err = os.Stat(path); err == nil {
		return errors.Wrapf(errors.ErrAlreadyExists, "failed to create workflow '%s'", wf.ID)
	}

	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to create workflow '%s'", wf.ID)
	}
	if err = atomicWrite(path, data); err != nil {
		return errors.Wrapf(err, "failed to create workflow '%s'", wf.ID)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *FileStore) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, errors.Wrap(err, "failed to get workflow: ID")
	}

	data, err := os.ReadFile(s.workflowPath(id)) // #nosec G304 -- path is constructed from the trusted data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrWorkflowNotFound, "failed to get workflow '%s'", id)
		}
		return nil, errors.Wrapf(err, "failed to read workflow '%s'", id)
	}

	var wf domain.Workflow
	if err = json.Unmarshal(data, &wf); err != nil {
		return nil, errors.Wrapf(err, "failed to parse workflow '%s': corrupted record", id)
	}
	return &wf, nil
}

// UpdateWorkflow saves the current workflow state.
func (s *FileStore) UpdateWorkflow(ctx context.Context, wf *domain.Workflow) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if wf == nil {
		return errors.Wrap(errors.ErrEmptyValue, "failed to update workflow: record")
	}
	if err := checkID(wf.ID); err != nil {
		return errors.Wrap(err, "failed to update workflow: ID")
	}

	lock, err := flock.Acquire(ctx, s.workflowsLockPath(), constants.LockTimeout)
	if err != nil {
		return errors.Wrapf(err, "failed to update workflow '%s'", wf.ID)
	}
	defer func() { _ = lock.Release() }()

	path := s.workflowPath(wf.ID)
	if _, err = os.Stat(path); os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrWorkflowNotFound, "failed to update workflow '%s'", wf.ID)
	}

	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to update workflow '%s'", wf.ID)
	}
	if err = atomicWrite(path, data); err != nil {
		return errors.Wrapf(err, "failed to update workflow '%s'", wf.ID)
	}
	return nil
}

// DeleteWorkflow removes a workflow definition.
func (s *FileStore) DeleteWorkflow(ctx context.Context, id string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return errors.Wrap(err, "failed to delete workflow: ID")
	}

	lock, err := flock.Acquire(ctx, s.workflowsLockPath(), constants.LockTimeout)
	if err != nil {
		return errors.Wrapf(err, "failed to delete workflow '%s'", id)
	}
	defer func() { _ = lock.Release() }()

	path := s.workflowPath(id)
	if _, err = os.Stat(path); os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrWorkflowNotFound, "failed to delete workflow '%s'", id)
	}
	if err = os.Remove(path); err != nil {
		return errors.Wrapf(err, "failed to delete workflow '%s'", id)
	}
	return nil
}

// ListWorkflows returns all workflows, newest first.
func (s *FileStore) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	dir := s.workflowsDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*domain.Workflow{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list workflows")
	}

	workflows := make([]*domain.Workflow, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err = ctxutil.Canceled(ctx); err != nil {
			return nil, err
		}
		wf, err := s.GetWorkflow(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip unreadable or corrupted records
			continue
		}
		workflows = append(workflows, wf)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
	return workflows, nil
}

// CreateRun persists a new run record.
func (s *FileStore) CreateRun(ctx context.Context, run *domain.Run) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if run == nil {
		return errors.Wrap(errors.ErrEmptyValue, "failed to create run: record")
	}
	if err := checkID(run.ID); err != nil {
		return errors.Wrap(err, "failed to create run: ID")
	}

	runDir := s.runDir(run.ID)
	if _, err := os.Stat(runDir); err == nil {
		return errors.Wrapf(errors.ErrAlreadyExists, "failed to create run '%s'", run.ID)
	}
	if err := os.MkdirAll(filepath.Join(runDir, constants.StepsDir), constants.DirPerm); err != nil {
		return errors.Wrap(err, "failed to create run directory")
	}

	lock, err := flock.Acquire(ctx, s.runLockPath(run.ID), constants.LockTimeout)
	if err != nil {
		_ = os.RemoveAll(runDir)
		return errors.Wrapf(err, "failed to create run '%s'", run.ID)
	}
	defer func() { _ = lock.Release() }()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		_ = os.RemoveAll(runDir)
		return errors.Wrapf(err, "failed to create run '%s'", run.ID)
	}
	if err = atomicWrite(s.runPath(run.ID), data); err != nil {
		_ = os.RemoveAll(runDir)
		return errors.Wrapf(err, "failed to create run '%s'", run.ID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *FileStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, errors.Wrap(err, "failed to get run: ID")
	}

	data, err := os.ReadFile(s.runPath(id)) // #nosec G304 -- path is constructed from the trusted data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrRunNotFound, "failed to get run '%s'", id)
		}
		return nil, errors.Wrapf(err, "failed to read run '%s'", id)
	}

	var run domain.Run
	if err = json.Unmarshal(data, &run); err != nil {
		return nil, errors.Wrapf(err, "failed to parse run '%s': corrupted record", id)
	}
	return &run, nil
}

// UpdateRun saves the current run state.
func (s *FileStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if run == nil {
		return errors.Wrap(errors.ErrEmptyValue, "failed to update run: record")
	}
	if err := checkID(run.ID); err != nil {
		return errors.Wrap(err, "failed to update run: ID")
	}

	if _, err := os.Stat(s.runDir(run.ID)); os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrRunNotFound, "failed to update run '%s'", run.ID)
	}

	lock, err := flock.Acquire(ctx, s.runLockPath(run.ID), constants.LockTimeout)
	if err != nil {
		return errors.Wrapf(err, "failed to update run '%s'", run.ID)
	}
	defer func() { _ = lock.Release() }()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to update run '%s'", run.ID)
	}
	if err = atomicWrite(s.runPath(run.ID), data); err != nil {
		return errors.Wrapf(err, "failed to update run '%s'", run.ID)
	}
	return nil
}

// ListRuns returns runs newest first, optionally filtered by workflow.
func (s *FileStore) ListRuns(ctx context.Context, workflowID string) ([]*domain.Run, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	dir := s.runsDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*domain.Run{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}

	runs := make([]*domain.Run, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err = ctxutil.Canceled(ctx); err != nil {
			return nil, err
		}
		run, err := s.GetRun(ctx, entry.Name())
		if err != nil {
			continue
		}
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// CreateStep persists a new step record under its run.
func (s *FileStore) CreateStep(ctx context.Context, step *domain.Step) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if step == nil {
		return errors.Wrap(errors.ErrEmptyValue, "failed to create step: record")
	}
	if err := checkID(step.ID); err != nil {
		return errors.Wrap(err, "failed to create step: ID")
	}
	if err := checkID(step.RunID); err != nil {
		return errors.Wrap(err, "failed to create step: run ID")
	}

	if _, err := os.Stat(s.runDir(step.RunID)); os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrRunNotFound, "failed to create step '%s'", step.ID)
	}

	lock, err := flock.Acquire(ctx, s.runLockPath(step.RunID), constants.LockTimeout)
	if err != nil {
		return errors.Wrapf(err, "failed to create step '%s'", step.ID)
	}
	defer func() { _ = lock.Release() }()

	stepsDir := s.stepsDir(step.RunID)
	if err = os.MkdirAll(stepsDir, constants.DirPerm); err != nil {
		return errors.Wrap(err, "failed to create steps directory")
	}

	path := s.stepPath(step.RunID, step.ID)
	if _, err = os.Stat(path); err == nil {
		return errors.Wrapf(errors.ErrAlreadyExists, "failed to create step '%s'", step.ID)
	}

	data, err := json.MarshalIndent(step, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to create step '%s'", step.ID)
	}
	if err = atomicWrite(path, data); err != nil {
		return errors.Wrapf(err, "failed to create step '%s'", step.ID)
	}
	return nil
}

// GetStep retrieves one step of a run.
func (s *FileStore) GetStep(ctx context.Context, runID, stepID string) (*domain.Step, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if err := checkID(runID); err != nil {
		return nil, errors.Wrap(err, "failed to get step: run ID")
	}
	if err := checkID(stepID); err != nil {
		return nil, errors.Wrap(err, "failed to get step: step ID")
	}

	data, err := os.ReadFile(s.stepPath(runID, stepID)) // #nosec G304 -- path is constructed from the trusted data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrStepNotFound, "failed to get step '%s'", stepID)
		}
		return nil, errors.Wrapf(err, "failed to read step '%s'", stepID)
	}

	var step domain.Step
	if err = json.Unmarshal(data, &step); err != nil {
		return nil, errors.Wrapf(err, "failed to parse step '%s': corrupted record", stepID)
	}
	return &step, nil
}

// UpdateStep saves the current step state.
func (s *FileStore) UpdateStep(ctx context.Context, step *domain.Step) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if step == nil {
		return errors.Wrap(errors.ErrEmptyValue, "failed to update step: record")
	}
	if err := checkID(step.ID); err != nil {
		return errors.Wrap(err, "failed to update step: ID")
	}
	if err := checkID(step.RunID); err != nil {
		return errors.Wrap(err, "failed to update step: run ID")
	}

	lock, err := flock.Acquire(ctx, s.runLockPath(step.RunID), constants.LockTimeout)
	if err != nil {
		return errors.Wrapf(err, "failed to update step '%s'", step.ID)
	}
	defer func() { _ = lock.Release() }()

	path := s.stepPath(step.RunID, step.ID)
	if _, err = os.Stat(path); os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrStepNotFound, "failed to update step '%s'", step.ID)
	}

	data, err := json.MarshalIndent(step, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to update step '%s'", step.ID)
	}
	if err = atomicWrite(path, data); err != nil {
		return errors.Wrapf(err, "failed to update step '%s'", step.ID)
	}
	return nil
}

// ListSteps returns all steps of a run, ordered by step number.
func (s *FileStore) ListSteps(ctx context.Context, runID string) ([]*domain.Step, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if err := checkID(runID); err != nil {
		return nil, errors.Wrap(err, "failed to list steps: run ID")
	}

	dir := s.stepsDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*domain.Step{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list steps")
	}

	steps := make([]*domain.Step, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		step, err := s.GetStep(ctx, runID, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepNumber < steps[j].StepNumber
	})
	return steps, nil
}

// Helper methods for path construction

func (s *FileStore) workflowsDir() string {
	return filepath.Join(s.dataDir, constants.WorkflowsDir)
}

func (s *FileStore) workflowPath(id string) string {
	return filepath.Join(s.workflowsDir(), id+".json")
}

func (s *FileStore) workflowsLockPath() string {
	return filepath.Join(s.workflowsDir(), constants.LockFileName)
}

func (s *FileStore) runsDir() string {
	return filepath.Join(s.dataDir, constants.RunsDir)
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.runsDir(), runID)
}

func (s *FileStore) runPath(runID string) string {
	return filepath.Join(s.runDir(runID), "run.json")
}

func (s *FileStore) runLockPath(runID string) string {
	return filepath.Join(s.runDir(runID), constants.LockFileName)
}

func (s *FileStore) stepsDir(runID string) string {
	return filepath.Join(s.runDir(runID), constants.StepsDir)
}

func (s *FileStore) stepPath(runID, stepID string) string {
	return filepath.Join(s.stepsDir(runID), stepID+".json")
}

// atomicWrite writes data to a file atomically using write-then-rename so a
// crash never leaves a partially written record behind.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePerm) // #nosec G304 -- path is constructed internally
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write data")
	}

	// Ensure data is persisted before rename
	if err = f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to sync file")
	}

	if err = f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close file")
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to rename file")
	}
	return nil
}
