// Package store provides persistence for workflows, runs and steps.
// The default implementation keeps every record as a JSON file under the
// webrun data directory, with file locking and atomic writes so concurrent
// engine goroutines and CLI invocations never observe partial state.
package store

import (
	"context"

	"github.com/webrunhq/webrun/internal/domain"
)

// Store defines the persistence operations used by the engine, scheduler,
// HTTP API and CLI. Implementations must be safe for concurrent use.
type Store interface {
	// CreateWorkflow persists a new workflow definition.
	// Returns ErrAlreadyExists if the ID is taken.
	CreateWorkflow(ctx context.Context, wf *domain.Workflow) error

	// GetWorkflow retrieves a workflow by ID.
	// Returns ErrWorkflowNotFound if it doesn't exist.
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)

	// UpdateWorkflow saves the current workflow state (atomic write) and
	// refreshes UpdatedAt. Returns ErrWorkflowNotFound if it doesn't exist.
	UpdateWorkflow(ctx context.Context, wf *domain.Workflow) error

	// DeleteWorkflow removes a workflow definition. Runs already recorded
	// against it are kept.
	DeleteWorkflow(ctx context.Context, id string) error

	// ListWorkflows returns all workflows, sorted by creation time
	// (newest first).
	ListWorkflows(ctx context.Context) ([]*domain.Workflow, error)

	// CreateRun persists a new run record.
	CreateRun(ctx context.Context, run *domain.Run) error

	// GetRun retrieves a run by ID.
	// Returns ErrRunNotFound if it doesn't exist.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// UpdateRun saves the current run state (atomic write). The engine calls
	// this after every step so an interrupted process loses at most one step.
	UpdateRun(ctx context.Context, run *domain.Run) error

	// ListRuns returns runs sorted by creation time (newest first).
	// A non-empty workflowID filters to that workflow's runs.
	ListRuns(ctx context.Context, workflowID string) ([]*domain.Run, error)

	// CreateStep persists a new step record under its run.
	CreateStep(ctx context.Context, step *domain.Step) error

	// GetStep retrieves one step of a run.
	// Returns ErrStepNotFound if it doesn't exist.
	GetStep(ctx context.Context, runID, stepID string) (*domain.Step, error)

	// UpdateStep saves the current step state (atomic write).
	UpdateStep(ctx context.Context, step *domain.Step) error

	// ListSteps returns all steps of a run, sorted by step number.
	ListSteps(ctx context.Context, runID string) ([]*domain.Step, error)
}
