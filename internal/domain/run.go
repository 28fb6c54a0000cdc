package domain

import (
	"time"

	"github.com/webrunhq/webrun/internal/constants"
)

// Run is one execution of a workflow. Runs are created by the engine and
// mutated only by the engine goroutine that owns them.
//
// Example JSON representation:
//
//	{
//	    "id": "7f3e1c2a-8b9d-4e5f-a1b2-c3d4e5f67890",
//	    "workflow_id": "0b1f8a9e-2d4c-4f7a-9a6b-3c5d7e9f1a2b",
//	    "status": "running",
//	    "trigger": "manual",
//	    "total_steps": 3,
//	    "completed_steps": 1,
//	    "started_at": "2026-01-10T09:00:01Z",
//	    "created_at": "2026-01-10T09:00:00Z"
//	}
type Run struct {
	// ID is the unique identifier for the run (UUID).
	ID string `json:"id"`

	// WorkflowID references the workflow this run executes.
	WorkflowID string `json:"workflow_id"`

	// Status is the run lifecycle state. Terminal statuses imply every step
	// of the run has a terminal status.
	Status constants.RunStatus `json:"status"`

	// Trigger records what started the run (manual, scheduled, webhook).
	Trigger constants.Trigger `json:"trigger"`

	// TotalSteps is the number of step records created for this run.
	TotalSteps int `json:"total_steps"`

	// CompletedSteps counts steps in the completed or skipped state.
	CompletedSteps int `json:"completed_steps"`

	// StartedAt is when the run transitioned to running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt is when the run record was created.
	CreatedAt time.Time `json:"created_at"`
}

// Step is the per-run instance of a step definition, created after variable
// interpolation. Mutated only by the engine that owns the run.
//
// Example JSON representation:
//
//	{
//	    "id": "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d",
//	    "run_id": "7f3e1c2a-8b9d-4e5f-a1b2-c3d4e5f67890",
//	    "step_number": 2,
//	    "action": "type",
//	    "target": "search bar",
//	    "value": "widgets",
//	    "status": "completed",
//	    "result_data": "{\"element\":\"search bar\",\"text_entered\":\"widgets\",...}",
//	    "started_at": "2026-01-10T09:00:03Z",
//	    "completed_at": "2026-01-10T09:00:05Z"
//	}
type Step struct {
	// ID is the unique identifier for the step instance (UUID).
	ID string `json:"id"`

	// RunID references the owning run.
	RunID string `json:"run_id"`

	// StepNumber is copied from the definition and orders execution.
	StepNumber int `json:"step_number"`

	// Action is copied from the definition.
	Action constants.Action `json:"action"`

	// Target is the interpolated target. Self-heal may rewrite it; the
	// workflow's definition is never touched.
	Target string `json:"target,omitempty"`

	// Value is the interpolated value. Self-heal may rewrite it.
	Value string `json:"value,omitempty"`

	// Description is the interpolated description.
	Description string `json:"description,omitempty"`

	// Condition is the interpolated condition expression.
	Condition string `json:"condition,omitempty"`

	// Status is the step lifecycle state.
	Status constants.StepStatus `json:"status"`

	// ResultData holds the step's result record as a JSON document.
	ResultData string `json:"result_data,omitempty"`

	// ScreenshotB64 is a base64 JPEG captured when the step completed.
	ScreenshotB64 string `json:"screenshot_b64,omitempty"`

	// ErrorMessage holds the failure text when the step failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// StartedAt is when the step entered running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the step reached completed, failed, or skipped.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt is when the step record was created.
	CreatedAt time.Time `json:"created_at"`
}
