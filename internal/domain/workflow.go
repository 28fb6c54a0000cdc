// Package domain provides shared domain types for the webrun automation engine.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per the wire format.
package domain

import (
	"strings"
	"time"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/errors"
)

// Workflow is a named, ordered program of step definitions owned by a user.
//
// Example JSON representation:
//
//	{
//	    "id": "0b1f8a9e-2d4c-4f7a-9a6b-3c5d7e9f1a2b",
//	    "name": "Daily price check",
//	    "description": "Extract widget prices from the shop every morning",
//	    "steps": [...],
//	    "variables": {"query": {"value": "widgets"}},
//	    "trigger_type": "scheduled",
//	    "schedule_cron": "0 9 * * *",
//	    "status": "active",
//	    "created_at": "2026-01-10T09:00:00Z",
//	    "updated_at": "2026-01-10T09:00:00Z"
//	}
type Workflow struct {
	// ID is the unique identifier for the workflow (UUID).
	ID string `json:"id"`

	// Name is a human-readable workflow title.
	Name string `json:"name"`

	// Description summarizes what the workflow does.
	Description string `json:"description,omitempty"`

	// Steps is the ordered list of step definitions. The definitions are
	// templates; each run copies them into per-run Step records after
	// variable interpolation.
	Steps []StepDefinition `json:"steps"`

	// Variables maps placeholder names to values. A {{name}} occurrence in
	// a step's target, value, description, or condition is substituted at
	// run start. Secret variables are redacted in listings.
	Variables map[string]Variable `json:"variables,omitempty"`

	// TriggerType declares how runs start: manual, scheduled, or webhook.
	TriggerType constants.Trigger `json:"trigger_type"`

	// ScheduleCron holds the 5-field cron expression for scheduled workflows.
	ScheduleCron string `json:"schedule_cron,omitempty"`

	// Status is the workflow lifecycle state (active, paused, archived).
	// Only active scheduled workflows are registered with the scheduler.
	Status constants.WorkflowStatus `json:"status"`

	// CreatedAt is when the workflow was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the workflow was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Variable is one entry of a workflow's variable map.
type Variable struct {
	// Value is substituted for {{name}} placeholders.
	Value string `json:"value"`

	// Secret marks values that must not appear in listings or logs.
	Secret bool `json:"secret,omitempty"`
}

// StepDefinition is the template for one step, stored on the workflow.
//
// Example JSON representation:
//
//	{
//	    "step_number": 2,
//	    "action": "type",
//	    "target": "search bar",
//	    "value": "{{query}}",
//	    "description": "Search for the configured query"
//	}
type StepDefinition struct {
	// StepNumber orders the steps within the workflow, starting at 1.
	StepNumber int `json:"step_number"`

	// Action is what the step does (navigate, click, type, extract, wait,
	// conditional).
	Action constants.Action `json:"action"`

	// Target is the URL for navigate, a natural-language element description
	// for click/type, or an extraction description for extract.
	Target string `json:"target,omitempty"`

	// Value is the text to type, the wait duration in seconds, or a
	// condition operand, depending on the action.
	Value string `json:"value,omitempty"`

	// Description is a human-readable summary shown in event streams.
	Description string `json:"description,omitempty"`

	// Condition is the expression evaluated by conditional steps.
	Condition string `json:"condition,omitempty"`
}

// Validate checks a workflow definition at save time. It verifies the name,
// the action of every step, and positive step numbers. Cron validity is the
// scheduler's concern and is checked separately.
func (w *Workflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return errors.Wrap(errors.ErrInvalidWorkflow, "name is required")
	}
	for i := range w.Steps {
		s := &w.Steps[i]
		if !s.Action.IsValid() {
			return errors.Wrapf(errors.ErrInvalidAction, "step %d action %q", i+1, s.Action)
		}
		if s.StepNumber <= 0 {
			return errors.Wrapf(errors.ErrInvalidWorkflow, "step %d has non-positive step_number %d", i+1, s.StepNumber)
		}
	}
	if w.TriggerType == constants.TriggerScheduled && strings.TrimSpace(w.ScheduleCron) == "" {
		return errors.Wrap(errors.ErrInvalidWorkflow, "scheduled workflows need a schedule_cron")
	}
	return nil
}

// Schedulable reports whether the scheduler should register this workflow.
func (w *Workflow) Schedulable() bool {
	return w.TriggerType == constants.TriggerScheduled &&
		w.Status == constants.WorkflowStatusActive &&
		strings.TrimSpace(w.ScheduleCron) != ""
}
