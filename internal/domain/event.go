package domain

import (
	"encoding/json"

	"github.com/webrunhq/webrun/internal/constants"
)

// EventType identifies a progress event on a run's live stream.
type EventType string

// Event types, in canonical emission order. run_started precedes all step
// events; exactly one of run_completed/run_failed terminates the sequence.
const (
	EventRunStarted    EventType = "run_started"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventStepSkipped   EventType = "step_skipped"
	EventStepHealed    EventType = "step_healed"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"

	// EventHeartbeat is synthesized by stream endpoints on idle timeout and
	// by the bus when a bounded queue drops its oldest event.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one entry on a run's live stream. The JSON wire shape is stable;
// fields absent from a given event type are omitted.
//
// Example step_completed payload:
//
//	{
//	    "type": "step_completed",
//	    "run_id": "7f3e1c2a-...",
//	    "step_id": "a1b2c3d4-...",
//	    "step_number": 2,
//	    "result": {"element": "search bar", "text_entered": "widgets", ...},
//	    "screenshot_b64": "..."
//	}
type Event struct {
	Type          EventType        `json:"type"`
	RunID         string           `json:"run_id"`
	StepID        string           `json:"step_id,omitempty"`
	StepNumber    int              `json:"step_number,omitempty"`
	Action        constants.Action `json:"action,omitempty"`
	Description   string           `json:"description,omitempty"`
	Mode          constants.Mode   `json:"mode,omitempty"`
	TotalSteps    int              `json:"total_steps,omitempty"`
	Result        json.RawMessage  `json:"result,omitempty"`
	ScreenshotB64 string           `json:"screenshot_b64,omitempty"`
	Error         string           `json:"error,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Fix           string           `json:"fix,omitempty"`
}

// SkipReasonBranch is the reason attached to step_skipped events produced by
// a conditional branch. Operator skips carry no reason.
const SkipReasonBranch = "conditional_branch_false"

// NewRunStarted builds the run_started event.
func NewRunStarted(runID string, totalSteps int, mode constants.Mode) Event {
	return Event{Type: EventRunStarted, RunID: runID, TotalSteps: totalSteps, Mode: mode}
}

// NewStepStarted builds the step_started event.
func NewStepStarted(step *Step, mode constants.Mode) Event {
	return Event{
		Type:        EventStepStarted,
		RunID:       step.RunID,
		StepID:      step.ID,
		StepNumber:  step.StepNumber,
		Action:      step.Action,
		Description: step.Description,
		Mode:        mode,
	}
}

// NewStepCompleted builds the step_completed event. resultJSON is the step's
// marshaled result record; screenshot may be empty.
func NewStepCompleted(step *Step, resultJSON []byte, screenshotB64 string) Event {
	return Event{
		Type:          EventStepCompleted,
		RunID:         step.RunID,
		StepID:        step.ID,
		StepNumber:    step.StepNumber,
		Result:        json.RawMessage(resultJSON),
		ScreenshotB64: screenshotB64,
	}
}

// NewStepFailed builds the step_failed event.
func NewStepFailed(step *Step, errMsg string) Event {
	return Event{
		Type:       EventStepFailed,
		RunID:      step.RunID,
		StepID:     step.ID,
		StepNumber: step.StepNumber,
		Error:      errMsg,
	}
}

// NewStepSkipped builds the step_skipped event. reason may be empty for
// operator skips.
func NewStepSkipped(step *Step, reason string) Event {
	return Event{
		Type:       EventStepSkipped,
		RunID:      step.RunID,
		StepID:     step.ID,
		StepNumber: step.StepNumber,
		Reason:     reason,
	}
}

// NewStepHealed builds the step_healed event carrying the fix explanation.
func NewStepHealed(step *Step, fix string) Event {
	return Event{
		Type:       EventStepHealed,
		RunID:      step.RunID,
		StepID:     step.ID,
		StepNumber: step.StepNumber,
		Fix:        fix,
	}
}

// NewRunCompleted builds the run_completed terminal event.
func NewRunCompleted(runID string) Event {
	return Event{Type: EventRunCompleted, RunID: runID}
}

// NewRunFailed builds the run_failed terminal event.
func NewRunFailed(runID string) Event {
	return Event{Type: EventRunFailed, RunID: runID}
}

// NewHeartbeat builds the synthetic heartbeat event.
func NewHeartbeat(runID string) Event {
	return Event{Type: EventHeartbeat, RunID: runID}
}

// Terminal reports whether this event ends a run's stream.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}
