package constants

// RunStatus represents the state of a run in the engine's state machine.
// Status values use snake_case for JSON serialization compatibility.
type RunStatus string

// Run status constants define the valid states a run can be in:
//
//	Pending → Running
//	Running → Completed, Failed, Cancelled
const (
	// RunStatusPending indicates a run is created but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the engine is actively executing steps.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates every step reached a terminal state and
	// none failed without a successful resolution.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates a step failed without heal or resolution,
	// or a resolution decided abort.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the operator aborted the run.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	case RunStatusPending, RunStatusRunning:
		return false
	default:
		return false
	}
}

// StepStatus represents the state of a single step instance.
type StepStatus string

// Step status constants:
//
//	Pending → Running → Completed | Failed | Skipped
//	Failed → Running (retry or self-heal, at most once each)
const (
	// StepStatusPending indicates a step has not started.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning indicates the interpreter is executing the step.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted indicates the step produced a result.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed indicates the step raised an unrecovered failure.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped indicates the step was bypassed, either by a
	// conditional branch or an operator skip decision.
	StepStatusSkipped StepStatus = "skipped"
)

// IsTerminal reports whether the step status is final. Failed steps may
// re-enter running via retry or self-heal, so failed is not terminal here.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusSkipped:
		return true
	case StepStatusPending, StepStatusRunning, StepStatusFailed:
		return false
	default:
		return false
	}
}

// Action identifies what a step does.
type Action string

// Supported step actions.
const (
	// ActionNavigate loads a URL.
	ActionNavigate Action = "navigate"

	// ActionClick locates an element and clicks it.
	ActionClick Action = "click"

	// ActionType locates an element and fills it with text.
	ActionType Action = "type"

	// ActionExtract harvests structured content from the current page.
	ActionExtract Action = "extract"

	// ActionWait pauses for a duration given in seconds.
	ActionWait Action = "wait"

	// ActionConditional evaluates an expression against the previous step's
	// result and may skip the following step.
	ActionConditional Action = "conditional"
)

// ValidActions lists every supported action, in documentation order.
func ValidActions() []Action {
	return []Action{
		ActionNavigate,
		ActionClick,
		ActionType,
		ActionExtract,
		ActionWait,
		ActionConditional,
	}
}

// IsValid reports whether the action is one of the supported set.
func (a Action) IsValid() bool {
	switch a {
	case ActionNavigate, ActionClick, ActionType, ActionExtract, ActionWait, ActionConditional:
		return true
	default:
		return false
	}
}

// Trigger identifies what started a run.
type Trigger string

// Run trigger constants.
const (
	// TriggerManual marks runs started through the API or CLI.
	TriggerManual Trigger = "manual"

	// TriggerScheduled marks runs dispatched by the cron scheduler.
	TriggerScheduled Trigger = "scheduled"

	// TriggerWebhook marks runs started by an inbound webhook.
	TriggerWebhook Trigger = "webhook"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

// Workflow status constants.
const (
	// WorkflowStatusActive allows manual and scheduled runs.
	WorkflowStatusActive WorkflowStatus = "active"

	// WorkflowStatusPaused suspends scheduled runs; manual runs still work.
	WorkflowStatusPaused WorkflowStatus = "paused"

	// WorkflowStatusArchived hides the workflow from scheduling and listings.
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// Decision is an external resolution for a failed step.
type Decision string

// Resolution decision constants.
const (
	// DecisionRetry resets the failed step and re-executes it once.
	DecisionRetry Decision = "retry"

	// DecisionSkip marks the failed step skipped and continues the run.
	DecisionSkip Decision = "skip"

	// DecisionAbort fails the run. It is also the timeout default.
	DecisionAbort Decision = "abort"
)

// IsValid reports whether the decision is one of retry, skip, or abort.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionRetry, DecisionSkip, DecisionAbort:
		return true
	default:
		return false
	}
}

// Mode reports which execution backend a run is using.
type Mode string

// Execution mode constants, reported on run_started events.
const (
	// ModeBrowser means a real browser session drives the run.
	ModeBrowser Mode = "browser"

	// ModeSimulation means deterministic fixture data stands in for a browser.
	ModeSimulation Mode = "simulation"
)
