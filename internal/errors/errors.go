// Package errors provides centralized error handling for webrun.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Workflow and run lifecycle errors.
var (
	// ErrWorkflowNotFound indicates the requested workflow does not exist.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowNoSteps indicates a workflow has no step definitions and
	// therefore cannot be dispatched as a run.
	ErrWorkflowNoSteps = errors.New("workflow has no steps")

	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrStepNotFound indicates the requested step does not exist.
	ErrStepNotFound = errors.New("step not found")

	// ErrRunNotActive indicates an operation that requires a run in the
	// running state (abort, resolve) was attempted on a terminal run.
	ErrRunNotActive = errors.New("run is not active")

	// ErrInvalidAction indicates a step definition uses an unknown action.
	ErrInvalidAction = errors.New("invalid step action")

	// ErrInvalidDecision indicates a resolution decision outside retry/skip/abort.
	ErrInvalidDecision = errors.New("invalid resolution decision")

	// ErrInvalidCron indicates a schedule expression that could not be parsed.
	ErrInvalidCron = errors.New("invalid cron expression")

	// ErrInvalidWorkflow indicates a workflow definition failed save-time validation.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")
)

// Browser and element errors. The element errors carry their wire names
// ("ElementNotFound" etc.) because step error messages embed them and the
// fix-suggestion table keys on them.
var (
	// ErrBrowserUnavailable indicates no browser could be launched or connected.
	// Runs continue in simulation mode when session creation fails with this.
	ErrBrowserUnavailable = errors.New("browser unavailable")

	// ErrSessionClosed indicates the browsing context was already released.
	ErrSessionClosed = errors.New("browser session closed")

	// ErrElementNotFound indicates no locator strategy produced a usable element.
	ErrElementNotFound = errors.New("ElementNotFound")

	// ErrElementObscured indicates another element intercepted the interaction.
	ErrElementObscured = errors.New("ElementObscured")

	// ErrElementDisabled indicates the target element cannot be interacted with.
	ErrElementDisabled = errors.New("ElementDisabled")

	// ErrStaleElement indicates the element detached from the DOM before the
	// interaction completed, typically because the page re-rendered.
	ErrStaleElement = errors.New("StaleElement")

	// ErrNavigationTimeout indicates a page load exceeded its deadline.
	ErrNavigationTimeout = errors.New("TimeoutError")

	// ErrAccessDenied indicates the page refused the request (auth wall, 403).
	ErrAccessDenied = errors.New("AccessDenied")
)

// AI client errors.
var (
	// ErrThrottled indicates the model provider rate-limited the client.
	// Callers treat this as "AI unavailable" for the rest of the backoff window.
	ErrThrottled = errors.New("ai provider throttled")

	// ErrAIUnavailable indicates no AI client is configured or reachable.
	ErrAIUnavailable = errors.New("ai client unavailable")

	// ErrAIParse indicates the model returned output that is not valid JSON
	// or does not match the required shape.
	ErrAIParse = errors.New("ParseError")
)

// Store errors.
var (
	// ErrStoreClosed indicates an operation on a store after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrAlreadyExists indicates a create collided with an existing record.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrLockTimeout indicates the store lock could not be acquired in time.
	ErrLockTimeout = errors.New("store lock timeout")

	// ErrEmptyValue indicates a required identifier or record was empty or nil.
	ErrEmptyValue = errors.New("is empty or nil")

	// ErrInvalidID indicates an identifier that cannot be used as a record
	// file name (path separators or dot segments).
	ErrInvalidID = errors.New("invalid identifier")
)

// Resolution broker errors.
var (
	// ErrResolutionPending indicates a waiter is already registered for the
	// step. Each {run, step} pair has at most one outstanding request.
	ErrResolutionPending = errors.New("resolution already pending")
)

// CLI errors.
var (
	// ErrInvalidOutputFormat indicates an unsupported --output value.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrPromptUnavailable indicates an interactive prompt was required but
	// stdin is not a terminal.
	ErrPromptUnavailable = errors.New("interactive prompt requires a terminal")
)

// Configuration errors.
var (
	// ErrConfigNil indicates a nil config was passed to Validate.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigInvalidServer indicates invalid server configuration.
	ErrConfigInvalidServer = errors.New("invalid server configuration")

	// ErrConfigInvalidBrowser indicates invalid browser configuration.
	ErrConfigInvalidBrowser = errors.New("invalid browser configuration")

	// ErrConfigInvalidAI indicates invalid AI configuration.
	ErrConfigInvalidAI = errors.New("invalid ai configuration")

	// ErrConfigInvalidEngine indicates invalid engine configuration.
	ErrConfigInvalidEngine = errors.New("invalid engine configuration")
)
