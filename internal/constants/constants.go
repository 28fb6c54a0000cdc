// Package constants provides centralized constant values used throughout webrun.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// File and directory names used by webrun for state persistence.
const (
	// WebrunHome is the hidden directory name where webrun stores all its data.
	// This directory is created in the user's home directory.
	WebrunHome = ".webrun"

	// WorkflowsDir is the directory name where workflow records are stored.
	WorkflowsDir = "workflows"

	// RunsDir is the directory name where run records are stored.
	RunsDir = "runs"

	// StepsDir is the directory name where per-run step records are stored.
	StepsDir = "steps"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"

	// CLILogFileName is the name of the rotating CLI log file.
	CLILogFileName = "webrun.log"

	// LockFileName is the file used for cross-process store locking.
	LockFileName = ".lock"
)

// Log rotation settings for the CLI log file.
const (
	// LogMaxSizeMB is the maximum size of a log file before rotation.
	LogMaxSizeMB = 10

	// LogMaxBackups is the number of rotated log files to keep.
	LogMaxBackups = 3

	// LogMaxAgeDays is the maximum age of a rotated log file.
	LogMaxAgeDays = 30

	// LogCompress enables gzip compression of rotated log files.
	LogCompress = true
)

// Browser timeouts. Element-find strategies use the short probe values;
// navigation uses the long caps with network idle best-effort.
const (
	// NavigationTimeout is the hard cap for a page load.
	NavigationTimeout = 30 * time.Second

	// NetworkIdleTimeout caps the best-effort wait for network quiet after
	// DOM-ready. Navigation proceeds when it expires.
	NetworkIdleTimeout = 10 * time.Second

	// ElementProbeTimeout is the visibility probe applied to each candidate
	// element during locator strategies.
	ElementProbeTimeout = 800 * time.Millisecond

	// ElementSettleTimeout caps the network-idle wait before the locator's
	// second pass.
	ElementSettleTimeout = 5 * time.Second

	// ElementSettleDelay is the fixed pause after the settle wait.
	ElementSettleDelay = 1500 * time.Millisecond

	// ClickTimeout is the cap on a click interaction.
	ClickTimeout = 10 * time.Second

	// FillTimeout is the cap on focusing and filling an input.
	FillTimeout = 5 * time.Second

	// ScrollTimeout is the cap on scrolling an element into view.
	ScrollTimeout = 5 * time.Second

	// PostClickLoadTimeout caps the DOM-ready wait after a click.
	PostClickLoadTimeout = 5 * time.Second

	// PostWaitIdleTimeout caps the network-idle check after a wait step's
	// pause.
	PostWaitIdleTimeout = 5 * time.Second

	// SearchNavigateTimeout caps the DOM-ready wait after pressing Enter in
	// a search field.
	SearchNavigateTimeout = 15 * time.Second

	// SearchIdleTimeout caps the network-idle wait after a search submit.
	SearchIdleTimeout = 8 * time.Second

	// SearchSubmitPause is the settle pause between filling a search field
	// and pressing Enter.
	SearchSubmitPause = 500 * time.Millisecond

	// SearchTogglePause is the settle pause after clicking a search toggle
	// that reveals a hidden search input.
	SearchTogglePause = 800 * time.Millisecond

	// ToggleClickTimeout caps the click on a search toggle.
	ToggleClickTimeout = 3 * time.Second

	// BlockProbeTimeout caps the body-text read used for bot-wall detection.
	BlockProbeTimeout = 2 * time.Second

	// RequestIdleWindow is the quiet period that counts as network idle.
	RequestIdleWindow = 300 * time.Millisecond

	// MaxLocatorMatches bounds how many matches of one selector the locator
	// probes for visibility.
	MaxLocatorMatches = 5
)

// Screenshot encoding. Step-completion captures use the higher quality;
// the live screen stream trades quality for frame rate.
const (
	// StepScreenshotQuality is the JPEG quality for step-completion captures.
	StepScreenshotQuality = 70

	// StreamScreenshotQuality is the JPEG quality for live screen frames.
	StreamScreenshotQuality = 55

	// StreamFrameInterval yields roughly 3 frames per second.
	StreamFrameInterval = 350 * time.Millisecond

	// StreamWaitingInterval spaces the "waiting" status frames sent while a
	// run has no browser session.
	StreamWaitingInterval = 1 * time.Second
)

// AI client defaults.
const (
	// AITemperature is fixed for all model invocations.
	AITemperature = 0.3

	// AIThrottleBackoff extends the throttle gate when the provider
	// rate-limits a request.
	AIThrottleBackoff = 10 * time.Second

	// AIMaxRetryAttempts bounds the retry wrapper around model invocations.
	AIMaxRetryAttempts = 3

	// AIRetryWaitUnit is multiplied by the attempt number for the linear
	// retry backoff (5s, 10s, 15s, ...).
	AIRetryWaitUnit = 5 * time.Second

	// AIDefaultMaxTokens applies when a caller passes no token budget.
	AIDefaultMaxTokens = 4096
)

// Engine defaults.
const (
	// ResolutionTimeout bounds a blocked step's wait for an external
	// retry/skip/abort decision. Expiry defaults to abort.
	ResolutionTimeout = 300 * time.Second

	// EventQueueSize bounds each subscriber's event queue. When full, the
	// oldest event is dropped.
	EventQueueSize = 64

	// HeartbeatInterval is the idle period after which a live event stream
	// emits a synthetic heartbeat.
	HeartbeatInterval = 30 * time.Second

	// DefaultWaitSeconds is the pause applied by a wait step with no value.
	DefaultWaitSeconds = 2.0
)

// Store defaults.
const (
	// LockTimeout bounds the wait for the cross-process store lock.
	LockTimeout = 5 * time.Second

	// DirPerm is the permission mode for store directories.
	DirPerm = 0o750

	// FilePerm is the permission mode for store files.
	FilePerm = 0o600
)
