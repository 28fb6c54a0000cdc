// Package config provides configuration management for webrun with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (WEBRUN_* prefix)
//  3. Project config (.webrun/config.yaml)
//  4. Global config (~/.webrun/config.yaml)
//  5. Built-in defaults
//
// Each higher level completely overrides the lower level for the same key.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for webrun.
// It contains all configuration sections for the application.
type Config struct {
	// Server contains settings for the HTTP API server.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Data contains settings for on-disk persistence.
	Data DataConfig `yaml:"data" mapstructure:"data"`

	// Browser contains settings for the headless browser backend.
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`

	// AI contains settings for the Bedrock model client.
	AI AIConfig `yaml:"ai" mapstructure:"ai"`

	// Engine contains settings for run execution.
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Scheduler contains settings for cron-triggered workflows.
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`

	// Logging contains settings for structured log output.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains settings for the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address for the API server.
	// Default: ":8080"
	Addr string `yaml:"addr" mapstructure:"addr"`

	// ShutdownTimeout is how long graceful shutdown waits for in-flight
	// requests and active runs before forcing exit.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DataConfig contains settings for on-disk persistence.
type DataConfig struct {
	// Dir is the root data directory holding workflow, run and step records.
	// If empty, ~/.webrun is used.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// BrowserConfig contains settings for the headless browser backend.
// When the browser cannot be launched, runs fall back to simulation mode.
type BrowserConfig struct {
	// Enabled controls whether webrun attempts to launch a browser at all.
	// When false every run executes in simulation mode.
	// Default: true
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Headless runs the browser without a visible window.
	// Default: true
	Headless bool `yaml:"headless" mapstructure:"headless"`

	// BinPath is an explicit browser binary path. If empty, a managed
	// Chromium is resolved automatically.
	BinPath string `yaml:"bin_path" mapstructure:"bin_path"`

	// ViewportWidth and ViewportHeight size each session's page.
	// Defaults: 1280x720
	ViewportWidth  int `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height" mapstructure:"viewport_height"`

	// NavigationTimeout is the maximum duration for a page load.
	// Default: 30s
	NavigationTimeout time.Duration `yaml:"navigation_timeout" mapstructure:"navigation_timeout"`

	// NetworkIdleTimeout is how long to wait for the network to settle after
	// navigation before giving up on idle (non-fatal).
	// Default: 10s
	NetworkIdleTimeout time.Duration `yaml:"network_idle_timeout" mapstructure:"network_idle_timeout"`
}

// AIConfig contains settings for the Bedrock model client.
// Self-healing, AI extraction and conditional evaluation all degrade
// gracefully when AI is disabled or throttled.
type AIConfig struct {
	// Enabled controls whether the Bedrock client is constructed at startup.
	// Default: true
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Region is the AWS region hosting the Bedrock models.
	// Default: "us-east-1"
	Region string `yaml:"region" mapstructure:"region"`

	// ModelID is the text model used for extraction, conditionals, healing
	// and summaries.
	ModelID string `yaml:"model_id" mapstructure:"model_id"`

	// VisionModelID is the multimodal model used for screenshot-based element
	// location. If empty, ModelID is used.
	VisionModelID string `yaml:"vision_model_id" mapstructure:"vision_model_id"`

	// MaxTokens is the default completion budget for model calls that do not
	// set their own.
	// Default: 4096
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is applied to every model call.
	// Default: 0.3
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// ThrottleBackoff is how long the client fails fast after the provider
	// rate-limits a call.
	// Default: 10s
	ThrottleBackoff time.Duration `yaml:"throttle_backoff" mapstructure:"throttle_backoff"`

	// MaxRetryAttempts is the number of attempts for throttled calls made
	// through the retrying wrapper. Waits grow linearly between attempts.
	// Default: 3
	MaxRetryAttempts int `yaml:"max_retry_attempts" mapstructure:"max_retry_attempts"`
}

// EngineConfig contains settings for run execution.
type EngineConfig struct {
	// EventQueueSize bounds each subscriber's event queue. When full, the
	// oldest event is dropped to make room.
	// Default: 64
	EventQueueSize int `yaml:"event_queue_size" mapstructure:"event_queue_size"`

	// ResolutionTimeout is how long a failed step waits for an operator
	// decision before the run aborts.
	// Default: 300s
	ResolutionTimeout time.Duration `yaml:"resolution_timeout" mapstructure:"resolution_timeout"`

	// ScreenshotQuality is the JPEG quality for per-step screenshots.
	// Default: 70, Valid range: 1-100
	ScreenshotQuality int `yaml:"screenshot_quality" mapstructure:"screenshot_quality"`

	// HealEnabled controls AI self-healing of failed steps. When false,
	// failures go straight to interactive resolution.
	// Default: true
	HealEnabled bool `yaml:"heal_enabled" mapstructure:"heal_enabled"`
}

// SchedulerConfig contains settings for cron-triggered workflows.
type SchedulerConfig struct {
	// Enabled controls whether the cron scheduler starts with the server.
	// Default: true
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// LoggingConfig contains settings for structured log output.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	// Default: "info"
	Level string `yaml:"level" mapstructure:"level"`

	// File is an optional log file path. When set, logs are written to the
	// file (with rotation) in addition to the console.
	File string `yaml:"file" mapstructure:"file"`
}
