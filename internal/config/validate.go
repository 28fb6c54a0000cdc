package config

import (
	"github.com/webrunhq/webrun/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
//
// Validation rules:
//   - Server addr must not be empty
//   - Browser viewport dimensions and timeouts must be positive
//   - AI max tokens must be positive, temperature within [0, 1]
//   - AI throttle backoff must be positive, retry attempts at least 1
//   - Engine queue size, resolution timeout and screenshot quality must be valid
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return err
	}

	if err := validateBrowserConfig(&cfg.Browser); err != nil {
		return err
	}

	if err := validateAIConfig(&cfg.AI); err != nil {
		return err
	}

	if err := validateEngineConfig(&cfg.Engine); err != nil {
		return err
	}

	return nil
}

// validateServerConfig checks server-specific configuration values.
func validateServerConfig(cfg *ServerConfig) error {
	if cfg.Addr == "" {
		return errors.Wrap(errors.ErrConfigInvalidServer,
			"server.addr must not be empty")
	}

	if cfg.ShutdownTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidServer,
			"server.shutdown_timeout must be positive, got %s", cfg.ShutdownTimeout)
	}

	return nil
}

// validateBrowserConfig checks browser-specific configuration values.
func validateBrowserConfig(cfg *BrowserConfig) error {
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidBrowser,
			"browser viewport must be positive, got %dx%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}

	if cfg.NavigationTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidBrowser,
			"browser.navigation_timeout must be positive, got %s", cfg.NavigationTimeout)
	}

	if cfg.NetworkIdleTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidBrowser,
			"browser.network_idle_timeout must be positive, got %s", cfg.NetworkIdleTimeout)
	}

	return nil
}

// validateAIConfig checks AI-specific configuration values.
func validateAIConfig(cfg *AIConfig) error {
	if cfg.MaxTokens <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidAI,
			"ai.max_tokens must be positive, got %d", cfg.MaxTokens)
	}

	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return errors.Wrapf(errors.ErrConfigInvalidAI,
			"ai.temperature must be between 0 and 1, got %g", cfg.Temperature)
	}

	if cfg.ThrottleBackoff <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidAI,
			"ai.throttle_backoff must be positive, got %s", cfg.ThrottleBackoff)
	}

	if cfg.MaxRetryAttempts < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidAI,
			"ai.max_retry_attempts must be at least 1, got %d", cfg.MaxRetryAttempts)
	}

	if cfg.Enabled && cfg.ModelID == "" {
		return errors.Wrap(errors.ErrConfigInvalidAI,
			"ai.model_id must be set when ai is enabled")
	}

	return nil
}

// validateEngineConfig checks engine-specific configuration values.
func validateEngineConfig(cfg *EngineConfig) error {
	if cfg.EventQueueSize <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidEngine,
			"engine.event_queue_size must be positive, got %d", cfg.EventQueueSize)
	}

	if cfg.ResolutionTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidEngine,
			"engine.resolution_timeout must be positive, got %s", cfg.ResolutionTimeout)
	}

	if cfg.ScreenshotQuality < 1 || cfg.ScreenshotQuality > 100 {
		return errors.Wrapf(errors.ErrConfigInvalidEngine,
			"engine.screenshot_quality must be between 1 and 100, got %d", cfg.ScreenshotQuality)
	}

	return nil
}
