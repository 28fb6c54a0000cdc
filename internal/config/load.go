package config

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/webrunhq/webrun/internal/errors"
)

// newViperInstance creates a new Viper instance with standard webrun configuration.
// This includes environment variable prefix (WEBRUN_), key replacer, and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("WEBRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// isConfigNotFoundError returns true if the error is a viper config file not found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config struct and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (WEBRUN_* prefix)
//  2. Project config (.webrun/config.yaml)
//  3. Global config (~/.webrun/config.yaml)
//  4. Built-in defaults
//
// For CLI flag overrides, use LoadWithOverrides instead.
//
// The function returns an error only for actual configuration problems,
// not for missing config files (which are expected in many scenarios).
func Load(ctx context.Context) (*Config, error) {
	v := newViperInstance()

	// Load global config first (lower precedence)
	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}

	// Load project config (higher precedence, merges over global)
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Str("server.addr", cfg.Server.Addr).
		Bool("browser.enabled", cfg.Browser.Enabled).
		Bool("ai.enabled", cfg.AI.Enabled).
		Dur("engine.resolution_timeout", cfg.Engine.ResolutionTimeout).
		Msg("configuration loaded and unmarshaled")

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// loadGlobalConfig attempts to load the global config file (~/.webrun/config.yaml).
// Returns nil if the file doesn't exist or home directory cannot be determined.
func loadGlobalConfig(v *viper.Viper) error {
	globalConfigPath, ok := getGlobalConfigPathIfExists()
	if !ok {
		return nil
	}

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// getGlobalConfigPathIfExists returns the global config path if it exists.
func getGlobalConfigPathIfExists() (string, bool) {
	globalConfigPath, err := GlobalConfigPath()
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(globalConfigPath); err != nil {
		return "", false
	}
	return globalConfigPath, true
}

// loadProjectConfig attempts to load the project config file (.webrun/config.yaml).
// Returns nil if the file doesn't exist.
func loadProjectConfig(v *viper.Viper) error {
	projectConfigPath := ProjectConfigPath()
	if !fileExists(projectConfigPath) {
		return nil
	}

	v.SetConfigFile(projectConfigPath)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read project config file")
	}
	return nil
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadWithOverrides loads configuration and applies CLI flag overrides.
// The overrides parameter contains values from CLI flags which have the
// highest precedence in the configuration hierarchy.
//
// Only non-zero values in overrides are applied. Zero values are ignored
// to allow partial overrides.
func LoadWithOverrides(ctx context.Context, overrides *Config) (*Config, error) {
	cfg, err := Load(ctx)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration after overrides")
	}

	return cfg, nil
}

// LoadFromPaths loads configuration from specific file paths for testing.
//
// projectConfigPath is the path to project-level config (higher priority).
// globalConfigPath is the path to global config (lower priority).
// Either path can be empty to skip that level.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

// setDefaults configures all default values on the Viper instance.
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Data defaults
	v.SetDefault("data.dir", "")

	// Browser defaults
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.network_idle_timeout", "10s")

	// AI defaults
	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.region", "us-east-1")
	v.SetDefault("ai.model_id", "amazon.nova-lite-v1:0")
	v.SetDefault("ai.vision_model_id", "")
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.temperature", 0.3)
	v.SetDefault("ai.throttle_backoff", "10s")
	v.SetDefault("ai.max_retry_attempts", 3)

	// Engine defaults
	v.SetDefault("engine.event_queue_size", 64)
	v.SetDefault("engine.resolution_timeout", "300s")
	v.SetDefault("engine.screenshot_quality", 70)
	v.SetDefault("engine.heal_enabled", true)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// applyOverrides merges non-zero override values into the config.
// Only non-zero values are applied to allow partial overrides.
//
// IMPORTANT: Boolean fields (Browser.Enabled, AI.Enabled, Scheduler.Enabled,
// Engine.HealEnabled) cannot be overridden to false using this function
// because Go's zero value for bool is false. CLI implementations should
// handle boolean flags separately via cmd.Flags().Changed.
func applyOverrides(cfg, overrides *Config) {
	if overrides.Server.Addr != "" {
		cfg.Server.Addr = overrides.Server.Addr
	}
	if overrides.Server.ShutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = overrides.Server.ShutdownTimeout
	}
	if overrides.Data.Dir != "" {
		cfg.Data.Dir = overrides.Data.Dir
	}

	applyBrowserOverrides(cfg, overrides)
	applyAIOverrides(cfg, overrides)

	if overrides.Engine.EventQueueSize != 0 {
		cfg.Engine.EventQueueSize = overrides.Engine.EventQueueSize
	}
	if overrides.Engine.ResolutionTimeout != 0 {
		cfg.Engine.ResolutionTimeout = overrides.Engine.ResolutionTimeout
	}
	if overrides.Engine.ScreenshotQuality != 0 {
		cfg.Engine.ScreenshotQuality = overrides.Engine.ScreenshotQuality
	}

	if overrides.Logging.Level != "" {
		cfg.Logging.Level = overrides.Logging.Level
	}
	if overrides.Logging.File != "" {
		cfg.Logging.File = overrides.Logging.File
	}
}

// applyBrowserOverrides applies browser-related overrides to the config.
func applyBrowserOverrides(cfg, overrides *Config) {
	if overrides.Browser.BinPath != "" {
		cfg.Browser.BinPath = overrides.Browser.BinPath
	}
	if overrides.Browser.ViewportWidth != 0 {
		cfg.Browser.ViewportWidth = overrides.Browser.ViewportWidth
	}
	if overrides.Browser.ViewportHeight != 0 {
		cfg.Browser.ViewportHeight = overrides.Browser.ViewportHeight
	}
	if overrides.Browser.NavigationTimeout != 0 {
		cfg.Browser.NavigationTimeout = overrides.Browser.NavigationTimeout
	}
	if overrides.Browser.NetworkIdleTimeout != 0 {
		cfg.Browser.NetworkIdleTimeout = overrides.Browser.NetworkIdleTimeout
	}
}

// applyAIOverrides applies AI-related overrides to the config.
func applyAIOverrides(cfg, overrides *Config) {
	if overrides.AI.Region != "" {
		cfg.AI.Region = overrides.AI.Region
	}
	if overrides.AI.ModelID != "" {
		cfg.AI.ModelID = overrides.AI.ModelID
	}
	if overrides.AI.VisionModelID != "" {
		cfg.AI.VisionModelID = overrides.AI.VisionModelID
	}
	if overrides.AI.MaxTokens != 0 {
		cfg.AI.MaxTokens = overrides.AI.MaxTokens
	}
	if overrides.AI.Temperature != 0 {
		cfg.AI.Temperature = overrides.AI.Temperature
	}
	if overrides.AI.ThrottleBackoff != 0 {
		cfg.AI.ThrottleBackoff = overrides.AI.ThrottleBackoff
	}
	if overrides.AI.MaxRetryAttempts != 0 {
		cfg.AI.MaxRetryAttempts = overrides.AI.MaxRetryAttempts
	}
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// This configures mapstructure to handle time.Duration conversion from strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}
