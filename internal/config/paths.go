package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/errors"
)

// GlobalConfigDir returns the path to the global webrun configuration directory.
// This is typically ~/.webrun on Unix systems.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.WebrunHome), nil
}

// ProjectConfigDir returns the relative path to the project configuration directory.
// This is always .webrun relative to the working directory.
func ProjectConfigDir() string {
	return constants.WebrunHome
}

// GlobalConfigPath returns the full path to the global configuration file.
// This is typically ~/.webrun/config.yaml on Unix systems.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ProjectConfigPath returns the relative path to the project configuration file.
// This is always .webrun/config.yaml relative to the working directory.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.yaml")
}

// DataDir resolves the effective data directory for cfg, falling back to the
// global ~/.webrun directory when data.dir is unset.
func DataDir(cfg *Config) (string, error) {
	if cfg != nil && cfg.Data.Dir != "" {
		return cfg.Data.Dir, nil
	}
	return GlobalConfigDir()
}
