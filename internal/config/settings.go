// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"encoding/json"
	"errors"
	"os"

	"reportforge/cli/internal/xdg"
)

// Settings holds per-user CLI preferences. Secrets never go here; they live in the
// vault or the OS keychain.
type Settings struct {
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format,omitempty"`
	// Concurrency is used when the run file leaves it unset.
	Concurrency int `json:"concurrency"`
	// ConfigPath overrides the default run file location.
	ConfigPath string `json:"config_path,omitempty"`
}

const settingsFile = "settings.json"

// DefaultSettings are used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{LogLevel: "warn", LogFormat: "console", Concurrency: 4}
}

// LoadSettings reads the settings file; a missing file returns defaults.
func LoadSettings() (Settings, error) {
	s := DefaultSettings()
	p, err := xdg.ConfigFile(settingsFile)
	if err != nil {
		return s, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, err
	}
	return s, nil
}

// SaveSettings writes settings with 0600 permissions.
func SaveSettings(s Settings) error {
	p, err := xdg.ConfigFile(settingsFile)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
