// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves XDG Base Directory paths for reportforge.
//
// The config directory holds the default run file (report.yaml) and the CLI
// settings (settings.json). It falls back to ~/.config when XDG_CONFIG_HOME
// is unset.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "reportforge"

// ConfigDir returns the XDG config directory for reportforge.
// The directory is created with private permissions (0700) if missing.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, appName)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}

// ConfigFile returns the path of name inside ConfigDir.
func ConfigFile(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
