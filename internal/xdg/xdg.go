// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package xdg resolves XDG base directory paths for pinvent.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "pinvent"

// ConfigDir returns $XDG_CONFIG_HOME/pinvent, falling back to ~/.config/pinvent.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// ConfigFile returns the default config file path. found is false when the
// file does not exist.
func ConfigFile() (path string, found bool) {
	dir, err := ConfigDir()
	if err != nil {
		return "", false
	}
	path = filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	return path, true
}
