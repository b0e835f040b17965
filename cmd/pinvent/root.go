// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/pinvent/pinvent/internal/config"
	"github.com/pinvent/pinvent/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the pinvent CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pinvent",
		Short: "Pinvent - account and session backend",
		Long: `Pinvent serves the account API of the storefront: registration,
cookie sessions, profile updates, and the password reset flow.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/pinvent/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewJobsCmd())

	return cmd
}

// configPath returns the --config value, else the XDG config file when it
// exists, else "" (defaults, environment, and flags only).
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if path, found := xdg.ConfigFile(); found {
		return path
	}
	return ""
}

// loadConfig loads the configuration with cmd's flags as overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configPath(), cmd.Flags())
}
