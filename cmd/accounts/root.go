// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil, nil)
}

func newRootCmd(serve *serveDeps, migrate *migrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Accounts - user registration and session service",
		Long: `Accounts serves a JSON API for user registration, login and logout
with signed bearer tokens backed by server-side sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/accounts/config.yaml when present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file path (default "+config.DefaultEnvFile+" when present)")

	cmd.AddCommand(newServeCmd(serve))
	cmd.AddCommand(newMigrateCmd(migrate))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("accounts %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

// loadConfig reads configuration with the command's flags as the top layer.
// Without --config, the XDG config file is used when it exists.
func loadConfig(cmd *cobra.Command, databaseOnly bool) (config.Config, error) {
	file := configFile
	if file == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return config.Config{}, err
		}
		file = found
	}
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(config.LoadOptions{
		File:         file,
		EnvFile:      envFile,
		Flags:        cmd.Flags(),
		DatabaseOnly: databaseOnly,
	})
}
