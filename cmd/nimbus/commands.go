// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/nimbuslabs/nimbus/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	nonInteractive   bool   // Suppress all prompts; workspace setup is skipped
	assumeYes        bool   // Answer yes to confirmations in non-interactive mode
	logsTail         int    // Number of log lines per sub-service
	personalityLevel string // UX personality level (full/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "nimbus",
		Short: "A cli to manage the Nimbus suite on your machine",
		Long: `Nimbus installs, starts, stops, and monitors the Nimbus suite:
				a local workspace process plus containerized component groups
				(agent, genie, core), each pairing a database with an API.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Lifecycle ---
	installCmd = &cobra.Command{
		Use:   "install [component]",
		Short: "Install infrastructure, start services, and verify health",
		Args:  cobra.MaximumNArgs(1),
		Run:   runInstall, // Defined in cmd_install.go
	}
	startCmd = &cobra.Command{
		Use:   "start [component]",
		Short: "Start a component (or all) and wait for it to become healthy",
		Args:  cobra.MaximumNArgs(1),
		Run:   runStart, // Defined in cmd_lifecycle.go
	}
	stopCmd = &cobra.Command{
		Use:   "stop [component]",
		Short: "Stop a component (or all); stopping a stopped component is a no-op",
		Args:  cobra.MaximumNArgs(1),
		Run:   runStop,
	}
	restartCmd = &cobra.Command{
		Use:   "restart [component]",
		Short: "Stop, wait for quiescence, then start a component (or all)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRestart,
	}

	// --- Observation ---
	statusCmd = &cobra.Command{
		Use:   "status [component]",
		Short: "Report the current state of each sub-service, one probe each",
		Args:  cobra.MaximumNArgs(1),
		Run:   runStatus,
	}
	healthCmd = &cobra.Command{
		Use:   "health [component]",
		Short: "Probe health and exit non-zero unless everything is healthy",
		Args:  cobra.MaximumNArgs(1),
		Run:   runHealth,
	}
	logsCmd = &cobra.Command{
		Use:   "logs [component]",
		Short: "Show recent logs for each sub-service",
		Args:  cobra.MaximumNArgs(1),
		Run:   runLogs,
	}

	// --- Removal ---
	uninstallCmd = &cobra.Command{
		Use:   "uninstall [component]",
		Short: "Stop a component (or all) and remove its containers and data volumes",
		Args:  cobra.MaximumNArgs(1),
		Run:   runUninstall,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, minimal, or machine")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false,
		"Never prompt; interactive steps are skipped")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false,
		"Assume yes for confirmations (implies --non-interactive for prompts)")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVar(&logsTail, "tail", 50, "Number of log lines per sub-service")
	rootCmd.AddCommand(uninstallCmd)
}

// targetFromArgs resolves the positional component argument, defaulting
// to the whole suite.
func targetFromArgs(args []string) string {
	if len(args) == 0 {
		return TargetAll
	}
	return args[0]
}
