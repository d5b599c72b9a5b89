// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nimbuslabs/nimbus/cmd/nimbus/config"
	"github.com/nimbuslabs/nimbus/pkg/ux"
)

// bootstrapSuite loads configuration and wires the production stack.
// All command handlers enter through here so prompter selection and
// config errors behave identically everywhere.
func bootstrapSuite() (*Suite, error) {
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	var prompter UserPrompter
	if nonInteractive || assumeYes {
		prompter = &NonInteractivePrompter{AssumeYes: assumeYes}
	} else {
		prompter = NewInteractivePrompter()
	}

	factory := NewDefaultSuiteFactory()
	suite, err := factory.CreateSuite(&config.Global, prompter)
	if err != nil {
		return nil, err
	}
	return suite, nil
}

// fail prints the error and exits 1. Unknown component errors already
// carry the valid name list from the registry.
func fail(err error) {
	ux.Error(err.Error())
	finish(false)
}

// finishSuite flushes the suite's log file before the process exits.
// finish does not return, so the close cannot ride on a defer.
func finishSuite(suite *Suite, ok bool) {
	suite.Close()
	finish(ok)
}

// failSuite is fail for handlers that already hold a wired suite.
func failSuite(suite *Suite, err error) {
	suite.Close()
	fail(err)
}

func runStart(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}
	result, err := suite.Orchestrator.StartAll(context.Background(), targetFromArgs(args))
	if err != nil {
		failSuite(suite, err)
		return
	}
	renderFanOut(result)
	finishSuite(suite, result.AllSucceeded)
}

func runStop(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}
	result, err := suite.Orchestrator.StopAll(context.Background(), targetFromArgs(args))
	if err != nil {
		failSuite(suite, err)
		return
	}
	renderFanOut(result)
	finishSuite(suite, result.AllSucceeded)
}

func runRestart(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}
	result, err := suite.Orchestrator.RestartAll(context.Background(), targetFromArgs(args))
	if err != nil {
		failSuite(suite, err)
		return
	}
	renderFanOut(result)
	finishSuite(suite, result.AllSucceeded)
}

// runStatus reports the observed state. Reporting a stopped stack is a
// successful report, so status exits 0 as long as the probe ran.
func runStatus(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}
	result, err := suite.Orchestrator.StatusAll(context.Background(), targetFromArgs(args))
	if err != nil {
		failSuite(suite, err)
		return
	}
	renderFanOut(result)
	finishSuite(suite, true)
}

// runHealth is the scripting variant of status: same single probe, but
// the exit code reflects whether everything is healthy.
func runHealth(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}
	result, err := suite.Orchestrator.StatusAll(context.Background(), targetFromArgs(args))
	if err != nil {
		failSuite(suite, err)
		return
	}
	renderFanOut(result)
	finishSuite(suite, result.AllSucceeded)
}

func runLogs(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}
	result, err := suite.Orchestrator.LogsAll(context.Background(), targetFromArgs(args), logsTail)
	if err != nil {
		failSuite(suite, err)
		return
	}
	renderLogs(result)
	finishSuite(suite, true)
}

func runUninstall(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}

	target := targetFromArgs(args)
	prompter := currentPrompter()
	confirmed, err := prompter.Confirm(context.Background(),
		fmt.Sprintf("Uninstall %s? Containers and data volumes will be removed", target))
	if err != nil {
		failSuite(suite, err)
		return
	}
	if !confirmed {
		ux.Muted("uninstall cancelled")
		finishSuite(suite, true)
		return
	}

	result, err := suite.Orchestrator.UninstallAll(context.Background(), target)
	if err != nil {
		failSuite(suite, err)
		return
	}
	renderFanOut(result)
	finishSuite(suite, result.AllSucceeded)
}

// currentPrompter mirrors the prompter selection in bootstrapSuite for
// handlers that prompt directly.
func currentPrompter() UserPrompter {
	if nonInteractive || assumeYes {
		return &NonInteractivePrompter{AssumeYes: assumeYes}
	}
	return NewInteractivePrompter()
}
