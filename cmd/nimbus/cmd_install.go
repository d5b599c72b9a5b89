// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	"github.com/spf13/cobra"
)

// runInstall drives the guided install workflow: infrastructure, service
// start, health verification, and the interactive workspace setup step.
//
// # Examples
//
//	nimbus install                  # Full suite, interactive
//	nimbus install core             # One component group
//	nimbus install --non-interactive # CI: setup step is skipped
func runInstall(cmd *cobra.Command, args []string) {
	suite, err := bootstrapSuite()
	if err != nil {
		fail(err)
		return
	}

	target := targetFromArgs(args)
	if _, err := suite.Registry.Lookup(target); err != nil && !suite.Registry.IsAll(target) {
		failSuite(suite, err)
		return
	}

	run := suite.Workflow.Run(context.Background(), target)
	renderWorkflowRun(run)
	finishSuite(suite, run.OverallSuccess)
}
