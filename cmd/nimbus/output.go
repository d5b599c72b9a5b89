// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/nimbuslabs/nimbus/pkg/ux"
)

// osExit is swapped in tests so handlers can be exercised without
// terminating the test binary.
var osExit = os.Exit

// exitCode reduces a command outcome to the process exit code: 0 for
// success, 1 for any failure. No other codes are used.
func exitCode(ok bool) int {
	if ok {
		return 0
	}
	return 1
}

// finish terminates the command with the outcome's exit code.
func finish(ok bool) {
	osExit(exitCode(ok))
}

// stateIcon maps a service state onto a status icon.
func stateIcon(state ServiceState) ux.Icon {
	switch state {
	case StateHealthy:
		return ux.IconSuccess
	case StateStarting:
		return ux.IconPending
	case StateStopped:
		return ux.IconPending
	case StateUnhealthy:
		return ux.IconError
	default:
		return ux.IconWarning
	}
}

// renderComponentStatus prints one component's status block.
func renderComponentStatus(status *ComponentStatus) {
	if status == nil {
		return
	}
	ux.ServiceStatus(status.Component, stateIcon(status.Overall), string(status.Overall))

	// Stable sub-service ordering for readable output.
	ids := make([]string, 0, len(status.SubServices))
	for id := range status.SubServices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		result := status.SubServices[id]
		ux.ServiceStatus("  "+id, stateIcon(result.State), result.Detail)
	}
}

// renderFanOut prints every component result plus a summary line.
func renderFanOut(result *FanOutResult) {
	healthy, degraded := 0, 0
	for _, cr := range result.Results {
		if cr.Status != nil {
			renderComponentStatus(cr.Status)
		} else if cr.OK {
			ux.ServiceStatus(cr.Component, ux.IconSuccess, "")
		} else {
			ux.ServiceStatus(cr.Component, ux.IconError, "operation failed")
		}
		if cr.OK {
			healthy++
		} else {
			degraded++
		}
	}
	if len(result.Results) > 1 {
		ux.Summary(healthy, degraded, len(result.Results))
	}
}

// renderLogs prints collected log sections.
func renderLogs(result *FanOutResult) {
	for _, cr := range result.Results {
		fmt.Print(cr.Output)
	}
}

// renderWorkflowRun prints the per-phase outcome of an install workflow.
func renderWorkflowRun(run *WorkflowRun) {
	ux.Title("Install workflow " + run.ID[:8])
	for _, step := range run.Steps {
		icon := ux.IconSuccess
		if !step.OK {
			icon = ux.IconError
		}
		ux.ServiceStatus(string(step.State), icon, step.Detail)
	}
	if run.OverallSuccess {
		ux.Success("install complete")
	} else {
		ux.Error("install did not fully complete")
		ux.Muted("run 'nimbus status' to inspect the current state")
	}
}
