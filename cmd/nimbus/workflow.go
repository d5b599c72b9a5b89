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
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/pkg/logging"
	"github.com/nimbuslabs/nimbus/pkg/ux"
)

// =============================================================================
// Workflow States
// =============================================================================

// WorkflowState is one phase of the guided install workflow.
//
// Transitions are linear: Idle -> InstallingInfrastructure ->
// StartingServices -> HealthChecking -> WorkspaceSetup -> Done. A phase
// failure either halts the run (infrastructure, service launch) or is
// recorded and carried forward (health verification, setup skip).
type WorkflowState string

const (
	// WorkflowIdle is the initial state before Run is called.
	WorkflowIdle WorkflowState = "idle"

	// WorkflowInstallingInfrastructure covers preflight, artifact
	// generation, network creation, and image pull.
	WorkflowInstallingInfrastructure WorkflowState = "installing_infrastructure"

	// WorkflowStartingServices covers launching sub-services and waiting
	// for each to become healthy.
	WorkflowStartingServices WorkflowState = "starting_services"

	// WorkflowHealthChecking is the final single-probe verification pass
	// over everything that was started.
	WorkflowHealthChecking WorkflowState = "health_checking"

	// WorkflowWorkspaceSetup is the interactive workspace provisioning
	// step. Skipping it is a success.
	WorkflowWorkspaceSetup WorkflowState = "workspace_setup"

	// WorkflowDone is the terminal state.
	WorkflowDone WorkflowState = "done"
)

// StepResult records the outcome of one workflow phase.
type StepResult struct {
	// State is the phase this result belongs to.
	State WorkflowState

	// OK is the phase success flag.
	OK bool

	// Detail is a human-readable outcome summary.
	Detail string
}

// WorkflowRun is the record of one install workflow execution.
type WorkflowRun struct {
	// ID uniquely identifies this run in logs.
	ID string

	// Target is the component (or "all") the run operated on.
	Target string

	// Steps holds per-phase results in execution order. Phases that were
	// never reached are absent.
	Steps []StepResult

	// OverallSuccess is true only when every executed phase succeeded.
	OverallSuccess bool

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time
}

// =============================================================================
// Workflow Runner
// =============================================================================

// WorkflowRunner drives the guided install workflow.
//
// # Description
//
// The runner sequences the installer, the orchestrator, and the user
// prompter through the workflow phases. It owns phase ordering and the
// halt-versus-continue policy; the actual work lives in its
// collaborators, which keeps each phase independently testable.
type WorkflowRunner struct {
	installer    *Installer
	orchestrator *ServiceOrchestrator
	prompter     UserPrompter
	registry     *ComponentRegistry
	logger       *logging.Logger
	out          io.Writer

	state WorkflowState
}

// NewWorkflowRunner wires a runner from its collaborators.
func NewWorkflowRunner(
	installer *Installer,
	orchestrator *ServiceOrchestrator,
	prompter UserPrompter,
	registry *ComponentRegistry,
	logger *logging.Logger,
	out io.Writer,
) *WorkflowRunner {
	if logger == nil {
		logger = logging.Default()
	}
	return &WorkflowRunner{
		installer:    installer,
		orchestrator: orchestrator,
		prompter:     prompter,
		registry:     registry,
		logger:       logger,
		out:          out,
		state:        WorkflowIdle,
	}
}

// State returns the runner's current phase.
func (r *WorkflowRunner) State() WorkflowState {
	return r.state
}

// transition advances the runner to the next phase.
func (r *WorkflowRunner) transition(run *WorkflowRun, next WorkflowState) {
	r.logger.Info("workflow transition",
		"from", string(r.state),
		"to", string(next))
	r.state = next
}

// Run executes the install workflow against target.
//
// # Description
//
// Phase policy: an infrastructure failure halts the run immediately (no
// point starting services on a broken backend), and a launch phase where
// nothing came up halts as well. A health verification failure is
// recorded but does not halt: a summary of a partially healthy stack is
// more useful than an early exit. Declining workspace setup is a valid
// choice, never a failure.
//
// # Outputs
//
//   - *WorkflowRun: The per-phase record; never nil.
func (r *WorkflowRunner) Run(ctx context.Context, target string) *WorkflowRun {
	run := &WorkflowRun{
		ID:        uuid.NewString(),
		Target:    target,
		StartedAt: time.Now(),
	}
	// The runner is one-shot, so tagging its logger with the run ID is
	// safe and saves threading the attribute through every phase.
	r.logger = r.logger.With("run", run.ID)
	defer func() {
		run.FinishedAt = time.Now()
		r.transition(run, WorkflowDone)
	}()
	defer recoverOperation(r.logger, target, "workflow")

	if !r.runInstall(ctx, run, target) {
		return run
	}
	started, ok := r.runStart(ctx, run, target)
	if !ok {
		return run
	}
	r.runHealthCheck(ctx, run, started)
	r.runWorkspaceSetup(ctx, run)

	run.OverallSuccess = true
	for _, step := range run.Steps {
		if !step.OK {
			run.OverallSuccess = false
			break
		}
	}
	return run
}

// runInstall executes the infrastructure phase. Returns false to halt.
func (r *WorkflowRunner) runInstall(ctx context.Context, run *WorkflowRun, target string) bool {
	r.transition(run, WorkflowInstallingInfrastructure)

	profile, skip := r.installProfile(target)
	if skip {
		run.Steps = append(run.Steps, StepResult{
			State:  WorkflowInstallingInfrastructure,
			OK:     true,
			Detail: "no container infrastructure required",
		})
		return true
	}

	spin := ux.NewSpinner("Preparing container infrastructure")
	if r.out != nil {
		spin = spin.WithWriter(r.out)
	}
	spin.Start()
	err := r.installer.InstallInfrastructure(ctx, profile)
	spin.Stop()
	if err != nil {
		run.Steps = append(run.Steps, StepResult{
			State:  WorkflowInstallingInfrastructure,
			Detail: err.Error(),
		})
		return false
	}
	run.Steps = append(run.Steps, StepResult{
		State:  WorkflowInstallingInfrastructure,
		OK:     true,
		Detail: "infrastructure ready",
	})
	return true
}

// installProfile maps a CLI target onto a compose profile scope. The
// empty profile means "all profiles"; skip is true when the target has
// no containers at all.
func (r *WorkflowRunner) installProfile(target string) (profile string, skip bool) {
	if r.registry.IsAll(target) {
		return "", false
	}
	component, err := r.registry.Lookup(target)
	if err != nil {
		return "", false
	}
	for _, sub := range component.SubServices {
		if !sub.IsLocalProcess() {
			return sub.ComposeProfile, false
		}
	}
	return "", true
}

// runStart executes the service launch phase. Returns the names of the
// components that came up, and false to halt, which happens only when
// not a single component started.
func (r *WorkflowRunner) runStart(ctx context.Context, run *WorkflowRun, target string) ([]string, bool) {
	r.transition(run, WorkflowStartingServices)

	result, err := r.orchestrator.StartAll(ctx, target)
	if err != nil {
		run.Steps = append(run.Steps, StepResult{
			State:  WorkflowStartingServices,
			Detail: err.Error(),
		})
		return nil, false
	}

	var started []string
	for _, cr := range result.Results {
		if cr.OK {
			started = append(started, cr.Component)
		}
	}
	step := StepResult{
		State:  WorkflowStartingServices,
		OK:     result.AllSucceeded,
		Detail: fmt.Sprintf("%d/%d components started", len(started), len(result.Results)),
	}
	run.Steps = append(run.Steps, step)
	if len(started) == 0 {
		r.logger.Error("no component started; halting workflow")
		return nil, false
	}
	return started, true
}

// runHealthCheck executes the verification phase over the components the
// launch phase brought up; services that failed to start are not probed
// again. Never halts.
func (r *WorkflowRunner) runHealthCheck(ctx context.Context, run *WorkflowRun, started []string) {
	r.transition(run, WorkflowHealthChecking)

	healthy := 0
	allHealthy := true
	for _, name := range started {
		result, err := r.orchestrator.StatusAll(ctx, name)
		if err != nil {
			run.Steps = append(run.Steps, StepResult{
				State:  WorkflowHealthChecking,
				Detail: err.Error(),
			})
			return
		}
		if result.AllSucceeded {
			healthy++
		} else {
			allHealthy = false
		}
	}
	run.Steps = append(run.Steps, StepResult{
		State:  WorkflowHealthChecking,
		OK:     allHealthy,
		Detail: fmt.Sprintf("%d/%d started components healthy", healthy, len(started)),
	})
}

// runWorkspaceSetup executes the interactive setup phase. A skip is a
// success; only a prompt failure marks the step failed.
func (r *WorkflowRunner) runWorkspaceSetup(ctx context.Context, run *WorkflowRun) {
	r.transition(run, WorkflowWorkspaceSetup)

	choice, err := r.prompter.SelectWorkspaceSetup(ctx)
	if err != nil {
		run.Steps = append(run.Steps, StepResult{
			State:  WorkflowWorkspaceSetup,
			Detail: fmt.Sprintf("setup prompt failed: %v", err),
		})
		return
	}

	switch choice {
	case SetupSkip:
		run.Steps = append(run.Steps, StepResult{
			State:  WorkflowWorkspaceSetup,
			OK:     true,
			Detail: "workspace setup skipped",
		})
	case SetupCreate, SetupExisting:
		name, err := r.prompter.WorkspaceName(ctx, "Workspace name")
		if err != nil {
			run.Steps = append(run.Steps, StepResult{
				State:  WorkflowWorkspaceSetup,
				Detail: fmt.Sprintf("workspace name prompt failed: %v", err),
			})
			return
		}
		if name == "" {
			name = "default"
		}
		r.logger.Info("workspace selected", "choice", string(choice), "name", name)
		safeWrite(r.out, "Workspace %q will be used on next workspace start.\n", name)
		run.Steps = append(run.Steps, StepResult{
			State:  WorkflowWorkspaceSetup,
			OK:     true,
			Detail: fmt.Sprintf("workspace %q (%s)", name, choice),
		})
	default:
		run.Steps = append(run.Steps, StepResult{
			State:  WorkflowWorkspaceSetup,
			Detail: fmt.Sprintf("unrecognized setup choice %q", choice),
		})
	}
}
