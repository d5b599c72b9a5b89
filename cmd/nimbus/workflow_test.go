// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// HELPERS
// =============================================================================

// workflowFixture bundles the runner with its inspectable collaborators.
type workflowFixture struct {
	runner   *WorkflowRunner
	exec     *MockProcessExecutor
	prompter *MockPrompter
	mocks    map[string]*mockController
}

// newWorkflowFixture wires a runner against a mock-backed installer and
// mock controllers. The executor default (exit 0) makes every backend
// call succeed, so tests override only what they break.
func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	exec := &MockProcessExecutor{}
	backend := newTestBackend(exec)
	installer := NewInstaller(backend, &EmbeddedTemplateWriter{}, t.TempDir(), nil, io.Discard)

	registry := DefaultRegistry()
	mocks := make(map[string]*mockController)
	controllers := make(map[string]ComponentController)
	for _, c := range registry.StartOrder() {
		m := &mockController{component: c}
		mocks[c.Name] = m
		controllers[c.Name] = m
	}
	orch := NewServiceOrchestrator(registry, controllers, nil)

	prompter := &MockPrompter{}
	runner := NewWorkflowRunner(installer, orch, prompter, registry, nil, io.Discard)
	return &workflowFixture{runner: runner, exec: exec, prompter: prompter, mocks: mocks}
}

func stepFor(t *testing.T, run *WorkflowRun, state WorkflowState) StepResult {
	t.Helper()
	for _, s := range run.Steps {
		if s.State == state {
			return s
		}
	}
	t.Fatalf("run has no %q step; steps: %+v", state, run.Steps)
	return StepResult{}
}

// =============================================================================
// FULL RUNS
// =============================================================================

// TestWorkflowRun_AllPhasesSucceed drives a complete install of the full
// suite: infrastructure, launch, verification, and a skipped workspace
// setup, ending in overall success.
func TestWorkflowRun_AllPhasesSucceed(t *testing.T) {
	f := newWorkflowFixture(t)

	run := f.runner.Run(context.Background(), TargetAll)

	if !run.OverallSuccess {
		t.Fatalf("expected success, steps: %+v", run.Steps)
	}
	if run.ID == "" {
		t.Error("run ID must be assigned")
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Error("FinishedAt precedes StartedAt")
	}
	if f.runner.State() != WorkflowDone {
		t.Errorf("terminal state = %q, want %q", f.runner.State(), WorkflowDone)
	}

	wantOrder := []WorkflowState{
		WorkflowInstallingInfrastructure,
		WorkflowStartingServices,
		WorkflowHealthChecking,
		WorkflowWorkspaceSetup,
	}
	if len(run.Steps) != len(wantOrder) {
		t.Fatalf("expected %d steps, got %d: %+v", len(wantOrder), len(run.Steps), run.Steps)
	}
	for i, want := range wantOrder {
		if run.Steps[i].State != want {
			t.Errorf("step %d = %q, want %q", i, run.Steps[i].State, want)
		}
		if !run.Steps[i].OK {
			t.Errorf("step %q failed: %s", want, run.Steps[i].Detail)
		}
	}
}

func TestWorkflowRun_InfrastructurePhaseDrivesBackend(t *testing.T) {
	f := newWorkflowFixture(t)

	f.runner.Run(context.Background(), TargetAll)

	var joined []string
	for _, call := range f.exec.GetCalls() {
		joined = append(joined, strings.Join(call.Argv, " "))
	}
	all := strings.Join(joined, "\n")
	for _, want := range []string{
		"docker info",
		"network create nimbus-net",
		"pull",
	} {
		if !strings.Contains(all, want) {
			t.Errorf("backend calls missing %q:\n%s", want, all)
		}
	}
}

// =============================================================================
// HALT POLICY
// =============================================================================

// TestWorkflowRun_InstallFailureHalts verifies the halt policy for the
// infrastructure phase: a broken backend stops the run before any
// component is launched.
func TestWorkflowRun_InstallFailureHalts(t *testing.T) {
	f := newWorkflowFixture(t)
	f.exec.ExecuteFunc = func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
		return ExecResult{ExitCode: -1, Stderr: "command not found or failed to start: exec: docker"}
	}

	run := f.runner.Run(context.Background(), TargetAll)

	if run.OverallSuccess {
		t.Error("expected failure")
	}
	if len(run.Steps) != 1 {
		t.Fatalf("expected only the infrastructure step, got %+v", run.Steps)
	}
	if run.Steps[0].OK {
		t.Error("infrastructure step must be marked failed")
	}
	for name, m := range f.mocks {
		if len(m.calls) != 0 {
			t.Errorf("component %s was launched despite the halt", name)
		}
	}
}

func TestWorkflowRun_NothingStartedHalts(t *testing.T) {
	f := newWorkflowFixture(t)
	for _, m := range f.mocks {
		mc := m
		mc.StartFunc = func(ctx context.Context) *ComponentStatus {
			return unhealthyStatus(mc.component)
		}
	}

	run := f.runner.Run(context.Background(), TargetAll)

	if run.OverallSuccess {
		t.Error("expected failure")
	}
	step := stepFor(t, run, WorkflowStartingServices)
	if step.OK {
		t.Error("launch step must be marked failed")
	}
	if !strings.Contains(step.Detail, "0/4") {
		t.Errorf("detail = %q, want a 0/4 count", step.Detail)
	}
	for _, s := range run.Steps {
		if s.State == WorkflowHealthChecking || s.State == WorkflowWorkspaceSetup {
			t.Errorf("phase %q ran after a total launch failure", s.State)
		}
	}
}

// TestWorkflowRun_PartialStartContinues verifies that one failed
// component does not halt the workflow: the verification pass still runs
// over the components that came up and the run reports partial results.
func TestWorkflowRun_PartialStartContinues(t *testing.T) {
	f := newWorkflowFixture(t)
	core := f.mocks[string(ComponentCore)]
	core.StartFunc = func(ctx context.Context) *ComponentStatus {
		return unhealthyStatus(core.component)
	}

	run := f.runner.Run(context.Background(), TargetAll)

	if run.OverallSuccess {
		t.Error("a degraded run must not claim overall success")
	}
	start := stepFor(t, run, WorkflowStartingServices)
	if !strings.Contains(start.Detail, "3/4") {
		t.Errorf("start detail = %q, want a 3/4 count", start.Detail)
	}
	health := stepFor(t, run, WorkflowHealthChecking)
	if !health.OK || !strings.Contains(health.Detail, "3/3") {
		t.Errorf("health step = %+v, want 3/3 over the started components", health)
	}
	// The component that never came up is not probed again.
	for _, call := range core.calls {
		if call == "status" {
			t.Error("verification probed a component that failed to start")
		}
	}
	// Setup still runs on a degraded stack.
	stepFor(t, run, WorkflowWorkspaceSetup)
}

// TestWorkflowRun_HealthFailureDoesNotHalt pins the phase policy: a
// failed verification is recorded, setup still runs, and only the
// overall flag reflects the failure.
func TestWorkflowRun_HealthFailureDoesNotHalt(t *testing.T) {
	f := newWorkflowFixture(t)
	genie := f.mocks[string(ComponentGenie)]
	genie.StatusFunc = func(ctx context.Context) *ComponentStatus {
		return unhealthyStatus(genie.component)
	}

	run := f.runner.Run(context.Background(), TargetAll)

	if run.OverallSuccess {
		t.Error("expected overall failure")
	}
	health := stepFor(t, run, WorkflowHealthChecking)
	if health.OK {
		t.Error("verification step must be marked failed")
	}
	setup := stepFor(t, run, WorkflowWorkspaceSetup)
	if !setup.OK {
		t.Error("setup must still succeed after a failed verification")
	}
}

// =============================================================================
// TARGET SCOPING
// =============================================================================

func TestWorkflowRun_WorkspaceTargetSkipsInfrastructure(t *testing.T) {
	f := newWorkflowFixture(t)

	run := f.runner.Run(context.Background(), string(ComponentWorkspace))

	infra := stepFor(t, run, WorkflowInstallingInfrastructure)
	if !infra.OK {
		t.Errorf("infrastructure step failed: %s", infra.Detail)
	}
	if !strings.Contains(infra.Detail, "no container infrastructure") {
		t.Errorf("detail = %q, want the skip marker", infra.Detail)
	}
	// No compose pull, no network create: the workspace has no containers.
	for _, call := range f.exec.GetCalls() {
		argv := strings.Join(call.Argv, " ")
		if strings.Contains(argv, "pull") || strings.Contains(argv, "network create") {
			t.Errorf("unexpected backend call for a workspace-only target: %s", argv)
		}
	}
}

func TestWorkflowRun_SingleComponentScopesProfile(t *testing.T) {
	f := newWorkflowFixture(t)

	f.runner.Run(context.Background(), string(ComponentAgent))

	pulled := false
	for _, call := range f.exec.GetCalls() {
		argv := strings.Join(call.Argv, " ")
		if strings.Contains(argv, "pull") {
			pulled = true
			if !strings.Contains(argv, "--profile agent") {
				t.Errorf("pull not scoped to the agent profile: %s", argv)
			}
		}
	}
	if !pulled {
		t.Error("expected an image pull for the agent profile")
	}
	if len(f.mocks[string(ComponentGenie)].calls) != 0 {
		t.Error("genie was touched for an agent-scoped run")
	}
}

// =============================================================================
// WORKSPACE SETUP CHOICES
// =============================================================================

func TestWorkflowRun_WorkspaceSetupCreate(t *testing.T) {
	f := newWorkflowFixture(t)
	f.prompter.SelectFunc = func(ctx context.Context) (WorkspaceSetupChoice, error) {
		return SetupCreate, nil
	}
	f.prompter.NameFunc = func(ctx context.Context, message string) (string, error) {
		return "research", nil
	}

	run := f.runner.Run(context.Background(), TargetAll)

	setup := stepFor(t, run, WorkflowWorkspaceSetup)
	if !setup.OK {
		t.Fatalf("setup failed: %s", setup.Detail)
	}
	if !strings.Contains(setup.Detail, `"research"`) {
		t.Errorf("detail = %q, want the chosen workspace name", setup.Detail)
	}
}

func TestWorkflowRun_WorkspaceSetupEmptyNameDefaults(t *testing.T) {
	f := newWorkflowFixture(t)
	f.prompter.SelectFunc = func(ctx context.Context) (WorkspaceSetupChoice, error) {
		return SetupExisting, nil
	}
	f.prompter.NameFunc = func(ctx context.Context, message string) (string, error) {
		return "", nil
	}

	run := f.runner.Run(context.Background(), TargetAll)

	setup := stepFor(t, run, WorkflowWorkspaceSetup)
	if !strings.Contains(setup.Detail, `"default"`) {
		t.Errorf("detail = %q, want the default workspace name", setup.Detail)
	}
}
