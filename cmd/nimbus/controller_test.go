// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// HELPERS
// =============================================================================

func testCoreComponent() Component {
	return Component{
		Kind: ComponentCore,
		Name: string(ComponentCore),
		SubServices: []SubService{
			{ContainerID: "nimbus-core-db", Kind: SubServiceDatabase, Port: 5433, ComposeProfile: "core"},
			{ContainerID: "nimbus-core-api", Kind: SubServiceAPI, Port: 8881, ComposeProfile: "core"},
		},
	}
}

// instantWaiter builds a waiter whose backoff sleeps are no-ops, keeping
// retry-path tests fast and deterministic.
func instantWaiter(checker HealthChecker, maxRetries int) *HealthWaiter {
	w := NewHealthWaiter(checker, RetryPolicy{MaxRetries: maxRetries, BackoffDelay: time.Second})
	w.sleep = func(ctx context.Context, d time.Duration) {}
	return w
}

func newTestContainerController(mock *MockProcessExecutor, checker HealthChecker) ComponentController {
	return NewContainerController(
		testCoreComponent(),
		newTestBackend(mock),
		checker,
		instantWaiter(checker, 3),
		ContainerControllerConfig{QuiescenceDelay: time.Millisecond},
		nil,
		nil,
	)
}

// composeUpCalls filters recorded exec calls down to compose "up"
// invocations, returning the service each one targeted.
func composeUpCalls(calls []ExecutorCall) []string {
	var out []string
	for _, call := range calls {
		argv := strings.Join(call.Argv, " ")
		if idx := strings.Index(argv, "up -d "); idx >= 0 {
			out = append(out, argv[idx+len("up -d "):])
		}
	}
	return out
}

// =============================================================================
// CONTAINER CONTROLLER: START
// =============================================================================

// TestContainerController_Start_DatabaseBeforeAPI verifies the ordered
// bring-up: the database container starts and reaches health before the
// API container is touched.
func TestContainerController_Start_DatabaseBeforeAPI(t *testing.T) {
	mock := &MockProcessExecutor{}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	status := ctrl.Start(context.Background())

	ups := composeUpCalls(mock.GetCalls())
	if len(ups) != 2 {
		t.Fatalf("expected 2 compose up calls, got %d: %v", len(ups), ups)
	}
	if ups[0] != "core-db" || ups[1] != "core-api" {
		t.Errorf("start order = %v, want [core-db core-api]", ups)
	}
	if status.Overall != StateHealthy {
		t.Errorf("overall = %q, want %q", status.Overall, StateHealthy)
	}
	if len(status.SubServices) != 2 {
		t.Errorf("expected 2 sub-service results, got %d", len(status.SubServices))
	}
}

// TestContainerController_Start_StuckDatabaseHaltsSequence verifies that
// a database which never becomes healthy keeps the API from starting,
// and that the API is absent from the returned status rather than
// reported with a guessed state.
func TestContainerController_Start_StuckDatabaseHaltsSequence(t *testing.T) {
	mock := &MockProcessExecutor{}
	checker := &MockHealthChecker{
		ProbeFunc: func(ctx context.Context, sub SubService) ProbeResult {
			return ProbeResult{
				ID:         GenerateID(),
				SubService: sub.ContainerID,
				State:      StateUnhealthy,
				Detail:     "readiness exit code 2",
				CheckedAt:  time.Now(),
			}
		},
	}
	ctrl := newTestContainerController(mock, checker)

	status := ctrl.Start(context.Background())

	ups := composeUpCalls(mock.GetCalls())
	if len(ups) != 1 || ups[0] != "core-db" {
		t.Fatalf("expected only the database to be started, got %v", ups)
	}
	if status.Overall != StateUnhealthy {
		t.Errorf("overall = %q, want %q", status.Overall, StateUnhealthy)
	}
	if _, present := status.SubServices["nimbus-core-api"]; present {
		t.Error("unattempted API sub-service must not appear in the status")
	}
	// The retry budget must be spent before giving up.
	if probes := len(checker.GetProbeCalls()); probes != 3 {
		t.Errorf("expected 3 probe attempts, got %d", probes)
	}
}

func TestContainerController_Start_BackendFailureRecorded(t *testing.T) {
	mock := &MockProcessExecutor{
		ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
			return ExecResult{ExitCode: -1, Stderr: "command not found or failed to start: exec: docker"}
		},
	}
	checker := &MockHealthChecker{}
	ctrl := newTestContainerController(mock, checker)

	status := ctrl.Start(context.Background())

	if status.Overall != StateUnknown {
		t.Errorf("overall = %q, want %q", status.Overall, StateUnknown)
	}
	if probes := len(checker.GetProbeCalls()); probes != 0 {
		t.Errorf("expected no health probes after a failed start, got %d", probes)
	}
	for id, result := range status.SubServices {
		if result.CheckedAt.Location() != time.UTC {
			t.Errorf("synthesized result for %s not in UTC: %v", id, result.CheckedAt.Location())
		}
	}
}

// =============================================================================
// CONTAINER CONTROLLER: STOP
// =============================================================================

// TestContainerController_Stop_ReverseOrder verifies teardown order: the
// API stops before the database it depends on.
func TestContainerController_Stop_ReverseOrder(t *testing.T) {
	mock := &MockProcessExecutor{}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	if !ctrl.Stop(context.Background()) {
		t.Fatal("Stop returned false")
	}

	calls := mock.GetCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 stop calls, got %d", len(calls))
	}
	first := strings.Join(calls[0].Argv, " ")
	second := strings.Join(calls[1].Argv, " ")
	if !strings.Contains(first, "nimbus-core-api") || !strings.Contains(second, "nimbus-core-db") {
		t.Errorf("stop order wrong: %q then %q", first, second)
	}
}

func TestContainerController_Stop_MissingContainersSucceed(t *testing.T) {
	mock := &MockProcessExecutor{
		ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
			return ExecResult{ExitCode: 1, Stderr: "Error response from daemon: No such container: " + argv[len(argv)-1]}
		},
	}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	if !ctrl.Stop(context.Background()) {
		t.Error("stopping an already-absent component must succeed")
	}
}

// TestContainerController_Stop_PartialFailureStillSucceeds pins the
// best-effort contract: one sub-service refusing to stop while another
// stops cleanly is still a success, because not every attempt failed.
func TestContainerController_Stop_PartialFailureStillSucceeds(t *testing.T) {
	mock := &MockProcessExecutor{
		ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
			if argv[len(argv)-1] == "nimbus-core-api" {
				return ExecResult{ExitCode: 1, Stderr: "cannot stop container: permission denied"}
			}
			return ExecResult{ExitCode: 0}
		},
	}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	if !ctrl.Stop(context.Background()) {
		t.Error("Stop must succeed when at least one attempt succeeded")
	}
	if calls := mock.GetCalls(); len(calls) != 2 {
		t.Errorf("expected both containers attempted, got %d calls", len(calls))
	}
}

func TestContainerController_Stop_HardFailureReported(t *testing.T) {
	mock := &MockProcessExecutor{
		ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
			return ExecResult{ExitCode: 1, Stderr: "cannot stop container: permission denied"}
		},
	}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	if ctrl.Stop(context.Background()) {
		t.Error("a hard stop failure must be reported")
	}
	// Both containers are still attempted; one failure never aborts the
	// sweep early.
	if calls := mock.GetCalls(); len(calls) != 2 {
		t.Errorf("expected 2 stop attempts, got %d", len(calls))
	}
}

// =============================================================================
// CONTAINER CONTROLLER: STATUS AND LOGS
// =============================================================================

func TestContainerController_Status_ProbesOncePerSubService(t *testing.T) {
	checker := &MockHealthChecker{}
	ctrl := newTestContainerController(&MockProcessExecutor{}, checker)

	status := ctrl.Status(context.Background())

	if probes := len(checker.GetProbeCalls()); probes != 2 {
		t.Errorf("expected exactly 2 probes, got %d", probes)
	}
	if status.Overall != StateHealthy {
		t.Errorf("overall = %q, want %q", status.Overall, StateHealthy)
	}
}

func TestContainerController_Logs_HeadersAndPlaceholders(t *testing.T) {
	mock := &MockProcessExecutor{
		ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
			last := argv[len(argv)-1]
			if last == "nimbus-core-db" {
				return ExecResult{ExitCode: 0, Stdout: "database system is ready\n"}
			}
			return ExecResult{ExitCode: 1, Stderr: "Error: no such container: " + last}
		},
	}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	out := ctrl.Logs(context.Background(), 50)

	for _, want := range []string{
		"==== nimbus-core-db ====",
		"database system is ready",
		"==== nimbus-core-api ====",
		"(container does not exist)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("logs output missing %q:\n%s", want, out)
		}
	}
}

// =============================================================================
// CONTAINER CONTROLLER: UNINSTALL
// =============================================================================

// TestContainerController_Uninstall_RemovesContainersAndVolumes walks the
// full removal sequence: stop, remove containers in reverse order, then
// list and remove the component's data volumes.
func TestContainerController_Uninstall_RemovesContainersAndVolumes(t *testing.T) {
	mock := &MockProcessExecutor{
		ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
			if strings.Contains(strings.Join(argv, " "), "volume ls") {
				return ExecResult{ExitCode: 0, Stdout: "nimbus-core-data\n"}
			}
			return ExecResult{ExitCode: 0}
		},
	}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	if !ctrl.Uninstall(context.Background()) {
		t.Fatal("Uninstall returned false")
	}

	var sequence []string
	for _, call := range mock.GetCalls() {
		sequence = append(sequence, strings.Join(call.Argv, " "))
	}
	joined := strings.Join(sequence, "\n")
	for _, want := range []string{
		"rm -f nimbus-core-api",
		"rm -f nimbus-core-db",
		"volume ls",
		"volume rm nimbus-core-data",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("uninstall sequence missing %q:\n%s", want, joined)
		}
	}
}

func TestContainerController_Uninstall_Idempotent(t *testing.T) {
	mock := &MockProcessExecutor{
		ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
			if strings.Contains(strings.Join(argv, " "), "volume ls") {
				return ExecResult{ExitCode: 0, Stdout: ""}
			}
			return ExecResult{ExitCode: 1, Stderr: "Error: no such container: gone"}
		},
	}
	ctrl := newTestContainerController(mock, &MockHealthChecker{})

	if !ctrl.Uninstall(context.Background()) {
		t.Error("uninstalling an absent component must succeed")
	}
}

// =============================================================================
// WORKSPACE CONTROLLER
// =============================================================================

func testWorkspaceComponent() Component {
	return Component{
		Kind: ComponentWorkspace,
		Name: string(ComponentWorkspace),
		SubServices: []SubService{
			{ContainerID: "nimbus-workspace", Kind: SubServiceAPI, Port: 8190, ComposeProfile: ""},
		},
	}
}

func newTestWorkspaceController(t *testing.T, mock *MockProcessExecutor, checker HealthChecker) ComponentController {
	t.Helper()
	supervisor := NewWorkspaceSupervisor(mock, []string{"/usr/local/bin/nimbus-workspace"}, t.TempDir())
	return NewWorkspaceController(
		testWorkspaceComponent(),
		supervisor,
		checker,
		instantWaiter(checker, 3),
		nil,
		nil,
	)
}

func TestWorkspaceController_Start_LaunchesAndWaits(t *testing.T) {
	mock := &MockProcessExecutor{
		SignalFunc: func(ctx context.Context, handle *ProcessHandle, stop bool) (bool, error) {
			return false, nil // not already running
		},
	}
	checker := &MockHealthChecker{}
	ctrl := newTestWorkspaceController(t, mock, checker)

	status := ctrl.Start(context.Background())

	if status.Overall != StateHealthy {
		t.Errorf("overall = %q, want %q", status.Overall, StateHealthy)
	}
	launched := false
	for _, call := range mock.GetCalls() {
		if call.Method == "StartDetached" {
			launched = true
		}
	}
	if !launched {
		t.Error("expected the workspace process to be launched")
	}
}

func TestWorkspaceController_Stop_NoPidfileSucceeds(t *testing.T) {
	ctrl := newTestWorkspaceController(t, &MockProcessExecutor{}, &MockHealthChecker{})

	if !ctrl.Stop(context.Background()) {
		t.Error("stopping with no recorded process must succeed")
	}
}

func TestWorkspaceController_Logs_PlaceholderWithoutLogFile(t *testing.T) {
	ctrl := newTestWorkspaceController(t, &MockProcessExecutor{}, &MockHealthChecker{})

	out := ctrl.Logs(context.Background(), 20)

	if !strings.Contains(out, "==== nimbus-workspace ====") {
		t.Errorf("logs output missing header:\n%s", out)
	}
}
