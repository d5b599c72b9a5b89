// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("executor tests exercise POSIX shell commands")
	}
}

// =============================================================================
// Execute
// =============================================================================

func TestExecute_Success(t *testing.T) {
	requirePOSIX(t)
	exec := NewDefaultProcessExecutor()

	res := exec.Execute(context.Background(), []string{"sh", "-c", "echo hello"}, 5*time.Second)

	if !res.Succeeded() {
		t.Fatalf("expected success, got exit=%d stderr=%q", res.ExitCode, res.Stderr)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("stdout = %q, want hello", res.Stdout)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	requirePOSIX(t)
	exec := NewDefaultProcessExecutor()

	res := exec.Execute(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, 5*time.Second)

	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if res.TimedOut {
		t.Error("non-zero exit must not be reported as timeout")
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("stderr = %q, want captured oops", res.Stderr)
	}
}

// TestExecute_MissingBinary verifies the no-error contract: a missing
// executable is an ordinary outcome reported inside the result.
func TestExecute_MissingBinary(t *testing.T) {
	exec := NewDefaultProcessExecutor()

	res := exec.Execute(context.Background(), []string{"nimbus-test-definitely-missing-binary"}, 5*time.Second)

	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", res.ExitCode)
	}
	if res.Stderr == "" {
		t.Error("expected synthetic stderr for missing binary")
	}
	if res.TimedOut {
		t.Error("missing binary must not be reported as timeout")
	}
}

func TestExecute_Timeout(t *testing.T) {
	requirePOSIX(t)
	exec := NewDefaultProcessExecutor()

	start := time.Now()
	res := exec.Execute(context.Background(), []string{"sleep", "10"}, 200*time.Millisecond)

	if !res.TimedOut {
		t.Fatal("expected TimedOut=true")
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1 on timeout", res.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout did not bound execution, took %s", elapsed)
	}
}

func TestExecute_EmptyArgv(t *testing.T) {
	exec := NewDefaultProcessExecutor()

	res := exec.Execute(context.Background(), nil, time.Second)
	if res.ExitCode != -1 || res.Succeeded() {
		t.Errorf("empty argv must fail, got exit=%d", res.ExitCode)
	}
}

// =============================================================================
// StartDetached / Signal
// =============================================================================

func TestStartDetached_AndSignalLifecycle(t *testing.T) {
	requirePOSIX(t)
	exec := NewDefaultProcessExecutor()
	ctx := context.Background()

	handle, err := exec.StartDetached(ctx, []string{"sleep", "30"}, nil)
	if err != nil {
		t.Fatalf("StartDetached failed: %v", err)
	}
	if handle.PID <= 0 {
		t.Fatalf("invalid PID %d", handle.PID)
	}

	alive, err := exec.Signal(ctx, handle, false)
	if err != nil {
		t.Fatalf("liveness probe failed: %v", err)
	}
	if !alive {
		t.Fatal("freshly started process reported dead")
	}

	if _, err := exec.Signal(ctx, handle, true); err != nil {
		t.Fatalf("stop signal failed: %v", err)
	}

	// TERM delivery is asynchronous; poll briefly.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		alive, _ = exec.Signal(ctx, handle, false)
		if !alive {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if alive {
		t.Error("process still alive after TERM")
	}
}

func TestSignal_NilHandle(t *testing.T) {
	exec := NewDefaultProcessExecutor()

	alive, err := exec.Signal(context.Background(), nil, true)
	if err != nil || alive {
		t.Errorf("nil handle: got alive=%v err=%v, want false,nil", alive, err)
	}
}

// TestStartDetached_RedirectsOutput verifies that a detached process
// writes through the provided destination rather than into the void.
func TestStartDetached_RedirectsOutput(t *testing.T) {
	requirePOSIX(t)
	exec := NewDefaultProcessExecutor()

	path := filepath.Join(t.TempDir(), "detached.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	_, err = exec.StartDetached(context.Background(), []string{"sh", "-c", "echo detached-output"}, f)
	f.Close()
	if err != nil {
		t.Fatalf("StartDetached failed: %v", err)
	}

	// The child writes on its own schedule; poll briefly.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if data, _ := os.ReadFile(path); strings.Contains(string(data), "detached-output") {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("detached process output never reached the log file")
}

func TestStartDetached_MissingBinary(t *testing.T) {
	exec := NewDefaultProcessExecutor()

	if _, err := exec.StartDetached(context.Background(), []string{"nimbus-test-definitely-missing-binary"}, nil); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

// =============================================================================
// Mock
// =============================================================================

func TestMockProcessExecutor_RecordsCallsInOrder(t *testing.T) {
	mock := &MockProcessExecutor{}
	ctx := context.Background()

	mock.Execute(ctx, []string{"docker", "info"}, time.Second)
	if _, err := mock.StartDetached(ctx, []string{"workspace"}, nil); err != nil {
		t.Fatalf("mock StartDetached default errored: %v", err)
	}
	if _, err := mock.Signal(ctx, &ProcessHandle{PID: 1}, true); err != nil {
		t.Fatalf("mock Signal default errored: %v", err)
	}

	calls := mock.GetCalls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", len(calls))
	}
	if calls[0].Method != "Execute" || calls[0].Argv[0] != "docker" {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Method != "StartDetached" {
		t.Errorf("second call = %+v", calls[1])
	}
	if calls[2].Method != "Signal" || !calls[2].Stop {
		t.Errorf("third call = %+v", calls[2])
	}

	mock.Reset()
	if len(mock.GetCalls()) != 0 {
		t.Error("Reset did not clear calls")
	}
}
