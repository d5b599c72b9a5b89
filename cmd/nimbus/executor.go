// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
ProcessExecutor abstracts external process execution for the Nimbus CLI.

Every interaction with the container backend and the workspace process
goes through this interface. Direct exec.Command calls are not testable
because they execute real processes; routing them through ProcessExecutor
lets unit tests substitute a mock, capture invocations, and simulate
success and failure without spawning anything.

# Design Rationale

Execute never returns a Go error for the common failure modes. A missing
executable, a non-zero exit code, and a timeout are all ordinary outcomes
of driving an external backend, so they are reported inside ExecResult
and the caller decides what they mean. This is the only place that
touches the process boundary.
*/
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Result Types
// =============================================================================

// ExecResult is the structured outcome of one external command.
//
// # Description
//
// Captures everything a caller needs to classify the outcome: exit code,
// both output streams, and whether the bounded timeout fired. ExitCode is
// -1 when the process could not be started at all (missing executable);
// in that case Stderr carries a synthetic message.
type ExecResult struct {
	// ExitCode is the process exit code, or -1 if the process never ran.
	ExitCode int

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error, or a synthetic message when
	// the executable was not found.
	Stderr string

	// TimedOut is true when the timeout elapsed and the process was killed.
	TimedOut bool
}

// Succeeded reports whether the command ran and exited zero.
func (r ExecResult) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// ProcessHandle identifies a detached local process started by the CLI.
//
// # Description
//
// The handle is returned by StartDetached and threaded explicitly through
// stop/restart by the caller. There is no package-level "current process"
// state; whoever starts the workspace owns its handle.
type ProcessHandle struct {
	// PID is the operating system process ID.
	PID int

	// Command is the argv that was started, for diagnostics.
	Command []string

	// StartedAt is when the process was launched.
	StartedAt time.Time
}

// =============================================================================
// Interface Definition
// =============================================================================

// ProcessExecutor runs external commands with bounded timeouts.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Context Handling
//
// Execute derives a timeout context when timeout > 0; cancellation of the
// parent context also terminates the child process.
type ProcessExecutor interface {
	// Execute runs argv synchronously and returns a structured result.
	//
	// # Description
	//
	// Runs the command, captures stdout and stderr separately, and
	// enforces the optional timeout by killing the process. Never
	// returns an error: a missing executable yields ExitCode -1 with a
	// synthetic stderr, a non-zero exit yields that exit code, and a
	// timeout yields TimedOut = true.
	//
	// # Inputs
	//
	//   - ctx: Parent context; cancellation kills the process.
	//   - argv: Command and arguments. Must be non-empty.
	//   - timeout: Upper bound for the run. Zero means ctx bounds alone.
	//
	// # Outputs
	//
	//   - ExecResult: Structured outcome, always populated.
	//
	// # Examples
	//
	//	res := exec.Execute(ctx, []string{"docker", "info"}, 10*time.Second)
	//	if !res.Succeeded() {
	//	    fmt.Println("backend unavailable:", res.Stderr)
	//	}
	Execute(ctx context.Context, argv []string, timeout time.Duration) ExecResult

	// StartDetached launches a background process and returns its handle.
	//
	// # Description
	//
	// Starts argv without waiting for completion. The child's stdout and
	// stderr are redirected to output when it is non-nil, and discarded
	// otherwise. Unlike Execute, this returns an error because a process
	// that fails to launch leaves nothing for the caller to manage.
	//
	// # Inputs
	//
	//   - ctx: Reserved for future use; does not bound the child lifetime.
	//   - argv: Command and arguments. Must be non-empty.
	//   - output: Combined stdout/stderr destination. May be nil.
	//
	// # Outputs
	//
	//   - *ProcessHandle: Handle for the started process.
	//   - error: Non-nil if the process failed to start.
	StartDetached(ctx context.Context, argv []string, output io.Writer) (*ProcessHandle, error)

	// Signal checks or stops a process previously started via StartDetached.
	//
	// stop=false only probes whether the process is still alive.
	// Returns (alive, error); error is reserved for signalling failures
	// other than "no such process".
	Signal(ctx context.Context, handle *ProcessHandle, stop bool) (bool, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultProcessExecutor implements ProcessExecutor using os/exec.
//
// This is the production implementation. Use MockProcessExecutor in tests.
type DefaultProcessExecutor struct{}

// NewDefaultProcessExecutor creates a ProcessExecutor backed by os/exec.
func NewDefaultProcessExecutor() *DefaultProcessExecutor {
	return &DefaultProcessExecutor{}
}

// Execute runs argv synchronously and returns a structured result.
func (e *DefaultProcessExecutor) Execute(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
	if len(argv) == 0 {
		return ExecResult{ExitCode: -1, Stderr: "empty command"}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		result.ExitCode = 0
		return result
	}

	// CommandContext kills the child when the deadline fires; report it
	// as a timeout rather than a plain failure.
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		if result.Stderr == "" {
			result.Stderr = fmt.Sprintf("command timed out after %s: %s", timeout, strings.Join(argv, " "))
		}
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result
	}

	// Startup failure: executable missing, permission denied, etc.
	result.ExitCode = -1
	if result.Stderr == "" {
		result.Stderr = fmt.Sprintf("command not found or failed to start: %v", err)
	}
	return result
}

// StartDetached launches a background process and returns its handle.
func (e *DefaultProcessExecutor) StartDetached(ctx context.Context, argv []string, output io.Writer) (*ProcessHandle, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if output != nil {
		cmd.Stdout = output
		cmd.Stderr = output
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	// Reap the child when it exits so it does not linger as a zombie for
	// the lifetime of this CLI invocation.
	go func() { _ = cmd.Wait() }()

	return &ProcessHandle{
		PID:       cmd.Process.Pid,
		Command:   argv,
		StartedAt: time.Now(),
	}, nil
}

// Signal checks or stops a detached process by PID.
func (e *DefaultProcessExecutor) Signal(ctx context.Context, handle *ProcessHandle, stop bool) (bool, error) {
	if handle == nil || handle.PID <= 0 {
		return false, nil
	}

	// kill -0 probes liveness without delivering a signal.
	sig := "-0"
	if stop {
		sig = "-TERM"
	}
	res := e.Execute(ctx, []string{"kill", sig, fmt.Sprintf("%d", handle.PID)}, DefaultSignalTimeout)
	if res.ExitCode == 0 {
		return true, nil
	}
	// kill exits 1 for "no such process"; anything else is a real failure.
	if strings.Contains(strings.ToLower(res.Stderr), "no such process") || res.Stderr == "" {
		return false, nil
	}
	return false, fmt.Errorf("signal pid %d: %s", handle.PID, strings.TrimSpace(res.Stderr))
}

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockProcessExecutor is a test double for ProcessExecutor.
//
// Configure the mock by setting function fields before use. Every call is
// recorded in Calls for order and argument assertions.
//
// # Examples
//
//	mock := &MockProcessExecutor{
//	    ExecuteFunc: func(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
//	        if argv[0] == "docker" && argv[1] == "info" {
//	            return ExecResult{ExitCode: 0}
//	        }
//	        return ExecResult{ExitCode: 1, Stderr: "unexpected command"}
//	    },
//	}
type MockProcessExecutor struct {
	// ExecuteFunc is called when Execute is invoked. When nil, Execute
	// returns a zero-exit result so callers that only care about call
	// recording do not need boilerplate.
	ExecuteFunc func(ctx context.Context, argv []string, timeout time.Duration) ExecResult

	// StartDetachedFunc is called when StartDetached is invoked.
	StartDetachedFunc func(ctx context.Context, argv []string, output io.Writer) (*ProcessHandle, error)

	// SignalFunc is called when Signal is invoked.
	SignalFunc func(ctx context.Context, handle *ProcessHandle, stop bool) (bool, error)

	// Calls records all method invocations for verification.
	Calls []ExecutorCall

	mu sync.Mutex
}

// ExecutorCall records a single method invocation.
type ExecutorCall struct {
	Method string
	Argv   []string
	Stop   bool
}

// Execute delegates to ExecuteFunc and records the call.
func (m *MockProcessExecutor) Execute(ctx context.Context, argv []string, timeout time.Duration) ExecResult {
	m.record(ExecutorCall{Method: "Execute", Argv: append([]string(nil), argv...)})
	if m.ExecuteFunc == nil {
		return ExecResult{ExitCode: 0}
	}
	return m.ExecuteFunc(ctx, argv, timeout)
}

// StartDetached delegates to StartDetachedFunc and records the call.
func (m *MockProcessExecutor) StartDetached(ctx context.Context, argv []string, output io.Writer) (*ProcessHandle, error) {
	m.record(ExecutorCall{Method: "StartDetached", Argv: append([]string(nil), argv...)})
	if m.StartDetachedFunc == nil {
		return &ProcessHandle{PID: 4242, Command: argv, StartedAt: time.Now()}, nil
	}
	return m.StartDetachedFunc(ctx, argv, output)
}

// Signal delegates to SignalFunc and records the call.
func (m *MockProcessExecutor) Signal(ctx context.Context, handle *ProcessHandle, stop bool) (bool, error) {
	m.record(ExecutorCall{Method: "Signal", Stop: stop})
	if m.SignalFunc == nil {
		return false, nil
	}
	return m.SignalFunc(ctx, handle, stop)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessExecutor) GetCalls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutorCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Reset clears all recorded calls.
func (m *MockProcessExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

func (m *MockProcessExecutor) record(c ExecutorCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
}

// Compile-time interface compliance check.
var (
	_ ProcessExecutor = (*DefaultProcessExecutor)(nil)
	_ ProcessExecutor = (*MockProcessExecutor)(nil)
)
