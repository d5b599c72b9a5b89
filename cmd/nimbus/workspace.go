// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
WorkspaceSupervisor manages the local workspace process.

The workspace is the one component that is not containerized: it is a
plain OS process started detached by the CLI. Its handle (PID, argv,
start time) is an explicit value returned by StartProcess and threaded
through stop/restart by the caller; because every CLI invocation is a
fresh process, the handle is also persisted to a pidfile so a later
invocation can re-load it. There is no package-level current-process
state.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrWorkspaceNotRunning is returned when an operation needs a live
// workspace process and none is recorded.
var ErrWorkspaceNotRunning = errors.New("workspace process not running")

// workspaceHandleFile is the on-disk form of a ProcessHandle.
type workspaceHandleFile struct {
	PID       int       `yaml:"pid"`
	Command   []string  `yaml:"command"`
	StartedAt time.Time `yaml:"started_at"`
}

// WorkspaceSupervisor starts, stops, and tracks the workspace process.
//
// # Thread Safety
//
// Not safe for concurrent use; one CLI invocation drives one supervisor.
type WorkspaceSupervisor struct {
	exec ProcessExecutor

	// command is the argv used to launch the workspace process.
	command []string

	// stateDir holds the pidfile and the workspace log file.
	stateDir string
}

// NewWorkspaceSupervisor creates a supervisor for the given launch command.
func NewWorkspaceSupervisor(exec ProcessExecutor, command []string, stateDir string) *WorkspaceSupervisor {
	return &WorkspaceSupervisor{exec: exec, command: command, stateDir: stateDir}
}

func (w *WorkspaceSupervisor) pidfilePath() string {
	return filepath.Join(w.stateDir, "workspace.pid")
}

// LogPath is where the workspace process log is expected.
func (w *WorkspaceSupervisor) LogPath() string {
	return filepath.Join(w.stateDir, "workspace.log")
}

// LoadHandle reads the persisted handle from the pidfile.
//
// Returns (nil, nil) when no pidfile exists: an absent handle is the
// normal "never started" case, not an error.
func (w *WorkspaceSupervisor) LoadHandle() (*ProcessHandle, error) {
	data, err := os.ReadFile(w.pidfilePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading workspace pidfile: %w", err)
	}

	var f workspaceHandleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing workspace pidfile: %w", err)
	}
	return &ProcessHandle{PID: f.PID, Command: f.Command, StartedAt: f.StartedAt}, nil
}

// saveHandle persists a handle to the pidfile.
func (w *WorkspaceSupervisor) saveHandle(h *ProcessHandle) error {
	if err := os.MkdirAll(w.stateDir, 0750); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := yaml.Marshal(workspaceHandleFile{
		PID:       h.PID,
		Command:   h.Command,
		StartedAt: h.StartedAt,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(w.pidfilePath(), data, 0640)
}

// clearHandle removes the pidfile. Removing an absent file is a no-op.
func (w *WorkspaceSupervisor) clearHandle() {
	_ = os.Remove(w.pidfilePath())
}

// IsRunning reports whether the recorded workspace process is alive.
func (w *WorkspaceSupervisor) IsRunning(ctx context.Context) (bool, *ProcessHandle) {
	handle, err := w.LoadHandle()
	if err != nil || handle == nil {
		return false, nil
	}
	alive, err := w.exec.Signal(ctx, handle, false)
	if err != nil || !alive {
		return false, handle
	}
	return true, handle
}

// StartProcess launches the workspace process and returns its handle.
//
// # Description
//
// If a recorded process is still alive, its existing handle is returned
// (starting twice is a no-op). Otherwise the launch command runs
// detached with its combined output appended to the workspace log file,
// and the new handle is persisted for later invocations.
func (w *WorkspaceSupervisor) StartProcess(ctx context.Context) (*ProcessHandle, error) {
	if alive, handle := w.IsRunning(ctx); alive {
		return handle, nil
	}

	if len(w.command) == 0 {
		return nil, errors.New("no workspace command configured; set workspace.command in nimbus.yaml")
	}

	var output io.Writer
	if logFile := w.openLog(); logFile != nil {
		output = logFile
		// The child inherits its own descriptor; the parent's copy is
		// no longer needed once the launch returns.
		defer logFile.Close()
	}

	handle, err := w.exec.StartDetached(ctx, w.command, output)
	if err != nil {
		return nil, fmt.Errorf("starting workspace process: %w", err)
	}
	if err := w.saveHandle(handle); err != nil {
		// The process is up; a pidfile failure only degrades later stop.
		return handle, fmt.Errorf("workspace started (pid %d) but pidfile not written: %w", handle.PID, err)
	}
	return handle, nil
}

// openLog opens the workspace log for appending, creating the state dir
// as needed. Returns nil when the log cannot be opened: a missing log is
// a degraded tail later, not a reason to block the launch.
func (w *WorkspaceSupervisor) openLog() *os.File {
	if err := os.MkdirAll(w.stateDir, 0750); err != nil {
		return nil
	}
	f, err := os.OpenFile(w.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil
	}
	return f
}

// StopProcess terminates the process behind the handle and clears the
// pidfile. Stopping an absent or dead process is a success.
func (w *WorkspaceSupervisor) StopProcess(ctx context.Context, handle *ProcessHandle) (bool, error) {
	if handle == nil {
		var err error
		handle, err = w.LoadHandle()
		if err != nil {
			return false, err
		}
	}
	if handle == nil {
		return true, nil
	}

	alive, err := w.exec.Signal(ctx, handle, true)
	if err != nil {
		return false, err
	}
	// alive=false means the process was already gone; either way the
	// handle is stale now.
	_ = alive
	w.clearHandle()
	return true, nil
}

// ClearState removes the pidfile and log file. Used by uninstall; a
// missing file is not an error.
func (w *WorkspaceSupervisor) ClearState() error {
	w.clearHandle()
	if err := os.Remove(w.LogPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TailLog returns the last tail lines of the workspace log, or a
// placeholder when the log does not exist yet.
func (w *WorkspaceSupervisor) TailLog(tail int) string {
	data, err := os.ReadFile(w.LogPath())
	if err != nil {
		return fmt.Sprintf("no workspace log at %s (process may never have been started)\n", w.LogPath())
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return strings.Join(lines, "\n") + "\n"
}
