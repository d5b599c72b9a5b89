// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nimbuslabs/nimbus/pkg/logging"
)

// =============================================================================
// Controller Interface
// =============================================================================

// ComponentController manages the lifecycle of one component.
//
// # Description
//
// Controllers are the boundary between command handlers and the backend:
// every operation recovers from panics internally and reports failure
// through its return value, so a caller never sees an unhandled panic.
// Stop and Uninstall are idempotent; repeating them on an already-stopped
// or already-removed component succeeds.
//
// # Thread Safety
//
// One controller instance serves one CLI invocation; operations are not
// designed for concurrent calls on the same instance.
type ComponentController interface {
	// Component returns the registry entry this controller manages.
	Component() Component

	// Start brings the component's sub-services up in declared order,
	// waiting for each to become healthy before starting the next. On
	// the first sub-service that fails to become healthy, the remaining
	// sub-services are not started and the partial status is returned.
	Start(ctx context.Context) *ComponentStatus

	// Stop brings the component down in reverse declared order. Stop is
	// best-effort: every sub-service is attempted, and the result is
	// false only when every attempt failed.
	Stop(ctx context.Context) bool

	// Restart stops the component, waits a quiescence delay, and starts it.
	Restart(ctx context.Context) *ComponentStatus

	// Status probes every sub-service exactly once, with no retries.
	Status(ctx context.Context) *ComponentStatus

	// Logs collects the last tail lines from each sub-service, each
	// section prefixed with a sub-service header.
	Logs(ctx context.Context, tail int) string

	// Uninstall stops the component and removes its containers and data
	// volumes. Returns false only on a hard removal failure.
	Uninstall(ctx context.Context) bool
}

// recoverOperation converts a panic inside a controller operation into a
// logged failure. Controllers drive external processes; a malformed
// backend response must degrade the one operation, not kill the CLI.
func recoverOperation(logger *logging.Logger, component string, operation string) {
	if r := recover(); r != nil {
		logger.Error("operation panicked",
			"component", component,
			"operation", operation,
			"panic", fmt.Sprintf("%v", r))
	}
}

// safeWrite writes user-facing output, ignoring write errors. A broken
// pipe on stdout must not change an operation's outcome.
func safeWrite(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, format, args...)
}

// =============================================================================
// Container Controller
// =============================================================================

// ContainerControllerConfig carries the tunables of a container-backed
// component controller.
type ContainerControllerConfig struct {
	// QuiescenceDelay is the pause between stop and start during restart,
	// giving the backend time to release ports and names.
	QuiescenceDelay time.Duration
}

// containerController manages a db+api component group running as
// containers under one compose profile.
type containerController struct {
	component Component
	backend   *ContainerBackend
	checker   HealthChecker
	waiter    *HealthWaiter
	cfg       ContainerControllerConfig
	logger    *logging.Logger
	out       io.Writer
}

// NewContainerController creates a controller for one containerized
// component group.
func NewContainerController(
	component Component,
	backend *ContainerBackend,
	checker HealthChecker,
	waiter *HealthWaiter,
	cfg ContainerControllerConfig,
	logger *logging.Logger,
	out io.Writer,
) ComponentController {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.QuiescenceDelay = EnforceDefaultTimeout(cfg.QuiescenceDelay, DefaultQuiescenceDelay)
	return &containerController{
		component: component,
		backend:   backend,
		checker:   checker,
		waiter:    waiter,
		cfg:       cfg,
		logger:    logger,
		out:       out,
	}
}

// Compile-time interface verification.
var _ ComponentController = (*containerController)(nil)

func (c *containerController) Component() Component {
	return c.component
}

// Start brings sub-services up in declared order.
//
// # Description
//
// For each sub-service: start its container, then run the retrying
// health wait. Only when the sub-service reports Healthy does the next
// one start; the database therefore settles before its API boots. A
// sub-service that never becomes healthy aborts the sequence, and
// sub-services that were never attempted are absent from the returned
// status rather than guessed at.
func (c *containerController) Start(ctx context.Context) *ComponentStatus {
	status := NewComponentStatus(c.component.Name)
	defer recoverOperation(c.logger, c.component.Name, "start")

	for _, sub := range c.component.SubServices {
		safeWrite(c.out, "Starting %s...\n", sub.ContainerID)
		if err := c.backend.ComposeUpService(ctx, sub.ComposeProfile, sub.ComposeService()); err != nil {
			c.logger.Error("container start failed",
				"component", c.component.Name,
				"container", sub.ContainerID,
				"error", err)
			status.Record(ProbeResult{
				ID:         GenerateID(),
				SubService: sub.ContainerID,
				State:      startFailureState(err),
				Detail:     err.Error(),
				CheckedAt:  time.Now().UTC(),
			})
			return status
		}

		result, ok := c.waiter.WaitHealthy(ctx, sub)
		status.Record(result)
		if !ok {
			c.logger.Warn("sub-service did not become healthy",
				"component", c.component.Name,
				"container", sub.ContainerID,
				"state", string(result.State),
				"detail", result.Detail)
			return status
		}
		safeWrite(c.out, "  %s is healthy\n", sub.ContainerID)
	}
	return status
}

// startFailureState maps a backend start error onto a service state.
func startFailureState(err error) ServiceState {
	switch {
	case errors.Is(err, ErrBackendNotInstalled), errors.Is(err, ErrBackendNotRunning):
		return StateUnknown
	default:
		return StateUnhealthy
	}
}

// Stop brings sub-services down in reverse declared order.
//
// Stopping an already-stopped or missing container is a success: the
// goal state is "not running", and it is already met. Stop is
// best-effort, so a single hard failure among several sub-services
// still counts as success; only a sweep where every attempt failed
// returns false.
func (c *containerController) Stop(ctx context.Context) bool {
	failed := 0
	defer recoverOperation(c.logger, c.component.Name, "stop")

	for i := len(c.component.SubServices) - 1; i >= 0; i-- {
		sub := c.component.SubServices[i]
		safeWrite(c.out, "Stopping %s...\n", sub.ContainerID)
		err := c.backend.StopContainer(ctx, sub.ContainerID)
		if err == nil || errors.Is(err, ErrResourceNotFound) {
			continue
		}
		c.logger.Error("container stop failed",
			"component", c.component.Name,
			"container", sub.ContainerID,
			"error", err)
		failed++
	}
	return failed == 0 || failed < len(c.component.SubServices)
}

// Restart stops, waits out the quiescence delay, and starts again. The
// delay lets the backend release container names and host ports before
// the new containers claim them.
func (c *containerController) Restart(ctx context.Context) *ComponentStatus {
	if !c.Stop(ctx) {
		c.logger.Warn("stop phase of restart had failures; starting anyway",
			"component", c.component.Name)
	}
	sleepWithContext(ctx, c.cfg.QuiescenceDelay)
	return c.Start(ctx)
}

// Status probes each sub-service exactly once. No retries: status is a
// point-in-time observation, not a convergence loop.
func (c *containerController) Status(ctx context.Context) *ComponentStatus {
	status := NewComponentStatus(c.component.Name)
	defer recoverOperation(c.logger, c.component.Name, "status")

	for _, sub := range c.component.SubServices {
		status.Record(c.checker.Probe(ctx, sub))
	}
	return status
}

// Logs collects the log tail of every sub-service under a per-container
// header. A missing container yields a placeholder line instead of
// failing the whole command.
func (c *containerController) Logs(ctx context.Context, tail int) string {
	var sb strings.Builder
	defer recoverOperation(c.logger, c.component.Name, "logs")

	for _, sub := range c.component.SubServices {
		fmt.Fprintf(&sb, "==== %s ====\n", sub.ContainerID)
		out, err := c.backend.ContainerLogs(ctx, sub.ContainerID, tail)
		switch {
		case errors.Is(err, ErrResourceNotFound):
			sb.WriteString("(container does not exist)\n")
		case err != nil:
			fmt.Fprintf(&sb, "(logs unavailable: %v)\n", err)
		default:
			sb.WriteString(out)
			if !strings.HasSuffix(out, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// Uninstall removes the component's containers and data volumes.
//
// # Description
//
// Stops the component, then force-removes its containers and every
// volume carrying the component's name prefix. Resources that are
// already gone are skipped; uninstalling an uninstalled component is a
// no-op success.
func (c *containerController) Uninstall(ctx context.Context) bool {
	ok := true
	defer recoverOperation(c.logger, c.component.Name, "uninstall")

	if !c.Stop(ctx) {
		ok = false
	}

	for i := len(c.component.SubServices) - 1; i >= 0; i-- {
		sub := c.component.SubServices[i]
		err := c.backend.RemoveContainer(ctx, sub.ContainerID)
		if err != nil && !errors.Is(err, ErrResourceNotFound) {
			c.logger.Error("container removal failed",
				"container", sub.ContainerID, "error", err)
			ok = false
		}
	}

	prefix := "nimbus-" + c.component.Name
	volumes, err := c.backend.ListVolumes(ctx, prefix)
	if err != nil {
		c.logger.Error("volume listing failed",
			"component", c.component.Name, "error", err)
		return false
	}
	for _, vol := range volumes {
		safeWrite(c.out, "Removing volume %s...\n", vol)
		err := c.backend.RemoveVolume(ctx, vol)
		if err != nil && !errors.Is(err, ErrResourceNotFound) {
			c.logger.Error("volume removal failed", "volume", vol, "error", err)
			ok = false
		}
	}
	return ok
}

// =============================================================================
// Workspace Controller
// =============================================================================

// workspaceController manages the workspace component, which runs as a
// plain host process supervised through a pidfile rather than a
// container.
type workspaceController struct {
	component  Component
	supervisor *WorkspaceSupervisor
	checker    HealthChecker
	waiter     *HealthWaiter
	logger     *logging.Logger
	out        io.Writer
}

// NewWorkspaceController creates the controller for the local workspace
// process.
func NewWorkspaceController(
	component Component,
	supervisor *WorkspaceSupervisor,
	checker HealthChecker,
	waiter *HealthWaiter,
	logger *logging.Logger,
	out io.Writer,
) ComponentController {
	if logger == nil {
		logger = logging.Default()
	}
	return &workspaceController{
		component:  component,
		supervisor: supervisor,
		checker:    checker,
		waiter:     waiter,
		logger:     logger,
		out:        out,
	}
}

// Compile-time interface verification.
var _ ComponentController = (*workspaceController)(nil)

func (c *workspaceController) Component() Component {
	return c.component
}

// Start launches the workspace process if needed and waits for its HTTP
// endpoint to become healthy. The process handle travels through the
// supervisor's pidfile, so a later CLI invocation can stop the same
// process.
func (c *workspaceController) Start(ctx context.Context) *ComponentStatus {
	status := NewComponentStatus(c.component.Name)
	defer recoverOperation(c.logger, c.component.Name, "start")

	sub := c.component.SubServices[0]
	safeWrite(c.out, "Starting %s...\n", sub.ContainerID)

	handle, err := c.supervisor.StartProcess(ctx)
	if err != nil && handle == nil {
		c.logger.Error("workspace launch failed",
			"component", c.component.Name, "error", err)
		status.Record(ProbeResult{
			ID:         GenerateID(),
			SubService: sub.ContainerID,
			State:      StateStopped,
			Detail:     err.Error(),
			CheckedAt:  time.Now().UTC(),
		})
		return status
	}
	if err != nil {
		// Process launched but the handle could not be persisted; still
		// usable this invocation, but "stop" later may not find it.
		c.logger.Warn("workspace handle not persisted",
			"component", c.component.Name, "error", err)
	}

	result, ok := c.waiter.WaitHealthy(ctx, sub)
	status.Record(result)
	if ok {
		safeWrite(c.out, "  %s is healthy (pid %d)\n", sub.ContainerID, handle.PID)
	}
	return status
}

// Stop terminates the workspace process recorded in the pidfile. A
// missing pidfile or an already-exited process is a success.
func (c *workspaceController) Stop(ctx context.Context) bool {
	defer recoverOperation(c.logger, c.component.Name, "stop")
	safeWrite(c.out, "Stopping %s...\n", c.component.SubServices[0].ContainerID)

	ok, err := c.supervisor.StopProcess(ctx, nil)
	if err != nil {
		c.logger.Error("workspace stop failed",
			"component", c.component.Name, "error", err)
	}
	return ok
}

func (c *workspaceController) Restart(ctx context.Context) *ComponentStatus {
	if !c.Stop(ctx) {
		c.logger.Warn("stop phase of restart had failures; starting anyway",
			"component", c.component.Name)
	}
	sleepWithContext(ctx, DefaultQuiescenceDelay)
	return c.Start(ctx)
}

// Status probes the workspace endpoint once.
func (c *workspaceController) Status(ctx context.Context) *ComponentStatus {
	status := NewComponentStatus(c.component.Name)
	defer recoverOperation(c.logger, c.component.Name, "status")
	status.Record(c.checker.Probe(ctx, c.component.SubServices[0]))
	return status
}

// Logs tails the workspace log file.
func (c *workspaceController) Logs(ctx context.Context, tail int) string {
	defer recoverOperation(c.logger, c.component.Name, "logs")
	sub := c.component.SubServices[0]
	out := c.supervisor.TailLog(tail)
	return fmt.Sprintf("==== %s ====\n%s\n", sub.ContainerID, strings.TrimRight(out, "\n"))
}

// Uninstall stops the workspace process and clears its runtime state.
// The workspace has no containers or volumes, so uninstall reduces to a
// stop plus pidfile cleanup.
func (c *workspaceController) Uninstall(ctx context.Context) bool {
	defer recoverOperation(c.logger, c.component.Name, "uninstall")
	ok := c.Stop(ctx)
	if err := c.supervisor.ClearState(); err != nil {
		c.logger.Warn("workspace state cleanup failed",
			"component", c.component.Name, "error", err)
	}
	return ok
}
