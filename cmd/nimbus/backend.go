// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
ContainerBackend expresses every container operation as an argv command
run through ProcessExecutor, and isolates the parsing of backend CLI text
into a small set of named error classifiers.

The backend is treated as an opaque executor: no SDK, no daemon socket.
Callers receive either a classified sentinel error (errors.Is-matchable)
or raw output, never unparsed stderr to string-match themselves.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Error Classification
// =============================================================================

var (
	// ErrBackendNotInstalled means the backend binary is missing from PATH.
	ErrBackendNotInstalled = errors.New("container backend not installed")

	// ErrBackendNotRunning means the binary exists but the daemon is down.
	ErrBackendNotRunning = errors.New("container backend not running")

	// ErrResourceNotFound means a named container/volume/network is absent.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrResourceExists means a create hit an already-existing resource.
	ErrResourceExists = errors.New("resource already exists")

	// ErrBackendCommand is the fallback classification for backend failures.
	ErrBackendCommand = errors.New("backend command failed")
)

// classifyBackendError reduces a failed ExecResult to a sentinel error.
//
// # Description
//
// This is the only place that string-matches backend CLI output. Both
// docker and podman phrasings are matched; everything unrecognized
// falls through to ErrBackendCommand wrapped in a CommandError so the
// stderr context survives the error chain.
func classifyBackendError(command string, res ExecResult) error {
	if res.Succeeded() {
		return nil
	}

	stderr := strings.ToLower(res.Stderr)
	switch {
	case res.ExitCode == -1 && !res.TimedOut:
		return fmt.Errorf("%w: %s", ErrBackendNotInstalled, strings.TrimSpace(res.Stderr))
	case strings.Contains(stderr, "cannot connect to the docker daemon"),
		strings.Contains(stderr, "is the docker daemon running"),
		strings.Contains(stderr, "connection refused") && strings.Contains(stderr, "sock"):
		return fmt.Errorf("%w: %s", ErrBackendNotRunning, strings.TrimSpace(res.Stderr))
	case strings.Contains(stderr, "no such container"),
		strings.Contains(stderr, "no such volume"),
		strings.Contains(stderr, "no such network"),
		strings.Contains(stderr, "no such object"),
		strings.Contains(stderr, "not found"):
		return fmt.Errorf("%w: %s", ErrResourceNotFound, strings.TrimSpace(res.Stderr))
	case strings.Contains(stderr, "already exists"),
		strings.Contains(stderr, "already in use"):
		return fmt.Errorf("%w: %s", ErrResourceExists, strings.TrimSpace(res.Stderr))
	}

	return fmt.Errorf("%w: %v", ErrBackendCommand,
		NewCommandError(command, res.ExitCode, res.Stderr, nil))
}

// =============================================================================
// Backend
// =============================================================================

// BackendConfig configures the container backend invocation.
type BackendConfig struct {
	// Binary is the backend CLI, normally "docker".
	Binary string

	// ComposeFile is the generated compose definition consumed as an
	// opaque path; its schema is owned by the template generator.
	ComposeFile string

	// ProjectName scopes compose resources (networks, volumes, labels).
	ProjectName string

	// ComposeTimeout bounds up/down operations.
	ComposeTimeout time.Duration

	// QueryTimeout bounds short queries (inspect, ps, logs).
	QueryTimeout time.Duration
}

// DefaultBackendConfig returns the standard docker-based configuration.
func DefaultBackendConfig(composeFile string) BackendConfig {
	return BackendConfig{
		Binary:         "docker",
		ComposeFile:    composeFile,
		ProjectName:    "nimbus",
		ComposeTimeout: DefaultComposeTimeout,
		QueryTimeout:   DefaultBackendTimeout,
	}
}

// ContainerBackend drives a compose-capable container CLI through
// ProcessExecutor.
//
// # Thread Safety
//
// Stateless apart from configuration; safe for concurrent use. Note the
// underlying backend state (containers, volumes, networks) is shared and
// unlocked: a single operator driving one CLI at a time is assumed, and
// concurrent invocations from multiple terminals may race.
type ContainerBackend struct {
	exec ProcessExecutor
	cfg  BackendConfig
}

// NewContainerBackend creates a backend over the given executor.
func NewContainerBackend(exec ProcessExecutor, cfg BackendConfig) *ContainerBackend {
	cfg.ComposeTimeout = EnforceDefaultTimeout(cfg.ComposeTimeout, DefaultComposeTimeout)
	cfg.QueryTimeout = EnforceDefaultTimeout(cfg.QueryTimeout, DefaultBackendTimeout)
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	return &ContainerBackend{exec: exec, cfg: cfg}
}

// CheckEnvironment verifies the backend is installed and its daemon is up.
//
// # Description
//
// Detected once at the start of any workflow. Returns
// ErrBackendNotInstalled or ErrBackendNotRunning; callers render the
// remediation text.
func (b *ContainerBackend) CheckEnvironment(ctx context.Context) error {
	res := b.exec.Execute(ctx, []string{b.cfg.Binary, "info"}, b.cfg.QueryTimeout)
	if res.Succeeded() {
		return nil
	}
	err := classifyBackendError(b.cfg.Binary+" info", res)
	if errors.Is(err, ErrBackendNotInstalled) || errors.Is(err, ErrBackendNotRunning) {
		return err
	}
	// "docker info" failing for any other reason still means no usable
	// daemon for this invocation.
	return fmt.Errorf("%w: %v", ErrBackendNotRunning, err)
}

// composeArgs prefixes the compose subcommand with file, project, and
// optional profile scoping.
func (b *ContainerBackend) composeArgs(profile string, rest ...string) []string {
	argv := []string{b.cfg.Binary, "compose", "-f", b.cfg.ComposeFile, "-p", b.cfg.ProjectName}
	if profile != "" {
		argv = append(argv, "--profile", profile)
	}
	return append(argv, rest...)
}

// ComposeUp starts the containers of one compose profile detached.
func (b *ContainerBackend) ComposeUp(ctx context.Context, profile string) error {
	res := b.exec.Execute(ctx, b.composeArgs(profile, "up", "-d"), b.cfg.ComposeTimeout)
	return classifyBackendError("compose up", res)
}

// ComposeUpService starts a single compose service detached. Controllers
// use this to bring sub-services up one at a time in declared order
// instead of letting compose start a whole profile at once.
func (b *ContainerBackend) ComposeUpService(ctx context.Context, profile string, service string) error {
	res := b.exec.Execute(ctx, b.composeArgs(profile, "up", "-d", service), b.cfg.ComposeTimeout)
	return classifyBackendError("compose up", res)
}

// ComposeDown stops and removes the containers of one compose profile.
// removeVolumes additionally deletes named volumes and orphans.
func (b *ContainerBackend) ComposeDown(ctx context.Context, profile string, removeVolumes bool) error {
	rest := []string{"down"}
	if removeVolumes {
		rest = append(rest, "-v", "--remove-orphans")
	}
	res := b.exec.Execute(ctx, b.composeArgs(profile, rest...), b.cfg.ComposeTimeout)
	return classifyBackendError("compose down", res)
}

// ComposePull pre-pulls the images of one compose profile.
func (b *ContainerBackend) ComposePull(ctx context.Context, profile string) error {
	res := b.exec.Execute(ctx, b.composeArgs(profile, "pull"), b.cfg.ComposeTimeout)
	return classifyBackendError("compose pull", res)
}

// ContainerLogs fetches the last tail lines of one container's logs.
//
// A missing container is reported as ErrResourceNotFound; callers render
// a placeholder rather than failing the whole logs command.
func (b *ContainerBackend) ContainerLogs(ctx context.Context, containerID string, tail int) (string, error) {
	if tail <= 0 {
		tail = 50
	}
	argv := []string{b.cfg.Binary, "logs", "--tail", strconv.Itoa(tail), containerID}
	res := b.exec.Execute(ctx, argv, b.cfg.QueryTimeout)
	if err := classifyBackendError("logs", res); err != nil {
		return "", err
	}
	// docker interleaves log output across both streams.
	if res.Stdout != "" && res.Stderr != "" {
		return res.Stdout + res.Stderr, nil
	}
	if res.Stdout != "" {
		return res.Stdout, nil
	}
	return res.Stderr, nil
}

// StopContainer stops one container. Stopping an absent or already
// stopped container is classified for the caller to treat as a no-op.
func (b *ContainerBackend) StopContainer(ctx context.Context, containerID string) error {
	res := b.exec.Execute(ctx, []string{b.cfg.Binary, "stop", containerID}, b.cfg.ComposeTimeout)
	return classifyBackendError("stop", res)
}

// ContainerState returns the backend's state string for one container
// ("running", "exited", ...). Absent containers yield ErrResourceNotFound.
func (b *ContainerBackend) ContainerState(ctx context.Context, containerID string) (string, error) {
	argv := []string{b.cfg.Binary, "inspect", "--format", "{{.State.Status}}", containerID}
	res := b.exec.Execute(ctx, argv, b.cfg.QueryTimeout)
	if err := classifyBackendError("inspect", res); err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ExecInContainer runs a command inside a running container and returns
// the raw result for the caller to interpret (readiness probes).
func (b *ContainerBackend) ExecInContainer(ctx context.Context, containerID string, command []string, timeout time.Duration) ExecResult {
	argv := append([]string{b.cfg.Binary, "exec", containerID}, command...)
	return b.exec.Execute(ctx, argv, EnforceMinTimeout(timeout, MinProbeTimeout))
}

// RemoveContainer force-removes one container. Absence is ErrResourceNotFound.
func (b *ContainerBackend) RemoveContainer(ctx context.Context, containerID string) error {
	res := b.exec.Execute(ctx, []string{b.cfg.Binary, "rm", "-f", containerID}, b.cfg.QueryTimeout)
	return classifyBackendError("rm", res)
}

// ListVolumes returns volume names matching the project prefix.
func (b *ContainerBackend) ListVolumes(ctx context.Context, prefix string) ([]string, error) {
	argv := []string{b.cfg.Binary, "volume", "ls", "--format", "{{.Name}}", "--filter", "name=" + prefix}
	res := b.exec.Execute(ctx, argv, b.cfg.QueryTimeout)
	if err := classifyBackendError("volume ls", res); err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// RemoveVolume deletes one named volume. Absence is ErrResourceNotFound.
func (b *ContainerBackend) RemoveVolume(ctx context.Context, name string) error {
	res := b.exec.Execute(ctx, []string{b.cfg.Binary, "volume", "rm", name}, b.cfg.QueryTimeout)
	return classifyBackendError("volume rm", res)
}

// EnsureNetwork creates the project network, tolerating prior existence.
func (b *ContainerBackend) EnsureNetwork(ctx context.Context, name string) error {
	res := b.exec.Execute(ctx, []string{b.cfg.Binary, "network", "create", name}, b.cfg.QueryTimeout)
	err := classifyBackendError("network create", res)
	if errors.Is(err, ErrResourceExists) {
		return nil
	}
	return err
}
