// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nimbuslabs/nimbus/cmd/nimbus/config"
	"github.com/nimbuslabs/nimbus/pkg/logging"
)

// =============================================================================
// INTERFACES
// =============================================================================

// SuiteFactory creates fully wired orchestration stacks.
//
// This interface enables dependency injection for testing - production
// code uses DefaultSuiteFactory, while tests build the pieces by hand
// around mocks.
type SuiteFactory interface {
	// CreateSuite builds the orchestrator, workflow runner, and their
	// dependencies from the loaded configuration.
	CreateSuite(cfg *config.NimbusConfig, prompter UserPrompter) (*Suite, error)
}

// Suite bundles the top-level collaborators a command handler needs.
type Suite struct {
	Registry     *ComponentRegistry
	Orchestrator *ServiceOrchestrator
	Installer    *Installer
	Workflow     *WorkflowRunner
	Logger       *logging.Logger
}

// Close releases the suite's logger, flushing any open log file.
func (s *Suite) Close() {
	if s.Logger != nil {
		_ = s.Logger.Close()
	}
}

// =============================================================================
// STRUCTS
// =============================================================================

// DefaultSuiteFactory is the production implementation of SuiteFactory.
type DefaultSuiteFactory struct {
	// Out receives user-facing progress output. Defaults to stdout.
	Out io.Writer
}

// Compile-time interface verification.
var _ SuiteFactory = (*DefaultSuiteFactory)(nil)

// NewDefaultSuiteFactory creates a factory writing progress to stdout.
func NewDefaultSuiteFactory() *DefaultSuiteFactory {
	return &DefaultSuiteFactory{Out: os.Stdout}
}

// =============================================================================
// METHODS
// =============================================================================

// CreateSuite wires the production orchestration stack.
//
// # Description
//
// Builds the dependency graph bottom-up: process executor, container
// backend, health checker, retry waiter, one controller per registry
// component, then the orchestrator, installer, and workflow runner on
// top. All tunables come from cfg; zero values fall back to package
// defaults.
//
// # Inputs
//
//   - cfg: The loaded global configuration.
//   - prompter: The prompter for interactive workflow steps.
//
// # Outputs
//
//   - *Suite: Ready-to-use orchestration stack.
//   - error: Non-nil if the component registry is invalid.
func (f *DefaultSuiteFactory) CreateSuite(cfg *config.NimbusConfig, prompter UserPrompter) (*Suite, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		Service: "cli",
	})

	registry, err := NewComponentRegistry(DefaultComponents())
	if err != nil {
		return nil, fmt.Errorf("building component registry: %w", err)
	}

	executor := NewDefaultProcessExecutor()

	backend := NewContainerBackend(executor, BackendConfig{
		Binary:         cfg.Backend.Binary,
		ComposeFile:    cfg.Backend.ComposeFile,
		ProjectName:    cfg.Backend.ProjectName,
		ComposeTimeout: time.Duration(cfg.Backend.ComposeTimeoutS) * time.Second,
		QueryTimeout:   time.Duration(cfg.Backend.QueryTimeoutS) * time.Second,
	})

	checker := NewDefaultHealthChecker(backend, HealthCheckerConfig{
		HTTPTimeout:      time.Duration(cfg.Health.HTTPTimeoutS) * time.Second,
		ReadinessTimeout: DefaultReadinessTimeout,
		HealthPath:       cfg.Health.HealthPath,
		ReadinessCommand: []string{cfg.Health.ReadinessBinary, "-q"},
	})

	waiter := NewHealthWaiter(checker, RetryPolicy{
		MaxRetries:   cfg.Health.MaxRetries,
		BackoffDelay: time.Duration(cfg.Health.BackoffDelayS) * time.Second,
	})

	ctrlCfg := ContainerControllerConfig{
		QuiescenceDelay: time.Duration(cfg.Health.QuiescenceS) * time.Second,
	}

	controllers := make(map[string]ComponentController)
	for _, component := range registry.StartOrder() {
		if f.isWorkspace(component) {
			supervisor := NewWorkspaceSupervisor(executor, cfg.Workspace.Command, cfg.Workspace.StateDir)
			controllers[component.Name] = NewWorkspaceController(
				component, supervisor, checker, waiter, logger, f.Out)
			continue
		}
		controllers[component.Name] = NewContainerController(
			component, backend, checker, waiter, ctrlCfg, logger, f.Out)
	}

	orchestrator := NewServiceOrchestrator(registry, controllers, logger)
	installer := NewInstaller(backend, &EmbeddedTemplateWriter{}, cfg.Workspace.StateDir, logger, f.Out)
	workflow := NewWorkflowRunner(installer, orchestrator, prompter, registry, logger, f.Out)

	return &Suite{
		Registry:     registry,
		Orchestrator: orchestrator,
		Installer:    installer,
		Workflow:     workflow,
		Logger:       logger,
	}, nil
}

// isWorkspace reports whether a component runs as a local process.
func (f *DefaultSuiteFactory) isWorkspace(component Component) bool {
	for _, sub := range component.SubServices {
		if !sub.IsLocalProcess() {
			return false
		}
	}
	return true
}
