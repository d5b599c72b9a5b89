// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
ServiceOrchestrator coordinates component controllers for the "all
components" case and owns the retrying health-check policy.

Cross-component ordering is a fixed priority list from the registry, not
a dependency graph: the component set is small and static, and a list is
easier to reason about and test. Fan-out operations never abort early; a
failing component is recorded and the remaining components are still
attempted.
*/
package main

import (
	"context"
	"time"

	"github.com/nimbuslabs/nimbus/pkg/logging"
)

// =============================================================================
// Retry Policy
// =============================================================================

// RetryPolicy bounds the health verification loop used during install
// and start workflows. Plain status() probes do not retry.
type RetryPolicy struct {
	// MaxRetries is the probe attempt budget per sub-service.
	MaxRetries int

	// BackoffDelay is the fixed delay between attempts. Fixed, not
	// exponential: the target wait is a container boot measured in
	// seconds, and a fixed interval keeps feedback latency predictable.
	BackoffDelay time.Duration
}

// DefaultRetryPolicy returns the standard verification budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BackoffDelay: DefaultBackoffDelay}
}

// HealthWaiter runs the bounded fixed-backoff probe loop for one
// sub-service.
//
// # Thread Safety
//
// Safe for concurrent use; sleep is injectable for deterministic tests.
type HealthWaiter struct {
	checker HealthChecker
	policy  RetryPolicy

	// sleep is context-aware so Ctrl+C interrupts a backoff immediately.
	// Replaced in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration)
}

// NewHealthWaiter creates a waiter with the given probe budget.
func NewHealthWaiter(checker HealthChecker, policy RetryPolicy) *HealthWaiter {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultMaxRetries
	}
	policy.BackoffDelay = EnforceDefaultTimeout(policy.BackoffDelay, DefaultBackoffDelay)
	return &HealthWaiter{checker: checker, policy: policy, sleep: sleepWithContext}
}

// WaitHealthy probes until the sub-service is Healthy or the retry
// budget is exhausted.
//
// # Description
//
// Each attempt is one probe. A Healthy result returns immediately; any
// other state consumes one attempt, sleeps the fixed backoff, and tries
// again, up to exactly MaxRetries attempts. The final ProbeResult is
// returned either way so callers can record the partial state.
//
// # Outputs
//
//   - ProbeResult: The last probe attempt's result.
//   - bool: True if the sub-service reached StateHealthy.
func (w *HealthWaiter) WaitHealthy(ctx context.Context, sub SubService) (ProbeResult, bool) {
	var last ProbeResult
	for attempt := 1; ; attempt++ {
		last = w.checker.Probe(ctx, sub)
		if last.State == StateHealthy {
			return last, true
		}
		if attempt >= w.policy.MaxRetries {
			return last, false
		}
		if ctx.Err() != nil {
			return last, false
		}
		w.sleep(ctx, w.policy.BackoffDelay)
	}
}

// sleepWithContext blocks for d or until ctx is done, whichever is first.
func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// =============================================================================
// Orchestrator
// =============================================================================

// ComponentResult is one component's outcome within a fan-out operation.
type ComponentResult struct {
	// Component is the component name.
	Component string

	// Status is the component status after the operation, when the
	// operation produces one (start/restart/status).
	Status *ComponentStatus

	// OK is the component-level success flag.
	OK bool

	// Output carries textual results (logs).
	Output string
}

// FanOutResult aggregates per-component results of an "all" operation.
//
// The orchestrator never aborts a fan-out early: every requested
// component appears in Results even when earlier ones failed.
type FanOutResult struct {
	// Results is ordered by the operation's component order.
	Results []ComponentResult

	// AllSucceeded is true only if every component succeeded.
	AllSucceeded bool
}

// ServiceOrchestrator fans controller operations out over the requested
// component set.
type ServiceOrchestrator struct {
	registry    *ComponentRegistry
	controllers map[string]ComponentController
	logger      *logging.Logger
}

// NewServiceOrchestrator creates an orchestrator over pre-built
// controllers, keyed by component name.
func NewServiceOrchestrator(registry *ComponentRegistry, controllers map[string]ComponentController, logger *logging.Logger) *ServiceOrchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &ServiceOrchestrator{registry: registry, controllers: controllers, logger: logger}
}

// Controller resolves the controller for one component name.
func (o *ServiceOrchestrator) Controller(name string) (ComponentController, error) {
	c, err := o.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return o.controllers[c.Name], nil
}

// resolve expands a CLI target into an ordered controller list. Stop-like
// operations reverse the priority order so dependents go down first.
func (o *ServiceOrchestrator) resolve(target string, reverse bool) ([]ComponentController, error) {
	if o.registry.IsAll(target) {
		order := o.registry.StartOrder()
		if reverse {
			order = o.registry.StopOrder()
		}
		out := make([]ComponentController, 0, len(order))
		for _, c := range order {
			out = append(out, o.controllers[c.Name])
		}
		return out, nil
	}

	ctrl, err := o.Controller(target)
	if err != nil {
		return nil, err
	}
	return []ComponentController{ctrl}, nil
}

// StartAll starts the target components in priority order.
//
// A component that fails to become healthy does not prevent later
// components from being attempted; the aggregate reports every outcome.
func (o *ServiceOrchestrator) StartAll(ctx context.Context, target string) (*FanOutResult, error) {
	ctrls, err := o.resolve(target, false)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{AllSucceeded: true}
	for _, ctrl := range ctrls {
		status := ctrl.Start(ctx)
		ok := status.Healthy()
		if !ok {
			o.logger.Warn("component failed to start",
				"component", ctrl.Component().Name,
				"overall", string(status.Overall))
			result.AllSucceeded = false
		}
		result.Results = append(result.Results, ComponentResult{
			Component: ctrl.Component().Name,
			Status:    status,
			OK:        ok,
		})
	}
	return result, nil
}

// StopAll stops the target components in reverse priority order.
func (o *ServiceOrchestrator) StopAll(ctx context.Context, target string) (*FanOutResult, error) {
	ctrls, err := o.resolve(target, true)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{AllSucceeded: true}
	for _, ctrl := range ctrls {
		ok := ctrl.Stop(ctx)
		if !ok {
			result.AllSucceeded = false
		}
		result.Results = append(result.Results, ComponentResult{
			Component: ctrl.Component().Name,
			OK:        ok,
		})
	}
	return result, nil
}

// RestartAll restarts the target components in priority order.
func (o *ServiceOrchestrator) RestartAll(ctx context.Context, target string) (*FanOutResult, error) {
	ctrls, err := o.resolve(target, false)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{AllSucceeded: true}
	for _, ctrl := range ctrls {
		status := ctrl.Restart(ctx)
		ok := status.Healthy()
		if !ok {
			result.AllSucceeded = false
		}
		result.Results = append(result.Results, ComponentResult{
			Component: ctrl.Component().Name,
			Status:    status,
			OK:        ok,
		})
	}
	return result, nil
}

// StatusAll probes the target components once each, no retries.
func (o *ServiceOrchestrator) StatusAll(ctx context.Context, target string) (*FanOutResult, error) {
	ctrls, err := o.resolve(target, false)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{AllSucceeded: true}
	for _, ctrl := range ctrls {
		status := ctrl.Status(ctx)
		ok := status.Healthy()
		if !ok {
			result.AllSucceeded = false
		}
		result.Results = append(result.Results, ComponentResult{
			Component: ctrl.Component().Name,
			Status:    status,
			OK:        ok,
		})
	}
	return result, nil
}

// LogsAll collects logs from the target components.
func (o *ServiceOrchestrator) LogsAll(ctx context.Context, target string, tail int) (*FanOutResult, error) {
	ctrls, err := o.resolve(target, false)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{AllSucceeded: true}
	for _, ctrl := range ctrls {
		out := ctrl.Logs(ctx, tail)
		result.Results = append(result.Results, ComponentResult{
			Component: ctrl.Component().Name,
			OK:        true,
			Output:    out,
		})
	}
	return result, nil
}

// UninstallAll removes the target components in reverse priority order.
func (o *ServiceOrchestrator) UninstallAll(ctx context.Context, target string) (*FanOutResult, error) {
	ctrls, err := o.resolve(target, true)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{AllSucceeded: true}
	for _, ctrl := range ctrls {
		ok := ctrl.Uninstall(ctx)
		if !ok {
			result.AllSucceeded = false
		}
		result.Results = append(result.Results, ComponentResult{
			Component: ctrl.Component().Name,
			OK:        ok,
		})
	}
	return result, nil
}
