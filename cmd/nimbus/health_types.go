package main

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ServiceState represents the observed health state of one sub-service.
//
// # Description
//
// States are mutually exclusive point-in-time snapshots. Stopped and
// Unknown are reachable without a completed probe (absent container,
// probe infrastructure failure); Healthy and Unhealthy require at least
// one completed probe.
//
// # Limitations
//
//   - No degraded state; a slow-but-responding service is Healthy
//   - State is point-in-time and may change immediately after a probe
type ServiceState string

const (
	// StateStopped indicates the sub-service's container or process does
	// not exist or is not running.
	StateStopped ServiceState = "stopped"

	// StateStarting indicates the sub-service exists but has not yet
	// passed a readiness probe.
	StateStarting ServiceState = "starting"

	// StateHealthy indicates the last readiness probe succeeded.
	StateHealthy ServiceState = "healthy"

	// StateUnhealthy indicates the last readiness probe failed.
	StateUnhealthy ServiceState = "unhealthy"

	// StateUnknown indicates probing itself failed unexpectedly.
	StateUnknown ServiceState = "unknown"
)

// severity orders states for worst-of-children aggregation. Higher is
// worse. Stopped and Unknown share a rank: both mean "not serving, not
// provably broken".
func (s ServiceState) severity() int {
	switch s {
	case StateHealthy:
		return 0
	case StateStarting:
		return 1
	case StateStopped, StateUnknown:
		return 2
	case StateUnhealthy:
		return 3
	default:
		return 2
	}
}

// ProbeResult is the immutable record of a single probe attempt.
//
// One ProbeResult is created per attempt and never mutated afterwards.
type ProbeResult struct {
	// ID correlates this attempt across logs.
	ID string

	// SubService is the container ID of the probed sub-service.
	SubService string

	// State is the reduced health state.
	State ServiceState

	// Detail is a human-readable explanation (exit code, HTTP status,
	// classified backend error).
	Detail string

	// CheckedAt is the UTC timestamp of the attempt.
	CheckedAt time.Time
}

// ComponentStatus maps each sub-service to its latest ProbeResult and
// carries the derived overall component state.
type ComponentStatus struct {
	// Component is the component name.
	Component string

	// SubServices holds the latest result per sub-service, keyed by
	// container ID.
	SubServices map[string]ProbeResult

	// Overall is the worst-of-children aggregate.
	Overall ServiceState
}

// NewComponentStatus creates an empty status for a component.
func NewComponentStatus(component string) *ComponentStatus {
	return &ComponentStatus{
		Component:   component,
		SubServices: make(map[string]ProbeResult),
		Overall:     StateUnknown,
	}
}

// Record stores a probe result and re-derives the overall state.
func (c *ComponentStatus) Record(result ProbeResult) {
	c.SubServices[result.SubService] = result
	c.Overall = c.deriveOverall()
}

// deriveOverall computes worst-of-children: any Unhealthy child makes the
// component Unhealthy; else any Stopped/Unknown child dominates; else any
// Starting child; all Healthy means Healthy.
func (c *ComponentStatus) deriveOverall() ServiceState {
	if len(c.SubServices) == 0 {
		return StateUnknown
	}
	worst := StateHealthy
	for _, r := range c.SubServices {
		if r.State.severity() > worst.severity() {
			worst = r.State
		}
	}
	return worst
}

// Healthy reports whether every sub-service reached StateHealthy.
func (c *ComponentStatus) Healthy() bool {
	return c.Overall == StateHealthy && len(c.SubServices) > 0
}

// GenerateID returns a random 16-character hex identifier for probe and
// run correlation.
func GenerateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000")))[:16]
	}
	return hex.EncodeToString(b)
}
