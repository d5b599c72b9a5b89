// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "time"

// Timeout constants define minimum and default values for various operations.
//
// These constants prevent accidental infinite hangs by ensuring all
// external calls have a reasonable bound even if misconfigured. There is
// no mid-operation cancellation beyond these bounds: a command either
// completes within its timeouts or is reported as timed out.
const (
	// MinProbeTimeout is the absolute minimum for any health probe.
	MinProbeTimeout = 1 * time.Second

	// DefaultHTTPProbeTimeout bounds one HTTP readiness probe.
	DefaultHTTPProbeTimeout = 5 * time.Second

	// DefaultReadinessTimeout bounds one database readiness command.
	DefaultReadinessTimeout = 10 * time.Second

	// DefaultBackendTimeout bounds short backend queries (inspect, ps).
	DefaultBackendTimeout = 30 * time.Second

	// DefaultSignalTimeout bounds signalling a local process.
	DefaultSignalTimeout = 5 * time.Second

	// DefaultComposeTimeout bounds compose up/down operations, which may
	// pull images on first run.
	DefaultComposeTimeout = 5 * time.Minute

	// DefaultQuiescenceDelay is the pause between stop and start during a
	// restart, letting the backend release names, ports, and volumes.
	DefaultQuiescenceDelay = 2 * time.Second

	// DefaultBackoffDelay is the fixed delay between repeated health
	// probe attempts. Fixed rather than exponential: target waits are
	// short container boots, and a fixed interval keeps CLI feedback
	// latency predictable and easy to test.
	DefaultBackoffDelay = 5 * time.Second

	// DefaultMaxRetries is the probe attempt budget per sub-service
	// during install/start verification.
	DefaultMaxRetries = 3
)

// EnforceMinTimeout returns at least the minimum timeout.
//
// A zero, negative, or below-minimum requested value is raised to the
// minimum so that misconfiguration cannot produce an unbounded call.
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}

// EnforceDefaultTimeout returns the default if requested is zero or negative.
func EnforceDefaultTimeout(requested, defaultVal time.Duration) time.Duration {
	if requested <= 0 {
		return defaultVal
	}
	return requested
}
