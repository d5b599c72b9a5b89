package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// =============================================================================
// INTERFACES
// =============================================================================

// HealthChecker reduces a raw readiness probe to a ServiceState.
//
// # Description
//
// One probe is a single bounded attempt: a database readiness command
// executed inside the container, or an HTTP GET against the sub-service's
// health path. The checker never propagates an error or panic to the
// caller; anything unexpected collapses to StateUnknown inside the
// ProbeResult.
//
// Retrying is not this layer's job. The orchestrator owns the bounded
// backoff loop; Probe is always exactly one attempt.
type HealthChecker interface {
	// Probe performs a single readiness check on one sub-service.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation; each probe is also bounded by
	//     its own timeout.
	//   - sub: The sub-service to probe.
	//
	// # Outputs
	//
	//   - ProbeResult: Always populated, never an error. Unexpected
	//     failures are reported as StateUnknown in the result.
	Probe(ctx context.Context, sub SubService) ProbeResult
}

// HealthHTTPClient abstracts HTTP operations for API probes, so tests can
// substitute canned responses for real network calls.
type HealthHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// CONFIG
// =============================================================================

// HealthCheckerConfig tunes probe behavior.
type HealthCheckerConfig struct {
	// HTTPTimeout bounds one HTTP probe.
	HTTPTimeout time.Duration

	// ReadinessTimeout bounds one database readiness command.
	ReadinessTimeout time.Duration

	// HealthPath is the fixed HTTP health endpoint path.
	HealthPath string

	// ReadinessCommand is run inside database containers; exit 0 means
	// ready.
	ReadinessCommand []string
}

// DefaultHealthCheckerConfig returns probe defaults for the Nimbus stack.
func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		HTTPTimeout:      DefaultHTTPProbeTimeout,
		ReadinessTimeout: DefaultReadinessTimeout,
		HealthPath:       "/health",
		ReadinessCommand: []string{"pg_isready", "-q"},
	}
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// DefaultHealthChecker implements HealthChecker over the container
// backend and an injected HTTP client.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type DefaultHealthChecker struct {
	backend    *ContainerBackend
	httpClient HealthHTTPClient
	config     HealthCheckerConfig
}

// NewDefaultHealthChecker creates a production health checker.
func NewDefaultHealthChecker(backend *ContainerBackend, config HealthCheckerConfig) *DefaultHealthChecker {
	config.HTTPTimeout = EnforceMinTimeout(config.HTTPTimeout, MinProbeTimeout)
	config.ReadinessTimeout = EnforceMinTimeout(config.ReadinessTimeout, MinProbeTimeout)
	return &DefaultHealthChecker{
		backend: backend,
		config:  config,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

// NewDefaultHealthCheckerWithHTTPClient creates a checker with an
// injected HTTP client, used by tests to mock responses.
func NewDefaultHealthCheckerWithHTTPClient(backend *ContainerBackend, config HealthCheckerConfig, httpClient HealthHTTPClient) *DefaultHealthChecker {
	return &DefaultHealthChecker{backend: backend, config: config, httpClient: httpClient}
}

// Probe performs a single readiness check on one sub-service.
func (h *DefaultHealthChecker) Probe(ctx context.Context, sub SubService) (result ProbeResult) {
	// Probing must never take down the caller: a panic anywhere below
	// collapses to StateUnknown.
	defer func() {
		if r := recover(); r != nil {
			result = h.newResult(sub, StateUnknown, fmt.Sprintf("probe panic: %v", r))
		}
	}()

	switch sub.Kind {
	case SubServiceDatabase:
		return h.probeDatabase(ctx, sub)
	case SubServiceAPI:
		return h.probeHTTP(ctx, sub)
	default:
		return h.newResult(sub, StateUnknown, fmt.Sprintf("unknown sub-service kind %q", sub.Kind))
	}
}

// probeDatabase runs the readiness command inside the container.
func (h *DefaultHealthChecker) probeDatabase(ctx context.Context, sub SubService) ProbeResult {
	res := h.backend.ExecInContainer(ctx, sub.ContainerID, h.config.ReadinessCommand, h.config.ReadinessTimeout)
	if res.Succeeded() {
		return h.newResult(sub, StateHealthy, "readiness command succeeded")
	}

	err := classifyBackendError("readiness", res)
	switch {
	case errors.Is(err, ErrResourceNotFound):
		return h.newResult(sub, StateStopped, "container does not exist")
	case errors.Is(err, ErrBackendNotInstalled), errors.Is(err, ErrBackendNotRunning):
		return h.newResult(sub, StateUnknown, err.Error())
	case res.TimedOut:
		return h.newResult(sub, StateUnhealthy, "readiness command timed out")
	default:
		return h.newResult(sub, StateUnhealthy, fmt.Sprintf("readiness exit code %d", res.ExitCode))
	}
}

// probeHTTP performs a bounded GET against the sub-service's health path.
func (h *DefaultHealthChecker) probeHTTP(ctx context.Context, sub SubService) ProbeResult {
	reqCtx, cancel := context.WithTimeout(ctx, h.config.HTTPTimeout)
	defer cancel()

	url := fmt.Sprintf("http://localhost:%d%s", sub.Port, h.config.HealthPath)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return h.newResult(sub, StateUnknown, fmt.Sprintf("building probe request: %v", err))
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return h.classifyConnectionFailure(ctx, sub, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return h.newResult(sub, StateHealthy, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return h.newResult(sub, StateUnhealthy, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

// classifyConnectionFailure decides between Stopped and Unhealthy for a
// failed HTTP probe: refusal with no container behind the port means the
// sub-service is simply not there.
func (h *DefaultHealthChecker) classifyConnectionFailure(ctx context.Context, sub SubService, probeErr error) ProbeResult {
	// Workspace-style sub-services have no compose profile and therefore
	// no container to consult; an unreachable port means not running.
	if sub.ComposeProfile == "" {
		return h.newResult(sub, StateStopped, fmt.Sprintf("not reachable: %v", probeErr))
	}

	state, err := h.backend.ContainerState(ctx, sub.ContainerID)
	if errors.Is(err, ErrResourceNotFound) {
		return h.newResult(sub, StateStopped, "container does not exist")
	}
	if err != nil {
		return h.newResult(sub, StateUnknown, err.Error())
	}
	if state != "running" {
		return h.newResult(sub, StateStopped, fmt.Sprintf("container state %q", state))
	}
	return h.newResult(sub, StateUnhealthy, fmt.Sprintf("connection failed: %v", probeErr))
}

func (h *DefaultHealthChecker) newResult(sub SubService, state ServiceState, detail string) ProbeResult {
	return ProbeResult{
		ID:         GenerateID(),
		SubService: sub.ContainerID,
		State:      state,
		Detail:     detail,
		CheckedAt:  time.Now().UTC(),
	}
}

// =============================================================================
// MOCK IMPLEMENTATION
// =============================================================================

// MockHealthChecker is a configurable test double for HealthChecker.
//
// # Examples
//
//	mock := &MockHealthChecker{
//	    ProbeFunc: func(ctx context.Context, sub SubService) ProbeResult {
//	        return ProbeResult{SubService: sub.ContainerID, State: StateHealthy}
//	    },
//	}
type MockHealthChecker struct {
	// ProbeFunc is called when Probe is invoked. When nil, Probe returns
	// StateHealthy.
	ProbeFunc func(ctx context.Context, sub SubService) ProbeResult

	// ProbeCalls records the probed sub-services in order.
	ProbeCalls []SubService

	mu sync.Mutex
}

// Probe delegates to ProbeFunc and records the call.
func (m *MockHealthChecker) Probe(ctx context.Context, sub SubService) ProbeResult {
	m.mu.Lock()
	m.ProbeCalls = append(m.ProbeCalls, sub)
	m.mu.Unlock()
	if m.ProbeFunc == nil {
		return ProbeResult{
			ID:         GenerateID(),
			SubService: sub.ContainerID,
			State:      StateHealthy,
			Detail:     "mock",
			CheckedAt:  time.Now().UTC(),
		}
	}
	return m.ProbeFunc(ctx, sub)
}

// GetProbeCalls returns a copy of recorded probe calls.
func (m *MockHealthChecker) GetProbeCalls() []SubService {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SubService, len(m.ProbeCalls))
	copy(out, m.ProbeCalls)
	return out
}

// Compile-time interface compliance check.
var (
	_ HealthChecker = (*DefaultHealthChecker)(nil)
	_ HealthChecker = (*MockHealthChecker)(nil)
)
