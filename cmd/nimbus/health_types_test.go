package main

import (
	"testing"
	"time"
)

// =============================================================================
// State Aggregation
// =============================================================================

// TestComponentStatus_DeriveOverall exercises the worst-of-children rule:
// Unhealthy dominates everything, Stopped/Unknown dominate Starting, and
// Healthy only survives when every child is healthy.
func TestComponentStatus_DeriveOverall(t *testing.T) {
	tests := []struct {
		name   string
		states []ServiceState
		want   ServiceState
	}{
		{"all healthy", []ServiceState{StateHealthy, StateHealthy}, StateHealthy},
		{"one starting", []ServiceState{StateHealthy, StateStarting}, StateStarting},
		{"one stopped", []ServiceState{StateHealthy, StateStopped}, StateStopped},
		{"one unknown", []ServiceState{StateHealthy, StateUnknown}, StateUnknown},
		{"unhealthy dominates stopped", []ServiceState{StateStopped, StateUnhealthy}, StateUnhealthy},
		{"unhealthy dominates everything", []ServiceState{StateHealthy, StateStarting, StateUnhealthy}, StateUnhealthy},
		{"stopped dominates starting", []ServiceState{StateStarting, StateStopped}, StateStopped},
		{"single unhealthy", []ServiceState{StateUnhealthy}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := NewComponentStatus("core")
			for i, state := range tt.states {
				status.Record(ProbeResult{
					ID:         GenerateID(),
					SubService: string(rune('a' + i)),
					State:      state,
					CheckedAt:  time.Now(),
				})
			}
			if status.Overall != tt.want {
				t.Errorf("Overall = %s, want %s", status.Overall, tt.want)
			}
		})
	}
}

func TestComponentStatus_EmptyIsUnknown(t *testing.T) {
	status := NewComponentStatus("core")
	if status.Overall != StateUnknown {
		t.Errorf("empty status Overall = %s, want %s", status.Overall, StateUnknown)
	}
	if status.Healthy() {
		t.Error("empty status must not report Healthy")
	}
}

// TestComponentStatus_RecordReplacesByContainer verifies re-probing the
// same sub-service replaces its entry instead of accumulating.
func TestComponentStatus_RecordReplacesByContainer(t *testing.T) {
	status := NewComponentStatus("core")

	status.Record(ProbeResult{SubService: "nimbus-core-db", State: StateUnhealthy})
	status.Record(ProbeResult{SubService: "nimbus-core-db", State: StateHealthy})

	if len(status.SubServices) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(status.SubServices))
	}
	if status.Overall != StateHealthy {
		t.Errorf("Overall = %s, want %s after recovery", status.Overall, StateHealthy)
	}
}

func TestComponentStatus_Healthy(t *testing.T) {
	status := NewComponentStatus("core")
	status.Record(ProbeResult{SubService: "nimbus-core-db", State: StateHealthy})
	status.Record(ProbeResult{SubService: "nimbus-core-api", State: StateHealthy})

	if !status.Healthy() {
		t.Error("all-healthy component must report Healthy")
	}
}

// =============================================================================
// ID Generation
// =============================================================================

func TestGenerateID_UniqueAndWellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if len(id) != 16 {
			t.Fatalf("id %q has length %d, want 16", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
