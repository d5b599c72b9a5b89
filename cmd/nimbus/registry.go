// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides the Nimbus CLI for managing the Nimbus suite on a
local machine.

The suite is made of logically independent deployable components: a local
workspace process and containerized component groups (agent, genie, core),
each group pairing a PostgreSQL database with an HTTP API service. The
registry in this file is the single source of truth for that component
table; every command handler dispatches through it rather than branching
on raw component name strings.
*/
package main

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrUnknownComponent is returned for a component name outside the registry.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrInvalidRegistry is returned when registry invariants are violated.
	ErrInvalidRegistry = errors.New("invalid component registry")
)

// =============================================================================
// Component Model
// =============================================================================

// ComponentKind identifies one deployable component of the Nimbus suite.
//
// The set is closed: command handlers switch over ComponentKind values
// resolved through the registry, never over raw strings.
type ComponentKind string

const (
	// ComponentWorkspace is the local workspace process (not containerized).
	ComponentWorkspace ComponentKind = "workspace"

	// ComponentAgent is the agent component group (database + api).
	ComponentAgent ComponentKind = "agent"

	// ComponentGenie is the genie component group (database + api).
	ComponentGenie ComponentKind = "genie"

	// ComponentCore is the core component group (database + api).
	ComponentCore ComponentKind = "core"
)

// TargetAll is the CLI target meaning "every registered component".
// It is a fan-out target, not a ComponentKind.
const TargetAll = "all"

// SubServiceKind distinguishes the probe and lifecycle handling of a
// sub-service.
type SubServiceKind string

const (
	// SubServiceDatabase is a PostgreSQL container probed via a readiness
	// command (exit code 0 when ready).
	SubServiceDatabase SubServiceKind = "database"

	// SubServiceAPI is an HTTP service probed via GET on its health path.
	SubServiceAPI SubServiceKind = "api"
)

// SubService is the smallest independently startable unit: one container.
//
// # Description
//
// A sub-service is addressed by its container ID for backend operations
// and by its port for HTTP probing. SubServices of a component are ordered:
// slice order is start order, stop order is the reverse.
type SubService struct {
	// ContainerID is the backend container name. Globally unique.
	ContainerID string

	// Kind selects the probe strategy (database readiness vs HTTP GET).
	Kind SubServiceKind

	// Port is the published host port. Unique within one deployment.
	Port int

	// ComposeProfile scopes compose operations to this component group.
	ComposeProfile string
}

// ComposeService returns the compose file's service name for this
// sub-service. Compose service names omit the project prefix that the
// container names carry.
func (s SubService) ComposeService() string {
	return strings.TrimPrefix(s.ContainerID, "nimbus-")
}

// IsLocalProcess reports whether this sub-service runs as a host process
// rather than a container. Local processes have no compose profile.
func (s SubService) IsLocalProcess() bool {
	return s.ComposeProfile == ""
}

// Component is a logical deployable unit composed of ordered sub-services.
type Component struct {
	// Kind is the component identity within the closed set.
	Kind ComponentKind

	// Name is the component name as used on the CLI.
	Name string

	// SubServices is non-empty and ordered. Index 0 starts first; stop
	// order is the reverse. For db+api groups the database is index 0
	// because the api health probe assumes the database is reachable.
	SubServices []SubService
}

// =============================================================================
// Registry
// =============================================================================

// ComponentRegistry is the static, read-only table of all components.
//
// # Description
//
// Loaded once at process start and never mutated. Lookup is by component
// name; StartOrder exposes the fixed cross-component priority list used
// by the orchestrator (core and databases before components that expect
// them to be reachable, workspace last).
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent reads.
type ComponentRegistry struct {
	components []Component
	byName     map[string]Component
}

// NewComponentRegistry builds a registry and validates its invariants.
//
// # Description
//
// Validates that component names are unique, every component has at least
// one sub-service, container IDs are globally unique, and ports are unique
// across the deployment. A violated invariant is a programming error in
// the static table, reported as ErrInvalidRegistry.
//
// # Inputs
//
//   - components: ordered component table (order is the start priority list)
//
// # Outputs
//
//   - *ComponentRegistry: validated registry
//   - error: ErrInvalidRegistry with detail on the first violation
func NewComponentRegistry(components []Component) (*ComponentRegistry, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: no components", ErrInvalidRegistry)
	}

	byName := make(map[string]Component, len(components))
	containers := make(map[string]string)
	ports := make(map[int]string)

	for _, c := range components {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: component with empty name", ErrInvalidRegistry)
		}
		if _, dup := byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate component name %q", ErrInvalidRegistry, c.Name)
		}
		if len(c.SubServices) == 0 {
			return nil, fmt.Errorf("%w: component %q has no sub-services", ErrInvalidRegistry, c.Name)
		}
		for _, s := range c.SubServices {
			if s.ContainerID == "" {
				return nil, fmt.Errorf("%w: component %q has a sub-service with empty container id", ErrInvalidRegistry, c.Name)
			}
			if owner, dup := containers[s.ContainerID]; dup {
				return nil, fmt.Errorf("%w: container id %q used by both %q and %q",
					ErrInvalidRegistry, s.ContainerID, owner, c.Name)
			}
			containers[s.ContainerID] = c.Name
			if s.Port != 0 {
				if owner, dup := ports[s.Port]; dup {
					return nil, fmt.Errorf("%w: port %d used by both %q and %q",
						ErrInvalidRegistry, s.Port, owner, c.Name)
				}
				ports[s.Port] = c.Name
			}
		}
		byName[c.Name] = c
	}

	return &ComponentRegistry{components: components, byName: byName}, nil
}

// Lookup resolves a CLI component name to its registry entry.
//
// Returns ErrUnknownComponent for names outside the closed set. The "all"
// target is not resolvable here; callers expand it via StartOrder.
func (r *ComponentRegistry) Lookup(name string) (Component, error) {
	c, ok := r.byName[name]
	if !ok {
		return Component{}, fmt.Errorf("%w: %q (expected one of %s, or %q)",
			ErrUnknownComponent, name, r.nameList(), TargetAll)
	}
	return c, nil
}

// StartOrder returns all components in the fixed cross-component start
// priority order. Stop order for fan-out operations is the reverse.
func (r *ComponentRegistry) StartOrder() []Component {
	out := make([]Component, len(r.components))
	copy(out, r.components)
	return out
}

// StopOrder returns all components in reverse start priority order.
func (r *ComponentRegistry) StopOrder() []Component {
	out := make([]Component, len(r.components))
	for i, c := range r.components {
		out[len(r.components)-1-i] = c
	}
	return out
}

// IsAll reports whether the CLI target names the fan-out case.
func (r *ComponentRegistry) IsAll(name string) bool {
	return name == TargetAll
}

func (r *ComponentRegistry) nameList() string {
	s := ""
	for i, c := range r.components {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%q", c.Name)
	}
	return s
}

// =============================================================================
// Static Component Table
// =============================================================================

// DefaultComponents is the static component table for a standard Nimbus
// deployment. Order is the cross-component start priority: core first
// (other groups expect it to be reachable), then agent and genie, then
// the local workspace process.
func DefaultComponents() []Component {
	return []Component{
		{
			Kind: ComponentCore,
			Name: string(ComponentCore),
			SubServices: []SubService{
				{ContainerID: "nimbus-core-db", Kind: SubServiceDatabase, Port: 5433, ComposeProfile: "core"},
				{ContainerID: "nimbus-core-api", Kind: SubServiceAPI, Port: 8881, ComposeProfile: "core"},
			},
		},
		{
			Kind: ComponentAgent,
			Name: string(ComponentAgent),
			SubServices: []SubService{
				{ContainerID: "nimbus-agent-db", Kind: SubServiceDatabase, Port: 5434, ComposeProfile: "agent"},
				{ContainerID: "nimbus-agent-api", Kind: SubServiceAPI, Port: 8882, ComposeProfile: "agent"},
			},
		},
		{
			Kind: ComponentGenie,
			Name: string(ComponentGenie),
			SubServices: []SubService{
				{ContainerID: "nimbus-genie-db", Kind: SubServiceDatabase, Port: 5435, ComposeProfile: "genie"},
				{ContainerID: "nimbus-genie-api", Kind: SubServiceAPI, Port: 8883, ComposeProfile: "genie"},
			},
		},
		{
			Kind: ComponentWorkspace,
			Name: string(ComponentWorkspace),
			SubServices: []SubService{
				// The workspace is a local process, not a container. The
				// container id doubles as the process handle name and the
				// port is where its dev server listens.
				{ContainerID: "nimbus-workspace", Kind: SubServiceAPI, Port: 8190, ComposeProfile: ""},
			},
		},
	}
}

// DefaultRegistry returns the validated registry for the static table.
// Panics only on a programming error in DefaultComponents.
func DefaultRegistry() *ComponentRegistry {
	r, err := NewComponentRegistry(DefaultComponents())
	if err != nil {
		panic(fmt.Sprintf("default component table is invalid: %v", err))
	}
	return r
}
