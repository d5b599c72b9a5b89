// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
)

type NimbusConfig struct {
	// Backend: container engine selection and compose file location
	Backend BackendConfig `yaml:"backend"`

	// Health: probe retry policy and timeouts
	Health HealthConfig `yaml:"health"`

	// Workspace: local workspace process settings
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Logging: log level and optional log directory
	Logging LoggingConfig `yaml:"logging"`
}

type BackendConfig struct {
	Binary          string `yaml:"binary"`            // e.g. docker
	ComposeFile     string `yaml:"compose_file"`      // e.g. ~/.nimbus/docker-compose.yaml
	ProjectName     string `yaml:"project_name"`      // compose -p value
	ComposeTimeoutS int    `yaml:"compose_timeout_s"` // e.g. 300
	QueryTimeoutS   int    `yaml:"query_timeout_s"`   // e.g. 10
}

type HealthConfig struct {
	MaxRetries      int    `yaml:"max_retries"`      // probe attempts before giving up
	BackoffDelayS   int    `yaml:"backoff_delay_s"`  // fixed delay between attempts
	HTTPTimeoutS    int    `yaml:"http_timeout_s"`   // per HTTP probe
	QuiescenceS     int    `yaml:"quiescence_s"`     // stop-to-start gap on restart
	HealthPath      string `yaml:"health_path"`      // e.g. /health
	ReadinessBinary string `yaml:"readiness_binary"` // in-container readiness command
}

type WorkspaceConfig struct {
	// Command launches the workspace process. Defaults to the
	// nimbus-workspace binary on PATH; override it here to point at a
	// custom build or add flags.
	Command []string `yaml:"command"`

	// StateDir holds the pidfile and log file.
	StateDir string `yaml:"state_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	LogDir string `yaml:"log_dir,omitempty"`
}

// StateDir returns the nimbus state directory, creating nothing.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nimbus"
	}
	return filepath.Join(home, ".nimbus")
}

func DefaultConfig() NimbusConfig {
	stateDir := StateDir()
	return NimbusConfig{
		Backend: BackendConfig{
			Binary:          "docker",
			ComposeFile:     filepath.Join(stateDir, "docker-compose.yaml"),
			ProjectName:     "nimbus",
			ComposeTimeoutS: 300,
			QueryTimeoutS:   10,
		},
		Health: HealthConfig{
			MaxRetries:      3,
			BackoffDelayS:   5,
			HTTPTimeoutS:    5,
			QuiescenceS:     2,
			HealthPath:      "/health",
			ReadinessBinary: "pg_isready",
		},
		Workspace: WorkspaceConfig{
			Command:  []string{"nimbus-workspace", "--port", "8190"},
			StateDir: stateDir,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
