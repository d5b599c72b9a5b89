// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global NimbusConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	configPath := filepath.Join(StateDir(), "nimbus.yaml")
	// create it if it doesn't exist
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf(" First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	// read the file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file %w", err)
	}
	// parse the config in to the Global struct
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to unmarshal the config into the Global singleton: %w", err)
	}
	applyDefaults(&Global)
	return nil
}

// applyDefaults backfills zero values so a hand-edited config with
// missing keys still behaves.
func applyDefaults(cfg *NimbusConfig) {
	def := DefaultConfig()
	if cfg.Backend.Binary == "" {
		cfg.Backend.Binary = def.Backend.Binary
	}
	if cfg.Backend.ComposeFile == "" {
		cfg.Backend.ComposeFile = def.Backend.ComposeFile
	}
	if cfg.Backend.ProjectName == "" {
		cfg.Backend.ProjectName = def.Backend.ProjectName
	}
	if cfg.Backend.ComposeTimeoutS <= 0 {
		cfg.Backend.ComposeTimeoutS = def.Backend.ComposeTimeoutS
	}
	if cfg.Backend.QueryTimeoutS <= 0 {
		cfg.Backend.QueryTimeoutS = def.Backend.QueryTimeoutS
	}
	if cfg.Health.MaxRetries <= 0 {
		cfg.Health.MaxRetries = def.Health.MaxRetries
	}
	if cfg.Health.BackoffDelayS <= 0 {
		cfg.Health.BackoffDelayS = def.Health.BackoffDelayS
	}
	if cfg.Health.HTTPTimeoutS <= 0 {
		cfg.Health.HTTPTimeoutS = def.Health.HTTPTimeoutS
	}
	if cfg.Health.QuiescenceS <= 0 {
		cfg.Health.QuiescenceS = def.Health.QuiescenceS
	}
	if cfg.Health.HealthPath == "" {
		cfg.Health.HealthPath = def.Health.HealthPath
	}
	if cfg.Health.ReadinessBinary == "" {
		cfg.Health.ReadinessBinary = def.Health.ReadinessBinary
	}
	if len(cfg.Workspace.Command) == 0 {
		cfg.Workspace.Command = def.Workspace.Command
	}
	if cfg.Workspace.StateDir == "" {
		cfg.Workspace.StateDir = def.Workspace.StateDir
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
