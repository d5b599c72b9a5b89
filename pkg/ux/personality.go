// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel selects how much decoration the output carries.
type PersonalityLevel string

const (
	// PersonalityFull uses colors, icons, and styled text.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal uses icons but no color.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine emits plain tab-separated text for scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

var (
	levelMu      sync.RWMutex
	currentLevel = PersonalityFull
)

// CurrentLevel returns the active personality level.
func CurrentLevel() PersonalityLevel {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel overrides the active personality level.
func SetPersonalityLevel(level PersonalityLevel) {
	levelMu.Lock()
	defer levelMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel maps a flag or environment value onto a level.
// Unrecognized input yields PersonalityFull.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityFull
	}
}

// InitPersonality picks the level from NIMBUS_PERSONALITY, falling back
// to full on a terminal and machine everywhere else (pipes, CI).
func InitPersonality() {
	if env := os.Getenv("NIMBUS_PERSONALITY"); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if stdoutIsTerminal() {
		SetPersonalityLevel(PersonalityFull)
		return
	}
	SetPersonalityLevel(PersonalityMachine)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
