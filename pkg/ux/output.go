// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders the Nimbus CLI's terminal output. Three output
// levels exist: full (color and icons), minimal (icons only), and
// machine (plain tab-separated lines for scripts). The level is set
// once at startup via InitPersonality or the --personality flag.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Print destinations, swapped in tests.
var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// Nimbus palette: sky blue with conventional semantic colors.
var (
	colorSky   = lipgloss.Color("#4FC3F7")
	colorGold  = lipgloss.Color("#F4D03F")
	colorRust  = lipgloss.Color("#E74C3C")
	colorSlate = lipgloss.Color("#44546B")
)

var (
	styleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorSky)
	styleSuccess   = lipgloss.NewStyle().Foreground(colorSky)
	styleWarning   = lipgloss.NewStyle().Foreground(colorGold)
	styleError     = lipgloss.NewStyle().Foreground(colorRust)
	styleMuted     = lipgloss.NewStyle().Foreground(colorSlate)
	styleBold      = lipgloss.NewStyle().Bold(true)
	styleHighlight = lipgloss.NewStyle().Bold(true).Foreground(colorSky)
)

// Icon is a one-glyph status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Render colors the icon for full output; other levels get the bare glyph.
func (i Icon) Render() string {
	if CurrentLevel() != PersonalityFull {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return styleSuccess.Render(string(i))
	case IconWarning:
		return styleWarning.Render(string(i))
	case IconError:
		return styleError.Render(string(i))
	case IconPending:
		return styleMuted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a section heading. Machine output has no headings.
func Title(text string) {
	switch CurrentLevel() {
	case PersonalityMachine:
	case PersonalityMinimal:
		fmt.Fprintln(out, text)
	default:
		fmt.Fprintln(out, styleTitle.Render(text))
	}
}

// Success prints a confirmation line.
func Success(text string) {
	switch CurrentLevel() {
	case PersonalityMachine:
		fmt.Fprintf(out, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(out, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(out, "%s %s\n", IconSuccess.Render(), styleSuccess.Render(text))
	}
}

// Error prints a failure line. Machine output goes to stderr so piped
// scripts keep a clean stdout.
func Error(text string) {
	switch CurrentLevel() {
	case PersonalityMachine:
		fmt.Fprintf(errOut, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(out, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(out, "%s %s\n", IconError.Render(), styleError.Render(text))
	}
}

// Muted prints secondary text such as hints. Dropped in machine output.
func Muted(text string) {
	switch CurrentLevel() {
	case PersonalityMachine:
	case PersonalityMinimal:
		fmt.Fprintln(out, text)
	default:
		fmt.Fprintln(out, styleMuted.Render(text))
	}
}

// ServiceStatus prints one service line: icon, name, optional detail.
func ServiceStatus(name string, status Icon, detail string) {
	switch CurrentLevel() {
	case PersonalityMachine:
		fmt.Fprintf(out, "%s\t%s\t%s\n", status, name, detail)
	case PersonalityMinimal:
		fmt.Fprintf(out, "%s %s\n", status.Render(), name)
	default:
		if detail != "" {
			fmt.Fprintf(out, "%s %s %s\n", status.Render(), name, styleMuted.Render("("+detail+")"))
			return
		}
		fmt.Fprintf(out, "%s %s\n", status.Render(), name)
	}
}

// Summary prints the closing healthy/degraded/total counts.
func Summary(healthy, degraded, total int) {
	switch CurrentLevel() {
	case PersonalityMachine:
		fmt.Fprintf(out, "SUMMARY: healthy=%d degraded=%d total=%d\n", healthy, degraded, total)
	case PersonalityMinimal:
		fmt.Fprintf(out, "\n%d healthy  %d degraded  %d total\n", healthy, degraded, total)
	default:
		fmt.Fprintf(out, "\n%s %s  %s %s  %s %s\n",
			styleSuccess.Render(fmt.Sprintf("%d", healthy)), styleMuted.Render("healthy"),
			styleWarning.Render(fmt.Sprintf("%d", degraded)), styleMuted.Render("degraded"),
			styleBold.Render(fmt.Sprintf("%d", total)), styleMuted.Render("total"),
		)
	}
}
