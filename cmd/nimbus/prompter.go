// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// Prompter Interface
// =============================================================================

// WorkspaceSetupChoice is the user's decision during the interactive
// workspace setup step of the install workflow.
type WorkspaceSetupChoice string

const (
	// SetupCreate provisions a fresh workspace.
	SetupCreate WorkspaceSetupChoice = "create"

	// SetupExisting attaches to a workspace that already exists.
	SetupExisting WorkspaceSetupChoice = "existing"

	// SetupSkip defers workspace setup. Skipping is a valid outcome,
	// not a failure.
	SetupSkip WorkspaceSetupChoice = "skip"
)

// UserPrompter abstracts interactive decisions so workflows can run
// against a terminal, a script, or a test double.
type UserPrompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, message string) (bool, error)

	// SelectWorkspaceSetup asks how to handle workspace setup.
	SelectWorkspaceSetup(ctx context.Context) (WorkspaceSetupChoice, error)

	// WorkspaceName asks for the name of the workspace to create or attach.
	WorkspaceName(ctx context.Context, message string) (string, error)
}

// =============================================================================
// Interactive Prompter
// =============================================================================

// InteractivePrompter prompts on the terminal. With a real TTY it renders
// huh forms; on piped IO it falls back to plain line-based prompts so the
// same binary works under scripts and in tests.
type InteractivePrompter struct {
	// in is a single buffered reader shared by all prompts. One reader
	// per prompter keeps input typed ahead of the next prompt from being
	// buffered by one call and dropped by the next.
	in     *bufio.Reader
	out    io.Writer
	useTTY bool
}

// NewInteractivePrompter creates a prompter bound to stdin/stdout.
func NewInteractivePrompter() *InteractivePrompter {
	return &InteractivePrompter{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		useTTY: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
}

// NewInteractivePrompterWithIO creates a prompter over explicit streams.
// Forms are disabled; prompts are plain lines. Intended for tests.
func NewInteractivePrompterWithIO(in io.Reader, out io.Writer) *InteractivePrompter {
	return &InteractivePrompter{in: bufio.NewReader(in), out: out, useTTY: false}
}

// Compile-time interface verification.
var _ UserPrompter = (*InteractivePrompter)(nil)

// Confirm asks a yes/no question. Only "y" and "yes" (case-insensitive)
// count as yes on the line-based path.
func (p *InteractivePrompter) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.useTTY {
		var answer bool
		field := huh.NewConfirm().Title(message).Value(&answer)
		if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
			return false, fmt.Errorf("confirmation prompt: %w", err)
		}
		return answer, nil
	}

	safeWrite(p.out, "%s [y/N]: ", message)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// SelectWorkspaceSetup asks how to proceed with workspace setup.
func (p *InteractivePrompter) SelectWorkspaceSetup(ctx context.Context) (WorkspaceSetupChoice, error) {
	if err := ctx.Err(); err != nil {
		return SetupSkip, err
	}
	if p.useTTY {
		var choice WorkspaceSetupChoice
		field := huh.NewSelect[WorkspaceSetupChoice]().
			Title("Workspace setup").
			Options(
				huh.NewOption("Create a new workspace", SetupCreate),
				huh.NewOption("Use an existing workspace", SetupExisting),
				huh.NewOption("Skip for now", SetupSkip),
			).
			Value(&choice)
		if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
			return SetupSkip, fmt.Errorf("workspace setup prompt: %w", err)
		}
		return choice, nil
	}

	safeWrite(p.out, "Workspace setup: [1] create new  [2] use existing  [3] skip: ")
	line, err := p.readLine()
	if err != nil {
		return SetupSkip, err
	}
	switch strings.TrimSpace(line) {
	case "1", "create":
		return SetupCreate, nil
	case "2", "existing":
		return SetupExisting, nil
	default:
		return SetupSkip, nil
	}
}

// WorkspaceName asks for a workspace name.
func (p *InteractivePrompter) WorkspaceName(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.useTTY {
		var name string
		field := huh.NewInput().Title(message).Placeholder("my-workspace").Value(&name)
		if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
			return "", fmt.Errorf("workspace name prompt: %w", err)
		}
		return strings.TrimSpace(name), nil
	}

	safeWrite(p.out, "%s: ", message)
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *InteractivePrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading prompt response: %w", err)
	}
	return line, nil
}

// =============================================================================
// Non-Interactive Prompter
// =============================================================================

// NonInteractivePrompter answers every prompt without user input. Used
// for --non-interactive runs and CI. Confirmation defaults to AssumeYes;
// workspace setup is always skipped because there is nobody to name a
// workspace.
type NonInteractivePrompter struct {
	// AssumeYes is the answer given to every confirmation.
	AssumeYes bool
}

// Compile-time interface verification.
var _ UserPrompter = (*NonInteractivePrompter)(nil)

func (p *NonInteractivePrompter) Confirm(_ context.Context, _ string) (bool, error) {
	return p.AssumeYes, nil
}

func (p *NonInteractivePrompter) SelectWorkspaceSetup(_ context.Context) (WorkspaceSetupChoice, error) {
	return SetupSkip, nil
}

func (p *NonInteractivePrompter) WorkspaceName(_ context.Context, _ string) (string, error) {
	return "", nil
}

// =============================================================================
// Mock Prompter
// =============================================================================

// MockPrompter is a configurable test double for UserPrompter.
//
// # Thread Safety
//
// Call recording is mutex-guarded.
type MockPrompter struct {
	mu    sync.Mutex
	Calls []string

	// ConfirmFunc overrides Confirm. Nil defaults to true.
	ConfirmFunc func(ctx context.Context, message string) (bool, error)

	// SelectFunc overrides SelectWorkspaceSetup. Nil defaults to SetupSkip.
	SelectFunc func(ctx context.Context) (WorkspaceSetupChoice, error)

	// NameFunc overrides WorkspaceName. Nil defaults to "test-workspace".
	NameFunc func(ctx context.Context, message string) (string, error)
}

// Compile-time interface verification.
var _ UserPrompter = (*MockPrompter)(nil)

func (m *MockPrompter) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// GetCalls returns a copy of the recorded prompt names.
func (m *MockPrompter) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	copy(out, m.Calls)
	return out
}

func (m *MockPrompter) Confirm(ctx context.Context, message string) (bool, error) {
	m.record("Confirm")
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, message)
	}
	return true, nil
}

func (m *MockPrompter) SelectWorkspaceSetup(ctx context.Context) (WorkspaceSetupChoice, error) {
	m.record("SelectWorkspaceSetup")
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx)
	}
	return SetupSkip, nil
}

func (m *MockPrompter) WorkspaceName(ctx context.Context, message string) (string, error) {
	m.record("WorkspaceName")
	if m.NameFunc != nil {
		return m.NameFunc(ctx, message)
	}
	return "test-workspace", nil
}
