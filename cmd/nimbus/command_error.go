// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"
)

// CommandError wraps a backend command failure with stderr context.
//
// # Description
//
// Provides rich error context for command failures, including the
// command that failed, exit code, and stderr output. Implements the
// error interface and supports unwrapping.
//
// # Example
//
//	err := NewCommandError("compose up", 1, "disk full", originalErr)
//	fmt.Println(err.Error()) // "compose up (exit 1): disk full"
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.Stderr) // "disk full"
//	}
type CommandError struct {
	// Command is the command that was executed.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr contains the standard error output.
	Stderr string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As
// through the chain.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr returns true if stderr output is available.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

// NewCommandError creates a CommandError with full context. Stderr is
// trimmed of leading/trailing whitespace.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExtractStderr walks the error chain looking for a CommandError with
// stderr. Returns the first stderr found, or empty string if none.
func ExtractStderr(err error) string {
	for err != nil {
		if cmdErr, ok := err.(*CommandError); ok && cmdErr.HasStderr() {
			return cmdErr.Stderr
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return ""
}
