// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a waiting indicator on one terminal line. In machine
// output it degrades to a single PROGRESS line so logs stay readable.
type Spinner struct {
	message string
	w       io.Writer
	stop    chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	running bool
}

// NewSpinner creates a spinner writing to stdout.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		w:       os.Stdout,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// WithWriter redirects the spinner's output, mainly for tests.
func (s *Spinner) WithWriter(w io.Writer) *Spinner {
	s.w = w
	return s
}

// Start begins the animation. Starting a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if CurrentLevel() == PersonalityMachine {
		fmt.Fprintf(s.w, "PROGRESS: %s\n", s.message)
		return
	}

	go func() {
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()

		frame := 0
		for {
			select {
			case <-s.stop:
				// Erase the spinner line before handing the terminal back.
				fmt.Fprint(s.w, "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				fmt.Fprintf(s.w, "\r%s %s", styleHighlight.Render(spinnerFrames[frame]), s.message)
				frame = (frame + 1) % len(spinnerFrames)
			}
		}
	}()
}

// Stop halts the animation and clears the line. Stopping a stopped
// spinner is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if CurrentLevel() == PersonalityMachine {
		return
	}

	close(s.stop)
	<-s.done
}
