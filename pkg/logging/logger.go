// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging wraps log/slog for the Nimbus CLI.
//
// Two destinations exist: stderr (text, the Unix default for a CLI) and
// an optional per-day log file (JSON, for later inspection). Both carry
// the same records; there is no sampling or export pipeline.
//
// Typical wiring:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.ParseLevel(cfg.Logging.Level),
//	    LogDir:  cfg.Logging.LogDir,
//	    Service: "cli",
//	})
//	defer logger.Close()
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string onto a Level. Unrecognized input,
// including the empty string, yields LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config selects destinations and severity for a Logger. The zero value
// logs Info and above to stderr only.
type Config struct {
	// Level is the minimum severity emitted.
	Level Level

	// LogDir enables file logging when non-empty. The file is named
	// {service}_{YYYY-MM-DD}.log and written as JSON lines. A leading ~
	// expands to the home directory.
	LogDir string

	// Service is attached to every record as the "service" attribute.
	Service string

	// Quiet suppresses the stderr destination. Records still reach the
	// log file when LogDir is set.
	Quiet bool
}

// Logger is a leveled structured logger over one or two destinations.
//
// Safe for concurrent use. Close flushes and releases the log file;
// loggers derived via With share the parent's file and must not be
// closed separately.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New builds a Logger from config. Destination failures degrade rather
// than error: an unwritable LogDir simply leaves file logging off.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var handlers []slog.Handler
	if !cfg.Quiet {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
	}

	logger := &Logger{}
	if cfg.LogDir != "" {
		if f := openLogFile(expandHome(cfg.LogDir), cfg.Service); f != nil {
			logger.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no usable log file: keep the API working, drop
		// the records.
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = teeHandler(handlers)
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns a stderr-only Info logger tagged "nimbus".
func Default() *Logger {
	return New(Config{Service: "nimbus"})
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger whose records carry the given attributes
// in addition to the parent's. The parent is unchanged.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file}
}

// Close syncs and closes the log file, if one is open. Safe to call on
// a stderr-only logger.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("syncing log file: %w", err)
	}
	return l.file.Close()
}

func openLogFile(dir, service string) *os.File {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil
	}
	if service == "" {
		service = "nimbus"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil
	}
	return f
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// teeHandler duplicates records to every destination.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
