// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package logging builds the session loggers. Interactive sessions log JSON
// to a per-session file so the terminal stays clean; components receive the
// *zap.Logger through their Deps structs and never from a global.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewSessionLogger creates a JSON logger writing to <dir>/<sessionID>.log,
// creating dir if needed. An empty dir disables logging. The returned
// closer syncs and closes the log file.
func NewSessionLogger(dir, sessionID string, debug bool) (*zap.Logger, func() error, error) {
	if dir == "" {
		return zap.NewNop(), func() error { return nil }, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	path := filepath.Join(dir, sessionID+".log")
	logFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(logFile),
		level,
	)
	logger := zap.New(core)

	closer := func() error {
		_ = logger.Sync()
		return logFile.Close()
	}
	return logger, closer, nil
}

// NewDevelopment returns a console logger for tests and debugging runs.
func NewDevelopment() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
