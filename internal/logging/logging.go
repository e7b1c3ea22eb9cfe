// Package logging provides the process-wide slog setup: a structured JSON
// logger on stdout, a human-readable logger on stderr, and rotated per-service
// file loggers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// levelNames maps the custom levels to their display names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

var (
	mu                  sync.RWMutex
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
	structuredLevel     = slog.LevelDebug
	humanReadableLevel  = slog.LevelInfo
)

// RotationSettings controls file logger rotation. Zero values fall back to
// size-based rotation with the package defaults.
type RotationSettings struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	rotationMu       sync.RWMutex
	rotationDefaults = RotationSettings{MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28}
)

// SetRotationDefaults installs the rotation settings used by NewFileLogger.
// Called once by conf after the configuration is loaded.
func SetRotationDefaults(s RotationSettings) {
	rotationMu.Lock()
	defer rotationMu.Unlock()
	if s.MaxSizeMB > 0 {
		rotationDefaults.MaxSizeMB = s.MaxSizeMB
	}
	if s.MaxBackups > 0 {
		rotationDefaults.MaxBackups = s.MaxBackups
	}
	if s.MaxAgeDays > 0 {
		rotationDefaults.MaxAgeDays = s.MaxAgeDays
	}
}

// handlerOptions builds slog handler options that render the custom level names.
func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				levelLabel, exists := levelNames[level]
				if !exists {
					levelLabel = level.String()
				}
				a.Value = slog.StringValue(levelLabel)
			}
			return a
		},
	}
}

// rebuild replaces both global loggers with the stored levels and writers.
func rebuild(structuredOut, humanReadableOut io.Writer) {
	structuredLogger = slog.New(slog.NewJSONHandler(structuredOut, handlerOptions(structuredLevel)))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadableOut, handlerOptions(humanReadableLevel)))
	slog.SetDefault(structuredLogger)
}

// Init initializes the logging system: JSON to stdout for machine consumption,
// text to stderr for humans. The JSON logger becomes the slog default.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	rebuild(os.Stdout, os.Stderr)
}

// SetLevel sets the minimum level for both global loggers.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	structuredLevel = level
	humanReadableLevel = level
	rebuild(os.Stdout, os.Stderr)
}

// SetOutput redirects both global loggers, preserving their levels. Used by
// tests and by the support tooling.
func SetOutput(structuredOut, humanReadableOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	rebuild(structuredOut, humanReadableOut)
}

// ParseLevel maps a level string (as found in LOG_LEVEL or the config file)
// to a slog level. Unknown strings map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// Structured returns the global structured (JSON) logger, or nil before Init.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the global human-readable (text) logger, or nil before Init.
func HumanReadable() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return humanReadableLogger
}

// ForService returns a child of the structured logger carrying a 'service'
// attribute, or nil before Init.
func ForService(serviceName string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if structuredLogger == nil {
		return nil
	}
	return structuredLogger.With("service", serviceName)
}

// Convenience functions using the default logger.

func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs at the custom fatal level and exits nonzero.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs at the custom trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

// NewFileLogger returns a JSON slog.Logger writing to filePath through
// lumberjack rotation, tagged with a 'service' attribute, plus a close
// function for the underlying writer.
func NewFileLogger(filePath, serviceName string, level slog.Level) (*slog.Logger, func() error, error) {
	// lumberjack does not create directories
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	rotationMu.RLock()
	rotation := rotationDefaults
	rotationMu.RUnlock()

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   false,
	}

	fileHandler := slog.NewJSONHandler(logWriter, handlerOptions(level))
	logger := slog.New(fileHandler).With("service", serviceName)

	closeFunc := func() error {
		return logWriter.Close()
	}

	return logger, closeFunc, nil
}
