// Package logging provides structured logging for phyling runs.
// It wraps Go's log/slog package to provide JSON-formatted logs with
// context propagation (run, genome, marker, stage) for post-hoc analysis.
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

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the name of the log file inside a run's work directory.
const LogFileName = "phyling.log"

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	MaxSizeMB  int  // Rotate when the file exceeds this size
	MaxBackups int  // Number of rotated files to keep
	Compress   bool // Gzip rotated files
}

// DefaultRotationConfig returns the rotation settings used when none are given.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		Compress:   false,
	}
}

// Logger provides structured logging with context propagation.
// It is safe for concurrent use; child loggers share the underlying writer.
type Logger struct {
	logger *slog.Logger
	out    io.Closer
	mu     *sync.Mutex // Protects out
	attrs  []slog.Attr // Persistent attributes (run, genome, marker, stage)
}

// NewLogger creates a Logger writing JSON lines to {dir}/phyling.log with the
// default rotation settings. If dir is empty, logs go to stderr.
func NewLogger(dir string, level string) (*Logger, error) {
	return NewLoggerWithRotation(dir, level, DefaultRotationConfig())
}

// NewLoggerWithRotation creates a Logger whose file output is rotated by
// lumberjack according to rc.
//
// The level parameter controls which messages are logged:
//   - DEBUG: All messages
//   - INFO: Info, Warn, and Error messages
//   - WARN: Warn and Error messages
//   - ERROR: Only Error messages
func NewLoggerWithRotation(dir string, level string, rc RotationConfig) (*Logger, error) {
	var writer io.Writer = os.Stderr
	var closer io.Closer

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(dir, LogFileName),
			MaxSize:    rc.MaxSizeMB,
			MaxBackups: rc.MaxBackups,
			Compress:   rc.Compress,
		}
		writer = lj
		closer = lj
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: parseLevel(level),
	})

	return &Logger{
		logger: slog.New(handler),
		out:    closer,
		mu:     &sync.Mutex{},
		attrs:  make([]slog.Attr, 0),
	}, nil
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRun returns a child Logger tagging every entry with the run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.withAttr(slog.String("run_id", runID))
}

// WithGenome returns a child Logger tagging every entry with a genome ID.
func (l *Logger) WithGenome(genomeID string) *Logger {
	return l.withAttr(slog.String("genome", genomeID))
}

// WithMarker returns a child Logger tagging every entry with a marker ID.
func (l *Logger) WithMarker(markerID string) *Logger {
	return l.withAttr(slog.String("marker", markerID))
}

// WithStage returns a child Logger tagging every entry with a stage name.
// Stages include "search", "align", "trim", "tree" and "consensus".
func (l *Logger) WithStage(stage string) *Logger {
	return l.withAttr(slog.String("stage", stage))
}

// With returns a new Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	newAttrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	newAttrs = append(newAttrs, l.attrs...)

	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		newAttrs = append(newAttrs, slog.Any(key, args[i+1]))
	}

	return &Logger{
		logger: l.logger,
		out:    l.out,
		mu:     l.mu,
		attrs:  newAttrs,
	}
}

// withAttr creates a new Logger with an additional attribute.
func (l *Logger) withAttr(attr slog.Attr) *Logger {
	newAttrs := make([]slog.Attr, len(l.attrs)+1)
	copy(newAttrs, l.attrs)
	newAttrs[len(l.attrs)] = attr

	return &Logger{
		logger: l.logger,
		out:    l.out,
		mu:     l.mu,
		attrs:  newAttrs,
	}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// log combines persistent attributes with per-call arguments.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	allArgs := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		allArgs = append(allArgs, attr.Key, attr.Value.Any())
	}
	allArgs = append(allArgs, args...)

	l.logger.Log(context.Background(), level, msg, allArgs...)
}

// Close closes the log file. It is a no-op for stderr and Nop loggers and is
// safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		if err := l.out.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.out = nil
	}
	return nil
}

// NopLogger returns a Logger that discards all log output.
// Useful for testing or when logging is disabled.
func NopLogger() *Logger {
	return &Logger{
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		mu:     &sync.Mutex{},
		attrs:  make([]slog.Attr, 0),
	}
}

// ParseLevel converts a string level to the corresponding constant.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return LevelDebug
	case LevelInfo:
		return LevelInfo
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
