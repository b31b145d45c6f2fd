package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/billm/imulink/internal/config"
)

// Level represents the log level
type Level slog.Level

const (
	LevelDebug Level = Level(slog.LevelDebug)
	LevelInfo  Level = Level(slog.LevelInfo)
	LevelWarn  Level = Level(slog.LevelWarn)
	LevelError Level = Level(slog.LevelError)
	// LevelNone is above every level a record can carry, so nothing is emitted
	LevelNone Level = Level(slog.LevelError + 8)
)

// String returns the string representation of the log level
func (l Level) String() string {
	if l >= LevelNone {
		return "NONE"
	}
	return slog.Level(l).String()
}

// Output destinations understood by New besides a file path
const (
	OutputSplit  = "split"
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	closer io.Closer // File handle for closing when logging to a file
	mu     sync.Mutex
}

// New creates a new logger with the specified configuration.
// Unknown level names fall back to INFO.
func New(cfg config.LoggingConfig) (*Logger, error) {
	return newLogger(cfg, os.Stdout, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) (*Logger, error) {
	level, _ := ParseLevel(cfg.Level)
	lv := new(slog.LevelVar)
	lv.Set(slog.Level(level))

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = config.DefaultLogFormat
	}

	var handler slog.Handler
	var closer io.Closer
	switch output := cfg.Output; output {
	case OutputSplit, "":
		out, err := newHandler(format, stdout, lv)
		if err != nil {
			return nil, err
		}
		errh, err := newHandler(format, stderr, lv)
		if err != nil {
			return nil, err
		}
		handler = &splitHandler{out: out, err: errh}
	case OutputStdout:
		h, err := newHandler(format, stdout, lv)
		if err != nil {
			return nil, err
		}
		handler = h
	case OutputStderr:
		h, err := newHandler(format, stderr, lv)
		if err != nil {
			return nil, err
		}
		handler = h
	default:
		// File output
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		h, err := newHandler(format, file, lv)
		if err != nil {
			file.Close()
			return nil, err
		}
		handler = h
		closer = file
	}

	return &Logger{
		logger: slog.New(handler),
		level:  lv,
		closer: closer,
	}, nil
}

func newHandler(format string, w io.Writer, lv *slog.LevelVar) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: lv}
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	case "console":
		return newConsoleHandler(w, lv), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be text, json, or console)", format)
	}
}

// NewDefault creates a new logger with default settings
func NewDefault() (*Logger, error) {
	return New(config.DefaultLoggingConfig())
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	lv := new(slog.LevelVar)
	lv.Set(slog.Level(LevelNone))
	return &Logger{
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: lv})),
		level:  lv,
	}
}

// ParseLevel converts a level name to a Level, ignoring case. The second
// result is false when the name is not recognised, in which case LevelInfo
// is returned.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "none", "off":
		return LevelNone, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// With returns a new logger with additional key-value pairs.
// The returned logger shares the parent's handler and level but never
// closes the parent's file.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		logger: l.logger.With(args...),
		level:  l.level,
	}
}

// WithGroup returns a new logger with a group prefix
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		logger: l.logger.WithGroup(name),
		level:  l.level,
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// SetLevel changes the log level of this logger and every logger derived from it
func (l *Logger) SetLevel(level Level) {
	l.level.Set(slog.Level(level))
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	return Level(l.level.Level())
}

// Enabled returns true if logging is enabled for the given level
func (l *Logger) Enabled(level Level) bool {
	return level < LevelNone && level >= l.GetLevel()
}

// Slog exposes the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// String returns a string representation of the logger
func (l *Logger) String() string {
	return fmt.Sprintf("Logger{Level: %s}", l.GetLevel())
}

// Close closes any open resources (file handles, etc.).
// Only the root logger returned by New owns a file; Close on a derived
// logger is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer != nil {
		if err := l.closer.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.closer = nil
	}
	return nil
}
