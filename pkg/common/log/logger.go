// Package log provides the leveled logging used across tern components.
// It favors a small interface over configurability: timestamped lines with a
// level tag, a printf-style message, and optional key=value fields.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level controls which messages a logger emits.
type Level int

const (
	// LevelDebug enables all messages, including per-block detail.
	LevelDebug Level = iota
	// LevelInfo enables operational messages and above.
	LevelInfo
	// LevelWarn enables warnings and above.
	LevelWarn
	// LevelError enables errors and above.
	LevelError
	// LevelFatal enables only fatal messages, which exit the process.
	LevelFatal
)

// String returns the level's log-line tag.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// Logger is the leveled, field-carrying logger tern components log through.
type Logger interface {
	// Debug logs a debug-level message with fmt.Sprintf semantics.
	Debug(format string, args ...interface{})
	// Info logs an info-level message.
	Info(format string, args ...interface{})
	// Warn logs a warning message.
	Warn(format string, args ...interface{})
	// Error logs an error message.
	Error(format string, args ...interface{})
	// Fatal logs a message and then calls os.Exit(1).
	Fatal(format string, args ...interface{})

	// WithField returns a logger that appends key=value to every message.
	WithField(key string, value interface{}) Logger
	// WithFields returns a logger that appends all given fields to every
	// message.
	WithFields(fields map[string]interface{}) Logger

	// GetLevel returns the minimum emitted level.
	GetLevel() Level
	// SetLevel changes the minimum emitted level.
	SetLevel(level Level)
}

// StandardLogger writes log lines to a single io.Writer. It is safe for use
// from multiple goroutines.
type StandardLogger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	fields map[string]interface{}
}

// LoggerOption configures a StandardLogger at construction time.
type LoggerOption func(*StandardLogger)

// WithLevel sets the minimum emitted level.
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) {
		l.level = level
	}
}

// WithOutput sets the destination for log lines.
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) {
		l.out = out
	}
}

// NewStandardLogger returns a logger writing to stdout at LevelInfo unless
// options say otherwise.
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	logger := &StandardLogger{
		level:  LevelInfo,
		out:    os.Stdout,
		fields: make(map[string]interface{}),
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

// log emits one line if level passes the filter. Fields render in sorted key
// order so lines are stable across runs.
func (l *StandardLogger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	if len(args) > 0 {
		fmt.Fprintf(&sb, format, args...)
	} else {
		sb.WriteString(format)
	}

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
		}
	}
	sb.WriteByte('\n')

	fmt.Fprint(l.out, sb.String())

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug-level message.
func (l *StandardLogger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info-level message.
func (l *StandardLogger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *StandardLogger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *StandardLogger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Fatal logs a message and then calls os.Exit(1).
func (l *StandardLogger) Fatal(format string, args ...interface{}) {
	l.log(LevelFatal, format, args...)
}

// WithField returns a logger that appends key=value to every message.
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger that appends all given fields to every message.
// The receiver is not modified.
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StandardLogger{
		level:  l.level,
		out:    l.out,
		fields: merged,
	}
}

// GetLevel returns the minimum emitted level.
func (l *StandardLogger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevel changes the minimum emitted level.
func (l *StandardLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

var defaultLogger Logger = NewStandardLogger()

// SetDefaultLogger replaces the process-wide default logger.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the process-wide default logger.
func GetDefaultLogger() Logger {
	return defaultLogger
}

// Debug logs a debug-level message through the default logger.
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

// Info logs an info-level message through the default logger.
func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

// Warn logs a warning message through the default logger.
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

// Error logs an error message through the default logger.
func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

// Fatal logs a message through the default logger and exits.
func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(format, args...)
}

// WithField returns the default logger extended with one field.
func WithField(key string, value interface{}) Logger {
	return defaultLogger.WithField(key, value)
}

// WithFields returns the default logger extended with the given fields.
func WithFields(fields map[string]interface{}) Logger {
	return defaultLogger.WithFields(fields)
}

// SetLevel changes the default logger's minimum emitted level.
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}
