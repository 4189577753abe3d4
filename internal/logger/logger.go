// Package logger provides leveled logging to a file. The terminal is owned
// by the TUI for the whole process lifetime, so nothing here ever writes to
// stdout or stderr.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level controls which messages a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelNone disables all output.
	LevelNone
)

// String returns the level name as it appears in log lines.
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
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unrecognized values fall back
// to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "none", "NONE", "off", "OFF":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, leveled lines to a single file.
type Logger struct {
	mu     sync.RWMutex
	level  Level
	out    *log.Logger
	prefix string
	file   *os.File
	noop   bool

	// root is non-nil on WithPrefix children; the level lives on the root
	// so a runtime level change covers every derived logger.
	root *Logger
}

var (
	globalLogger *Logger
	globalOnce   sync.Once
)

// Init sets up the process-wide logger. Subsequent calls are no-ops.
func Init(level Level, logPath string) error {
	var err error
	globalOnce.Do(func() {
		globalLogger, err = New(level, logPath, "")
	})
	return err
}

// New creates a Logger appending to logPath. An empty path or LevelNone
// yields a logger that discards everything.
func New(level Level, logPath string, prefix string) (*Logger, error) {
	l := &Logger{
		level:  level,
		prefix: prefix,
	}

	if level == LevelNone || logPath == "" {
		l.out = log.New(io.Discard, "", 0)
		l.noop = true
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = file
	l.out = log.New(file, "", 0)
	return l, nil
}

// Global returns the process-wide logger. Before Init it returns a discard
// logger, so packages may log unconditionally.
func Global() *Logger {
	if globalLogger == nil {
		globalLogger = &Logger{
			level: LevelNone,
			out:   log.New(io.Discard, "", 0),
			noop:  true,
		}
	}
	return globalLogger
}

// WithPrefix derives a logger whose lines carry an additional [prefix] tag.
// The child shares the parent's output file and level.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	combined := prefix
	if l.prefix != "" {
		combined = l.prefix + ":" + prefix
	}

	return &Logger{
		out:    l.out,
		prefix: combined,
		file:   l.file,
		noop:   l.noop,
		root:   l.levelSource(),
	}
}

// levelSource resolves the logger that owns the level: the root of a
// WithPrefix chain, or l itself.
func (l *Logger) levelSource() *Logger {
	if l.root != nil {
		return l.root
	}
	return l
}

// SetLevel changes the minimum emitted level at runtime for this logger and
// everything derived from it via WithPrefix.
func (l *Logger) SetLevel(level Level) {
	src := l.levelSource()
	src.mu.Lock()
	defer src.mu.Unlock()
	src.level = level
}

// GetLevel reports the current minimum level.
func (l *Logger) GetLevel() Level {
	src := l.levelSource()
	src.mu.RLock()
	defer src.mu.RUnlock()
	return src.level
}

func (l *Logger) emit(level Level, format string, args ...interface{}) {
	if l.noop || level < l.GetLevel() {
		return
	}

	tag := ""
	if l.prefix != "" {
		tag = "[" + l.prefix + "] "
	}

	l.out.Printf("%s [%s] %s%s",
		time.Now().Format("2006-01-02 15:04:05.000"),
		level.String(),
		tag,
		fmt.Sprintf(format, args...))
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.emit(LevelDebug, format, args...)
}

// Info logs at LevelInfo.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit(LevelInfo, format, args...)
}

// Warn logs at LevelWarn.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit(LevelWarn, format, args...)
}

// Error logs at LevelError.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
}

// Close flushes and closes the underlying file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Package-level helpers that forward to the global logger.

func Debug(format string, args ...interface{}) { Global().Debug(format, args...) }
func Info(format string, args ...interface{})  { Global().Info(format, args...) }
func Warn(format string, args ...interface{})  { Global().Warn(format, args...) }
func Error(format string, args ...interface{}) { Global().Error(format, args...) }
