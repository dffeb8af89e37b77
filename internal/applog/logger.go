// Package applog provides the process-wide leveled key/value logger.
// Output goes to a log file, to stderr, or nowhere until Init is called.
package applog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level.
// Unknown names map to LevelInfo.
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

// Logger writes one line per record: time, level, message, then key=value pairs.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	min    Level
}

// Log is the global logger. It discards everything until Init is called.
var Log = &Logger{}

// Options controls where and what the global logger writes.
type Options struct {
	// Path is a log file to append to. Takes precedence over Stderr.
	Path string
	// Stderr sends output to standard error when Path is empty.
	Stderr bool
	// Level is the minimum level written.
	Level Level
}

// Init configures the global logger. Calling it again replaces the previous
// destination and closes the old file, if any.
func Init(opts Options) error {
	var (
		out    io.Writer
		closer io.Closer
	)
	switch {
	case opts.Path != "":
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	case opts.Stderr:
		out = os.Stderr
	}

	Log.mu.Lock()
	old := Log.closer
	Log.out = out
	Log.closer = closer
	Log.min = opts.Level
	Log.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if out != nil {
		Log.Debug("Logger initialized", "path", opts.Path, "level", opts.Level)
	}
	return nil
}

// New returns a standalone logger writing to w. Used by tests.
func New(w io.Writer, min Level) *Logger {
	return &Logger{out: w, min: min}
}

// Close closes the log file, if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = nil
	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		return err
	}
	return nil
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out != nil && level >= l.min
}

// Writer returns the destination for use with other logging libraries,
// such as the chi request logger.
func (l *Logger) Writer() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return io.Discard
	}
	return l.out
}

func (l *Logger) log(level Level, msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil || level < l.min {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02T15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		fmt.Fprintf(&b, " !BADKEY=%v", keyvals[len(keyvals)-1])
	}
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())
}

// Debug logs a debug message with optional key-value pairs.
func (l *Logger) Debug(msg string, keyvals ...any) { l.log(LevelDebug, msg, keyvals...) }

// Info logs an info message with optional key-value pairs.
func (l *Logger) Info(msg string, keyvals ...any) { l.log(LevelInfo, msg, keyvals...) }

// Warn logs a warning message with optional key-value pairs.
func (l *Logger) Warn(msg string, keyvals ...any) { l.log(LevelWarn, msg, keyvals...) }

// Error logs an error message with optional key-value pairs.
func (l *Logger) Error(msg string, keyvals ...any) { l.log(LevelError, msg, keyvals...) }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

// Timed logs the duration of an operation at debug level. Usage:
//
//	defer applog.Log.Timed("transform batch")()
func (l *Logger) Timed(operation string, keyvals ...any) func() {
	if !l.Enabled(LevelDebug) {
		return func() {}
	}
	start := time.Now()
	return func() {
		l.Debug(operation, append(keyvals, "duration", time.Since(start))...)
	}
}
