// Package logging provides simple structured-ish logging for mthread.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration. Output is always plain text lines:
// Format is recorded on the Logger but does not change the output (a
// "json" value produces the same text lines), and Sync and NoColor are
// accepted but not read.
type Config struct {
	Level   LogLevel
	Format  string // "text" (default); other values are stored only
	Output  io.Writer
	Sync    bool
	NoColor bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger wraps stdlib log with level support and a small chain of
// contextual fields (CPU id, k-thread id, group id, ...).
type Logger struct {
	logger *log.Logger
	level  LogLevel
	format string
	fields []field
	mu     *sync.Mutex
}

type field struct {
	key string
	val string
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// NewLogger creates a new logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		logger: log.New(output, "", log.LstdFlags),
		level:  config.Level,
		format: format,
		mu:     &sync.Mutex{},
	}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) with(key string, val interface{}) *Logger {
	return &Logger{
		logger: l.logger,
		level:  l.level,
		format: l.format,
		mu:     l.mu,
		fields: append(append([]field{}, l.fields...), field{key, fmt.Sprintf("%v", val)}),
	}
}

// WithCPU attaches a cpu id to every subsequent log line.
func (l *Logger) WithCPU(id int) *Logger { return l.with("cpu", id) }

// WithKThread attaches a k-thread id (OS tid) to every subsequent log line.
func (l *Logger) WithKThread(id int) *Logger { return l.with("kthread", id) }

// WithGroup attaches a u-thread group id to every subsequent log line.
func (l *Logger) WithGroup(id int) *Logger { return l.with("group", id) }

// WithUThread attaches a u-thread id to every subsequent log line.
func (l *Logger) WithUThread(id uint64) *Logger { return l.with("uthread", id) }

// WithError attaches an error to every subsequent log line.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if b.Len() != 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return " " + b.String()
}

func (l *Logger) fieldString() string {
	if len(l.fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range l.fields {
		fmt.Fprintf(&b, " %s=%s", f.key, f.val)
	}
	return b.String()
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("%s %s%s%s", prefix, msg, l.fieldString(), formatArgs(args))
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, "[DEBUG]", msg, args...) }
func (l *Logger) Info(msg string, args ...any)   { l.log(LevelInfo, "[INFO]", msg, args...) }
func (l *Logger) Warn(msg string, args ...any)   { l.log(LevelWarn, "[WARN]", msg, args...) }
func (l *Logger) Error(msg string, args ...any)  { l.log(LevelError, "[ERROR]", msg, args...) }

// Debugf, Infof, Warnf, Errorf are printf-style logging, satisfying
// interfaces.Logger.
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}
func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}
func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}
func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf logs at info level for compatibility with interfaces.Logger.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions operating on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
