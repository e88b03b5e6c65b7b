package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/systmms/userprofile/internal/config"
)

// Logger provides structured logging with redaction support
type Logger struct {
	debug  bool
	logger *slog.Logger
}

// New creates a console logger writing text records to stderr
func New(debug bool) *Logger {
	return NewWithWriter(os.Stderr, debug, false)
}

// NewWithWriter creates a logger writing to w, as JSON when json is set.
func NewWithWriter(w io.Writer, debug, json bool) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return &Logger{
		debug:  debug,
		logger: slog.New(newHandler(w, level, json)),
	}
}

// FromSettings builds a logger from validated logger settings. File loggers
// rotate through lumberjack and always write JSON.
func FromSettings(s *config.LoggerSettings, debug bool) (*Logger, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger settings: %w", err)
	}

	level := ParseLevel(s.LogLevel)
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	switch s.LogType {
	case config.LogTypeConsole:
		handler = newHandler(os.Stderr, level, false)
	case config.LogTypeFile:
		handler = newHandler(&lumberjack.Logger{
			Filename:   s.FilePath,
			MaxSize:    s.MaxSize,
			MaxBackups: s.MaxBackups,
			MaxAge:     s.MaxAge,
			Compress:   true,
		}, level, true)
	default:
		return nil, fmt.Errorf("unsupported log type: %s", s.LogType)
	}

	return &Logger{
		debug:  level <= slog.LevelDebug,
		logger: slog.New(handler),
	}, nil
}

func newHandler(w io.Writer, level slog.Level, json bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a configured level name onto a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarning, "warn":
		return slog.LevelWarn
	case config.LogLevelError, config.LogLevelCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a logger that adds the given key/value attributes to every record
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		debug:  l.debug,
		logger: l.logger.With(args...),
	}
}

// Slog exposes the underlying slog logger, e.g. for http.Server.ErrorLog
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// DebugEnabled reports whether debug records are emitted
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// LogValue keeps the value redacted when passed as a structured attribute
func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
