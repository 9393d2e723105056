package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements the ports.Logger interface on top of zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger writing structured JSON to stderr.
func New(level LogLevel) *ZerologAdapter {
	return NewWithWriter(level, os.Stderr)
}

// NewConsole creates a logger with human-readable console output, for
// interactive runs of the CLI tools.
func NewConsole(level LogLevel) *ZerologAdapter {
	return NewWithWriter(level, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

// NewWithWriter creates a logger writing to the given sink.
func NewWithWriter(level LogLevel, w io.Writer) *ZerologAdapter {
	zl := zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()
	return &ZerologAdapter{logger: zl}
}

func (l *ZerologAdapter) emit(ev *zerolog.Event, msg string, fields ...map[string]interface{}) {
	if len(fields) > 0 && fields[0] != nil {
		ev = ev.Fields(fields[0])
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZerologAdapter) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(l.logger.Debug(), msg, fields...)
}

// Info logs a message at Info level.
func (l *ZerologAdapter) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(l.logger.Info(), msg, fields...)
}

// Warn logs a message at Warning level.
func (l *ZerologAdapter) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(l.logger.Warn(), msg, fields...)
}

// Error logs an error message at Error level.
func (l *ZerologAdapter) Error(_ context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.emit(l.logger.Error().Err(err), msg, fields...)
}
