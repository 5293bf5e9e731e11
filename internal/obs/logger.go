package obs

import (
	"go.uber.org/zap"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is a minimal logging interface for observability. No core behavior
// depends on what an implementation does with the lines.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
}

// NopLogger discards all logs.
type NopLogger struct{}

func (NopLogger) Logf(level Level, format string, args ...interface{}) {}

// ZapLogger adapts a zap logger.
type ZapLogger struct {
	s   *zap.SugaredLogger
	min Level
}

func NewZapLogger(l *zap.Logger, min Level) ZapLogger {
	return ZapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar(), min: min}
}

func (z ZapLogger) Logf(level Level, format string, args ...interface{}) {
	if z.s == nil || level < z.min {
		return
	}
	switch level {
	case Debug:
		z.s.Debugf(format, args...)
	case Warn:
		z.s.Warnf(format, args...)
	case Error:
		z.s.Errorf(format, args...)
	default:
		z.s.Infof(format, args...)
	}
}
