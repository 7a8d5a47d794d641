package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink receives diagnostics from the pipeline: classification conflicts,
// default-handler fallbacks, retry decisions, drops. It is purely
// observational and never affects control flow.
//
// Implementations must call msg only when the entry will actually be
// emitted, so disabled levels cost nothing.
type Sink interface {
	Log(level zapcore.Level, tag string, err error, msg func() string)
}

// NewZapSink returns a Sink that forwards diagnostics to the logger.
// The message function is evaluated only when the logger's level admits
// the entry.
func NewZapSink(l *Logger) Sink {
	return &zapSink{l: l}
}

type zapSink struct {
	l *Logger
}

func (s *zapSink) Log(level zapcore.Level, tag string, err error, msg func() string) {
	if !s.l.zap.Core().Enabled(level) {
		return
	}
	fields := []zap.Field{zap.String("tag", tag)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.l.zap.Log(level, msg(), fields...)
}

// NopSink returns a Sink that discards everything without evaluating
// message functions.
func NopSink() Sink {
	return nopSink{}
}

type nopSink struct{}

func (nopSink) Log(zapcore.Level, string, error, func() string) {}
