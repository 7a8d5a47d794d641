// Package log provides structured logging and the pipeline diagnostic sink.
//
// Logger is the non-sugared variant for pipeline and daemon code.
// SugaredLogger offers printf-style convenience for CLI and debug
// surfaces; obtain one via Logger.Sugar.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger emits structured JSON log entries. Every entry carries the
// run_id given at construction.
type Logger struct {
	zap   *zap.Logger
	level zapcore.Level
}

// NewLogger creates an info-level logger writing JSON to os.Stderr.
func NewLogger(runID string) *Logger {
	return NewLoggerAt(zapcore.InfoLevel, runID)
}

// NewLoggerAt creates a logger at the given level writing JSON to
// os.Stderr.
func NewLoggerAt(level zapcore.Level, runID string) *Logger {
	return build(jsonCore(level, os.Stderr), level, runID)
}

// NewConsoleLogger creates a logger with a human-readable console
// encoder instead of JSON, writing to os.Stderr.
func NewConsoleLogger(level zapcore.Level, runID string) *Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:     "timestamp",
			LevelKey:    "level",
			MessageKey:  "message",
			EncodeTime:  zapcore.RFC3339TimeEncoder,
			EncodeLevel: zapcore.CapitalLevelEncoder,
		}),
		zapcore.AddSync(os.Stderr),
		level,
	)
	return build(core, level, runID)
}

// WithOutput returns a copy of the logger writing JSON to w. Level and
// accumulated context carry over.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := jsonCore(l.level, w)
	return &Logger{
		zap:   l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })),
		level: l.level,
	}
}

func build(core zapcore.Core, level zapcore.Level, runID string) *Logger {
	return &Logger{zap: zap.New(core).With(zap.String("run_id", runID)), level: level}
}

func jsonCore(level zapcore.Level, w io.Writer) zapcore.Core {
	enc := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), level)
}

// Debug logs at debug level. Ad hoc fields ride under a single "fields"
// key so the top-level entry shape stays fixed.
func (l *Logger) Debug(msg string, fields map[string]any) {
	l.zap.Debug(msg, zap.Any("fields", fields))
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields map[string]any) {
	l.zap.Info(msg, zap.Any("fields", fields))
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields map[string]any) {
	l.zap.Warn(msg, zap.Any("fields", fields))
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields map[string]any) {
	l.zap.Error(msg, zap.Any("fields", fields))
}

// Sugar returns a printf-style logger sharing this logger's core and
// context.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// SugaredLogger wraps zap's sugared logger for CLI and debug surfaces,
// trading a little performance for printf convenience.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// Debugf logs at debug level with printf formatting.
func (s *SugaredLogger) Debugf(format string, args ...any) {
	s.sugar.Debugf(format, args...)
}

// Infof logs at info level with printf formatting.
func (s *SugaredLogger) Infof(format string, args ...any) {
	s.sugar.Infof(format, args...)
}

// Warnf logs at warn level with printf formatting.
func (s *SugaredLogger) Warnf(format string, args ...any) {
	s.sugar.Warnf(format, args...)
}

// Errorf logs at error level with printf formatting.
func (s *SugaredLogger) Errorf(format string, args ...any) {
	s.sugar.Errorf(format, args...)
}

// With returns a SugaredLogger carrying additional key/value context.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
