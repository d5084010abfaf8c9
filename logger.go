package raffle

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogger implements Logger on top of a zap sugared logger
type DefaultLogger struct {
	sugar *zap.SugaredLogger
}

// NewDefaultLogger creates a production zap logger at the given level ("debug", "info", "error", ...).
// It falls back to a no-op logger if zap cannot be built.
func NewDefaultLogger(level string) *DefaultLogger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return NewZapLogger(logger)
}

// NewZapLogger adapts an existing zap logger
func NewZapLogger(logger *zap.Logger) *DefaultLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...any) {
	l.sugar.Infof(msg, args...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...any) {
	l.sugar.Errorf(msg, args...)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...any) {
	l.sugar.Debugf(msg, args...)
}

// Sync flushes buffered log entries
func (l *DefaultLogger) Sync() error {
	return l.sugar.Sync()
}

// SilentLogger implements Logger interface but does not output any logs
// This is useful for testing environments where log output is not desired
type SilentLogger struct{}

// NewSilentLogger creates a new silent logger instance
func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

// Info does nothing (silent)
func (l *SilentLogger) Info(msg string, args ...any) {}

// Error does nothing (silent)
func (l *SilentLogger) Error(msg string, args ...any) {}

// Debug does nothing (silent)
func (l *SilentLogger) Debug(msg string, args ...any) {}
