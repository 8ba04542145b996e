package apiguard

import (
	"log"

	"go.uber.org/zap"
)

// Logger is the minimal structured logging interface consumed by the layer.
// Keys and values are alternating pairs, as in zap's sugared logger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger is a minimal console logger on the standard log package.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger writing to the default log output.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{logger: log.Default()}
}

func (l *SimpleLogger) log(level, msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) == 0 {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("[%s] %s %v", level, msg, keysAndValues)
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log("DEBUG", msg, keysAndValues...)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log("INFO", msg, keysAndValues...)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log("WARN", msg, keysAndValues...)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log("ERROR", msg, keysAndValues...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// NopLogger returns a logger that discards everything. It is the default for
// all components so logging is strictly opt-in.
func NopLogger() Logger { return nopLogger{} }

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to the Logger interface so hosts that
// already log with zap can inject it directly.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{sugar: l.Sugar()}
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}
