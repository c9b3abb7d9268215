// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across admix. Key/value pairs
// follow the zap sugared convention.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	log *zap.SugaredLogger
}

// New creates a new logger at info level.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a new logger with a specific level.
func NewWithLevel(level string) Logger {
	lvl := zapcore.InfoLevel
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return &noOpLogger{}
	}

	return &zapLogger{log: log.Sugar()}
}

// NewLogger creates a named logger at info level.
func NewLogger(name string) Logger {
	l := NewWithLevel("info")
	return l.With("component", name)
}

// NoOp returns a logger that discards everything.
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a shared no-op logger instance.
var NoLog = NoOp()

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.log.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{log: l.log.With(kv...)}
}

func (l *zapLogger) Sync() error {
	return l.log.Sync()
}

type noOpLogger struct{}

func (n *noOpLogger) Debug(msg string, kv ...interface{}) {}
func (n *noOpLogger) Info(msg string, kv ...interface{})  {}
func (n *noOpLogger) Warn(msg string, kv ...interface{})  {}
func (n *noOpLogger) Error(msg string, kv ...interface{}) {}
func (n *noOpLogger) With(kv ...interface{}) Logger       { return n }
func (n *noOpLogger) Sync() error                         { return nil }
