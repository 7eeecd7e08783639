// Package logger provides structured logging for cloudhop.
package logger

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled logging with per-component children.
type Logger struct {
	sugar   *zap.SugaredLogger
	debug   bool
	logFile *os.File
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func levelFor(debug bool) zap.AtomicLevel {
	if debug {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel)
}

// New creates a Logger writing to stderr.
func New(debug bool) *Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), levelFor(debug))
	return NewWithCore(core, debug)
}

// NewWithFile creates a Logger that writes to both the console and a JSON log file.
func NewWithFile(debug bool, logFilePath string) (*Logger, error) {
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	level := levelFor(debug)
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(logFile), level),
	)
	l := NewWithCore(core, debug)
	l.logFile = logFile
	return l, nil
}

// NewWithCore wraps an existing zap core.
func NewWithCore(core zapcore.Core, debug bool) *Logger {
	return &Logger{sugar: zap.New(core).Sugar(), debug: debug}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Named returns a child logger for a component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name), debug: l.debug}
}

// With returns a child logger that adds key/value context to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), debug: l.debug}
}

// Close flushes buffered entries and closes the log file if one is open.
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.sugar.Info(msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Success logs a completed step.
func (l *Logger) Success(msg string) {
	l.sugar.Infow(msg, "result", "done")
}

// Successf logs a formatted completed step.
func (l *Logger) Successf(format string, args ...interface{}) {
	l.sugar.Infow(fmt.Sprintf(format, args...), "result", "done")
}

// Warning logs a warning message.
func (l *Logger) Warning(msg string) {
	l.sugar.Warn(msg)
}

// Warningf logs a formatted warning message.
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	l.sugar.Error(msg)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Debug logs a debug message (only if debug mode is enabled).
func (l *Logger) Debug(msg string) {
	l.sugar.Debug(msg)
}

// Debugf logs a formatted debug message (only if debug mode is enabled).
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Step logs a step header for migration progress.
func (l *Logger) Step(stepNum int, description string) {
	l.sugar.Infow(fmt.Sprintf("Step %d: %s", stepNum, description), "step", stepNum)
}

// GetTimestamp returns a timestamp string in the format YYYYMMDD-HHMMSS.
func GetTimestamp() string {
	return time.Now().Format("20060102-150405")
}
