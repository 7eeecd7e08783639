package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerNew(t *testing.T) {
	log := New(false)
	if log == nil {
		t.Fatal("Expected logger to be created, got nil")
	}
	if log.debug {
		t.Error("Expected debug to be false")
	}

	logDebug := New(true)
	if !logDebug.debug {
		t.Error("Expected debug to be true")
	}
}

func TestLoggerNewWithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logFilePath := filepath.Join(tmpDir, "test.log")

	log, err := NewWithFile(false, logFilePath)
	if err != nil {
		t.Fatalf("Failed to create logger with file: %v", err)
	}
	if log.logFile == nil {
		t.Fatal("Expected log file to be set, got nil")
	}

	log.Info("test message")
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(logFilePath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "test message") {
		t.Error("Expected log file to contain 'test message'")
	}
}

func TestLoggerClose(t *testing.T) {
	log := New(false)
	if err := log.Close(); err != nil {
		t.Errorf("Expected Close() to succeed, got error: %v", err)
	}

	logWithFile, err := NewWithFile(false, filepath.Join(t.TempDir(), "test.log"))
	if err != nil {
		t.Fatalf("Failed to create logger with file: %v", err)
	}
	if err := logWithFile.Close(); err != nil {
		t.Errorf("Expected Close() to succeed, got error: %v", err)
	}
	if err := logWithFile.Close(); err != nil {
		t.Errorf("Expected second Close() to be a no-op, got error: %v", err)
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		log   func(l *Logger)
		level zapcore.Level
		want  string
	}{
		{"info", false, func(l *Logger) { l.Infof("info %s", "value") }, zapcore.InfoLevel, "info value"},
		{"success", false, func(l *Logger) { l.Successf("done %d", 42) }, zapcore.InfoLevel, "done 42"},
		{"warning", false, func(l *Logger) { l.Warning("careful") }, zapcore.WarnLevel, "careful"},
		{"error", false, func(l *Logger) { l.Errorf("failed: %s", "boom") }, zapcore.ErrorLevel, "failed: boom"},
		{"debug", true, func(l *Logger) { l.Debugf("debug %s", "value") }, zapcore.DebugLevel, "debug value"},
		{"step", false, func(l *Logger) { l.Step(2, "Execute") }, zapcore.InfoLevel, "Step 2: Execute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			tt.log(NewWithCore(core, tt.debug))
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 entry, got %d", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("Expected level %v, got %v", tt.level, entries[0].Level)
			}
			if entries[0].Message != tt.want {
				t.Errorf("Expected message %q, got %q", tt.want, entries[0].Message)
			}
		})
	}
}

func TestLoggerDebugSuppressed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewWithCore(core, false).Debug("this should not be logged")
	if logs.Len() != 0 {
		t.Errorf("Expected no entries, got %d", logs.Len())
	}
}

func TestLoggerNamedWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewWithCore(core, false).Named("migration").With("migration_id", "m-1")
	log.Info("phase started")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "migration" {
		t.Errorf("Expected logger name 'migration', got %q", entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["migration_id"]; got != "m-1" {
		t.Errorf("Expected migration_id 'm-1', got %v", got)
	}
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Info("discarded")
	if err := log.Close(); err != nil {
		t.Errorf("Expected Close() to succeed, got error: %v", err)
	}
}

func TestGetTimestamp(t *testing.T) {
	timestamp := GetTimestamp()
	if len(timestamp) != 15 {
		t.Errorf("Expected timestamp length to be 15, got %d", len(timestamp))
	}
	if timestamp[8] != '-' {
		t.Error("Expected timestamp to have hyphen at position 8")
	}
}
