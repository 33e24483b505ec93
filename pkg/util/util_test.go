package util

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"", zapcore.InfoLevel},
		{"loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "orderwatch.log")
	logger, err := NewLoggerWithFile(path, "debug")
	if err != nil {
		t.Fatalf("NewLoggerWithFile failed: %v", err)
	}
	logger.Sugar().Debugw("logger_test", "path", path)
	_ = logger.Sync()
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, RealClock{}, time.Hour); err != context.Canceled {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
	if err := Sleep(context.Background(), RealClock{}, time.Millisecond); err != nil {
		t.Errorf("Sleep() = %v, want nil", err)
	}
}
