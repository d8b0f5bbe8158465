package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true)
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debug level should be enabled")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false)
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger.Core().Enabled(zapcore.DebugLevel) || !logger.Core().Enabled(zapcore.InfoLevel) {
			t.Error("production logger should log at info level")
		}
		_ = logger.Sync()
	})
}

func TestNewCommandLogger(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		infoOn    bool
		debugOn   bool
		warningOn bool
	}{
		{"quiet", false, false, false, true},
		{"debug", true, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewCommandLogger(tt.debug)
			if err != nil {
				t.Fatal(err)
			}
			core := logger.Core()
			if core.Enabled(zapcore.InfoLevel) != tt.infoOn ||
				core.Enabled(zapcore.DebugLevel) != tt.debugOn ||
				core.Enabled(zapcore.WarnLevel) != tt.warningOn {
				t.Errorf("unexpected levels for debug=%v", tt.debug)
			}
		})
	}
}
