package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_IsNop(t *testing.T) {
	l := New()
	if l.Log == nil {
		t.Fatal("Log must not be nil before Init")
	}
	l.Log.Info("discarded")
}

func TestInit(t *testing.T) {
	l := New()
	if err := l.Init("Info"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !l.Log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info must be enabled")
	}
	if l.Log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug must be disabled")
	}
}

func TestInit_BadLevel(t *testing.T) {
	l := New()
	if err := l.Init("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestInitConsole(t *testing.T) {
	l := New()
	if err := l.InitConsole("warn"); err != nil {
		t.Fatalf("InitConsole: %v", err)
	}
	if l.Log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info must be disabled at warn")
	}
}
