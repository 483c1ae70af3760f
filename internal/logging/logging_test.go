package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{" error ", zapcore.ErrorLevel, false},
		{"trace", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, json := range []bool{false, true} {
		logger, err := New("warn", json)
		if err != nil {
			t.Fatalf("New(json=%v) error = %v", json, err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("json=%v: info should be disabled at warn", json)
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("json=%v: error should be enabled at warn", json)
		}
	}

	if _, err := New("loud", false); err == nil {
		t.Error("New with an unknown level should fail")
	}
	if MustNew("loud", false) == nil {
		t.Error("MustNew should fall back to a no-op logger")
	}
}
