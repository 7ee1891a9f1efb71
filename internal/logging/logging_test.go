package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("test") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("test") }, false},
		{"warn at info level", log.InfoLevel, func(l *log.Logger) { l.Warn("test") }, true},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(New(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("got log output = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, log.InfoLevel)

	ctx := WithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext should return the attached logger")
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should fall back to the default logger")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Warn("ignored")
	l.Error("ignored")
}
