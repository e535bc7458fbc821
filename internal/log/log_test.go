package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(nopWriter{})
		SetLevel(LevelInfo)
	})
	return &buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   Level
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{" WARN ", LevelWarn, true},
		{"error", LevelError, true},
		{"", LevelInfo, false},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, "ParseLevel(%q)", tt.in)
		assert.Equal(t, tt.wantOK, ok, "ParseLevel(%q) ok", tt.in)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureLogs(t, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", "event_id", "abc")
	Error("shown error", errors.New("boom"), "count", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown warn event_id=abc")
	assert.Contains(t, out, "[ERROR] shown error err=boom count=2")
}

func TestFormatKVs(t *testing.T) {
	got := formatKVs("title", "team sync", 42, "skipped", "odd")
	assert.Equal(t, ` title="team sync"`, got)
	assert.True(t, strings.HasPrefix(formatKVs("a", 1), " a=1"))
}
