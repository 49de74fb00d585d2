package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"chatty", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer

	h, err := NewHandler(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)
	slog.New(h).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	h, err = NewHandler(&buf, slog.LevelInfo, "text")
	require.NoError(t, err)
	slog.New(h).Debug("hidden")
	slog.New(h).Info("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "\x1b[", "no colour for non-terminals")

	_, err = NewHandler(&buf, slog.LevelInfo, "xml")
	assert.Error(t, err)
}

func TestQuietLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &QuietLogger{Out: &buf}

	l.PhaseStart("copy", 3)
	l.ItemProcessed("copy", "a.txt", ActionCopy)
	l.ItemProcessed("copy", "b.txt", ActionSkip)
	l.ItemProcessed("verify", "c.txt", ActionMismatch)
	l.PhaseComplete("copy", 3)

	assert.Equal(t, "copy: a.txt\nmismatch: c.txt\n", buf.String())
}

func TestVerboseLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &VerboseLogger{Log: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}

	l.PhaseStart("walk", 10)
	l.ItemProcessed("copy", "ok.txt", ActionCopy)
	l.ItemProcessed("copy", "bad.txt", ActionFail)

	out := buf.String()
	assert.NotContains(t, out, "ok.txt")
	assert.Contains(t, out, "bad.txt")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	s := Summary{Mode: "copy", Groups: 2, Pairs: 3, Copied: 3, Bytes: 2048, Duration: 1500 * time.Millisecond}

	PrintSummary(&buf, s, true)
	assert.Empty(t, buf.String(), "quiet clean run prints nothing")

	PrintSummary(&buf, s, false)
	out := buf.String()
	assert.Contains(t, out, "=== copy summary ===")
	assert.Contains(t, out, "Copied: 3 (2.0 kB)")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.False(t, strings.Contains(out, "Failures"))

	buf.Reset()
	s.Failures = 1
	PrintSummary(&buf, s, true)
	assert.Contains(t, buf.String(), "Failures: 1")
}
