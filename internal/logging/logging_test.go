package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warning ", slog.LevelWarn, false},
		{"err", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNew_JSONLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lg, c, err := New(Options{Level: "warn", JSON: true, Writer: &buf})
	require.NoError(t, err)
	defer c.Close()

	lg.Info("hidden")
	lg.Warn("shown", "k", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, float64(1), rec["k"])
}

func TestNew_TeesToFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "photoframe.log")
	lg, c, err := New(Options{File: file, Writer: &buf})
	require.NoError(t, err)

	lg.Info("hello")
	require.NoError(t, c.Close())

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(Options{Level: "nope"})
	assert.Error(t, err)
}
