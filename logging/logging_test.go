package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/maprank/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_FormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("pair not resolved", "query", "q")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"pair not resolved"`)
	assert.Contains(t, out, `"query":"q"`)

	buf.Reset()
	logger, _ = New(config.LogConfig{Level: "info", Format: "text"}, &buf)
	logger.Info("batch completed", "pairs", 2)
	assert.Contains(t, buf.String(), "msg=\"batch completed\" pairs=2")
}

func TestNew_TeesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maprank.log")
	var buf bytes.Buffer
	logger, closer := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1}, &buf)

	logger.Info("browser launched", "driver", "rod")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "browser launched")
	assert.Contains(t, buf.String(), "browser launched")
}
