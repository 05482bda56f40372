package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/allbin/serialecho/internal/config"
)

func defaultLogConfig() config.LogConfig {
	return config.LogConfig{Level: "info", Format: "console", MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(defaultLogConfig(), &buf)
	require.NoError(t, err)

	logger.Info("serial echo started", zap.String("device", "/dev/ttyUSB0"))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "serial echo started")
	assert.Contains(t, out, `"device": "/dev/ttyUSB0"`)
	assert.NotContains(t, out, "hidden")
}

func TestNewJSON(t *testing.T) {
	cfg := defaultLogConfig()
	cfg.Format = "json"
	cfg.Level = "debug"

	var buf bytes.Buffer
	logger, err := New(cfg, &buf)
	require.NoError(t, err)

	logger.Debug("byte echoed", zap.Int("value", 65))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "byte echoed", entry["msg"])
	assert.Equal(t, float64(65), entry["value"])
}

func TestNewFile(t *testing.T) {
	cfg := defaultLogConfig()
	cfg.File = filepath.Join(t.TempDir(), "serialecho.log")

	var buf bytes.Buffer
	logger, err := New(cfg, &buf)
	require.NoError(t, err)

	logger.Warn("shutting down")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"), "file log should be JSON: %s", data)
	assert.Contains(t, string(data), "shutting down")
	assert.Contains(t, buf.String(), "shutting down")
}

func TestNewInvalidLevel(t *testing.T) {
	cfg := defaultLogConfig()
	cfg.Level = "loud"

	_, err := New(cfg, &bytes.Buffer{})
	assert.Error(t, err)
}
