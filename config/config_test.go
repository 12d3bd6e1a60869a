package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	dir := filepath.Dir(exe)

	assert.Equal(t, filepath.Join(dir, "logs"), cfg.LogDir)
	assert.Equal(t, filepath.Join(dir, "manifest.json"), cfg.ManifestPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.LogMaxFiles)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ardeck-plugin.yaml"), []byte(
		"log_level: debug\nlog_max_files: 3\nconnect_timeout: 2s\nlog_dir: /tmp/plugin-logs\n",
	), 0o644))

	t.Setenv("ARDECK_LOG_LEVEL", "warn")
	t.Setenv("ARDECK_METRICS_ADDR", "127.0.0.1:9464")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel, "env overrides file")
	assert.Equal(t, 3, cfg.LogMaxFiles)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "/tmp/plugin-logs", cfg.LogDir)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("ARDECK_LOG_MAX_FILES", "0")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_BadLevel(t *testing.T) {
	t.Setenv("ARDECK_LOG_LEVEL", "chatty")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ardeck-plugin.yaml"), []byte("log_level: [\n"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}
