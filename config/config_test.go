package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.Chdir(t.TempDir()))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
	assert.Equal(t, 8090, cfg.ServerPort)
	assert.Equal(t, "procwatch.db", cfg.DBFile)
	assert.Equal(t, 2, cfg.PollIntervalSeconds)
	assert.Equal(t, 5, cfg.CommandTimeoutSeconds)
	assert.Equal(t, 7, cfg.HistoryMaxDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Setenv("PROCWATCH_SERVER_PORT", "9999")
	t.Setenv("PROCWATCH_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config.yaml",
		[]byte("server_port: 7070\npoll_interval_seconds: 10\n"), 0o644))
	require.NoError(t, os.Chdir(dir))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.ServerPort)
	assert.Equal(t, 10, cfg.PollIntervalSeconds)
	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
}
