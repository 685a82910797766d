package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"finality-project/config"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "info", cfg.Log.Level)
	require.True(t, cfg.Metrics.Enabled)
	require.True(t, cfg.LevelDB.ReplayOnStart)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: 9000
log:
  level: debug
leveldb:
  path: /tmp/headers
  replay_on_start: false
`), 0644)
	require.NoError(t, err)

	t.Setenv("FINALITY_METRICS_LISTEN", ":9999")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "/tmp/headers", cfg.LevelDB.Path)
	require.False(t, cfg.LevelDB.ReplayOnStart)
	require.Equal(t, ":9999", cfg.Metrics.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
