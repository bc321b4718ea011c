package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.Server.BaseURL)
	assert.Equal(t, 15, cfg.Server.TimeoutSec)
	assert.True(t, cfg.Sync.AutoRefresh)
	assert.Equal(t, 30, cfg.Sync.RefreshIntervalSec)
	assert.Equal(t, 5, cfg.Toast.TimeoutSec)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.Equal(t, Filter{}, cfg.Sync.Filter())
}

func TestLoadConfigReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  base_url: https://school.example/api
sync:
  refresh_interval_sec: 10
  type: medical_event
  status: SENT
toast:
  timeout_sec: 8
metrics:
  listen: 127.0.0.1:9464
`), 0o644))
	t.Setenv("HEALTHNOTIFY_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://school.example/api", cfg.Server.BaseURL)
	assert.Equal(t, 10, cfg.Sync.RefreshIntervalSec)
	assert.Equal(t, Filter{Type: TypeMedicalEvent, Status: StatusSent}, cfg.Sync.Filter())
	assert.Equal(t, 8, cfg.Toast.TimeoutSec)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"interval": "sync:\n  refresh_interval_sec: 0\n",
		"status":   "sync:\n  status: DONE\n",
		"url":      "server:\n  base_url: not a url\n",
		"level":    "log:\n  level: loud\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.Server.BaseURL = "https://other.example/api"
	cfg.Toast.TimeoutSec = 12

	require.NoError(t, SaveConfig(path, cfg))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example/api", loaded.Server.BaseURL)
	assert.Equal(t, 12, loaded.Toast.TimeoutSec)
}
