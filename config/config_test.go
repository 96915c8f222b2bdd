package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	require.Equal(t, 30*time.Second, cfg.Server.Timeout)
	require.Equal(t, "http://localhost:8000", cfg.Upstream.APIURL)
	require.Equal(t, "sqlite", cfg.DB.Driver)
	require.False(t, cfg.Redis.Enabled)
	require.Equal(t, time.Minute, cfg.Notifications.PollInterval)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
upstream:
  api_url: https://claims.example.com
  ws_url: wss://claims.example.com
redis:
  enabled: true
  ttl: 10s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CLAIMS_SERVER_ADDRESS", "127.0.0.1:9999")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "https://claims.example.com", cfg.Upstream.APIURL)
	require.Equal(t, "wss://claims.example.com", cfg.Upstream.WSURL)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, 10*time.Second, cfg.Redis.TTL)
	require.Equal(t, "127.0.0.1:9999", cfg.Server.Address)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Upstream: UpstreamConfig{APIURL: "http://api"},
		DB:       DatabaseConfig{Driver: "sqlite"},
	}
	require.NoError(t, cfg.Validate())

	cfg.DB.Driver = "mysql"
	require.Error(t, cfg.Validate())

	cfg.DB.Driver = "postgres"
	cfg.Redis = RedisConfig{Enabled: true}
	require.Error(t, cfg.Validate())

	cfg.Upstream.APIURL = " "
	require.Error(t, cfg.Validate())
}
