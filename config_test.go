package main

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
	t.Setenv("DATABASE_URL", "")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	require.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
  mode: debug
database:
  url: postgresql://app:secret@db:5432/settle
redis:
  lock_ttl: 10s
log:
  level: warn
`), 0o600))

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SETTLE_REDIS_HISTORY_TTL", "2m")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.Mode)
	require.Equal(t, "postgres://app:secret@db:5432/settle?sslmode=disable", cfg.Database.URL)
	require.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	require.Equal(t, 2*time.Minute, cfg.Redis.HistoryTTL)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestNormalizeDatabaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"postgres://u@h/db", "postgres://u@h/db?sslmode=disable"},
		{"postgresql://u@h/db?connect_timeout=5", "postgres://u@h/db?connect_timeout=5&sslmode=disable"},
		{"postgres://u@h/db?sslmode=require", "postgres://u@h/db?sslmode=require"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, normalizeDatabaseURL(tt.in), tt.in)
	}
}
