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
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAGAFLOW_HTTP_ADDR", ":9090")
	t.Setenv("SAGAFLOW_LOG_LEVEL", "debug")
	t.Setenv("SAGAFLOW_REDIS_ADDR", "localhost:6379")
	t.Setenv("SAGAFLOW_LOCK_TTL", "3s")
	t.Setenv("SAGAFLOW_OTEL_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 3*time.Second, cfg.Redis.LockTTL)
	assert.True(t, cfg.OTel.Enabled)
	assert.Equal(t, "sagaflow:events", cfg.Redis.EventStream)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sagaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":7000"
templates: /etc/sagas
log:
  format: json
redis:
  addr: redis:6379
  lock_ttl: 5s
`), 0o644))
	t.Setenv("SAGAFLOW_HTTP_ADDR", ":7001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.HTTPAddr, "environment wins over the file")
	assert.Equal(t, "/etc/sagas", cfg.Templates)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level, "unset keys keep their defaults")
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Redis.LockTTL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	t.Setenv("SAGAFLOW_REDIS_DB", "not-a-number")
	_, err = Load("")
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.OTel.SampleRatio = 2
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.HTTPAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestLoad_SnapshotProtection(t *testing.T) {
	t.Setenv("SAGAFLOW_ENCRYPTION_KEY", "a2V5")
	t.Setenv("SAGAFLOW_REDACT", "email,(?i)card")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "a2V5", cfg.Snapshot.EncryptionKey)
	assert.Equal(t, []string{"email", "(?i)card"}, cfg.Snapshot.Redact)
}

func TestLoad_FallbackKeysNeedActiveKey(t *testing.T) {
	t.Setenv("SAGAFLOW_ENCRYPTION_FALLBACK_KEYS", "b2xk")
	_, err := Load("")
	assert.ErrorContains(t, err, "fallback keys")
}
