package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AUTH_ADMIN_EMAILS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.Store.Backend)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 60*time.Minute, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, 15*time.Second, cfg.Stream.KeepAlive())
	assert.Empty(t, cfg.Auth.AdminEmails)
}

func TestLoadParsesAdminEmails(t *testing.T) {
	t.Setenv("AUTH_ADMIN_EMAILS", " Bob@Example.com, ,ops@example.com ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@example.com", "ops@example.com"}, cfg.Auth.AdminEmails)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "firestore")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresPostgresDSN(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), AppConfig{}.RequestTimeout())
	assert.Equal(t, 5*time.Second, AppConfig{RequestTimeoutSeconds: 5}.RequestTimeout())
	assert.Equal(t, "127.0.0.1:9000", AppConfig{Host: "127.0.0.1", Port: "9000"}.Addr())
}
