package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDefaults(t *testing.T) {
	var cfg Server
	require.NoError(t, ParseEnv(&cfg))

	assert.Equal(t, "5175", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.NoError(t, cfg.Validate())
}

func TestServerFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORE_POLL_INTERVAL", "2s")
	t.Setenv("JWT_SECRET", "s3cret")

	var cfg Server
	require.NoError(t, ParseEnv(&cfg))
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestServerValidate(t *testing.T) {
	cfg := Server{Port: "1", StoreDriver: "redis", TokenTTLHours: 1}
	assert.Error(t, cfg.Validate())

	cfg.StoreDriver = DriverMemory
	cfg.TokenTTLHours = 0
	assert.Error(t, cfg.Validate())
}

func TestClientFromEnv(t *testing.T) {
	t.Setenv("TRIPLE_SIX_FORFEIT", "true")
	t.Setenv("SNAKES_SERVER", "http://example.test")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.True(t, cfg.TripleSixForfeit)
	assert.Equal(t, "http://example.test", cfg.ServerURL)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestParseEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("STORE_POLL_INTERVAL", "soon")
	var cfg Server
	assert.Error(t, ParseEnv(&cfg))
}
