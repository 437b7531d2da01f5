package config_test

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, v := range []string{"PORT", "ENV", "REFRESH_MARGIN", "PROVIDER_TIMEOUT", "HEALTH_CHECK_CONCURRENCY", "REDIS_URL", "REDIS_ADDR", "MICROSOFT_TENANT"} {
		t.Setenv(v, "")
	}
	c := config.New()

	assert.Equal(t, ":8080", c.GetPort())
	assert.Equal(t, "DEV", c.GetEnv())
	assert.Equal(t, 30*time.Minute, c.GetRefreshMargin())
	assert.Equal(t, 20*time.Second, c.GetProviderTimeout())
	assert.Equal(t, 4, c.GetHealthCheckConcurrency())
	assert.Empty(t, c.GetRedisURL())
	assert.Equal(t, "common", c.GetMicrosoftTenant())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REFRESH_MARGIN", "45m")
	t.Setenv("PROVIDER_TIMEOUT", "not-a-duration")
	t.Setenv("HEALTH_CHECK_CONCURRENCY", "-3")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	c := config.New()

	assert.Equal(t, ":9090", c.GetPort())
	assert.Equal(t, 45*time.Minute, c.GetRefreshMargin())
	assert.Equal(t, 20*time.Second, c.GetProviderTimeout(), "malformed values fall back")
	assert.Equal(t, 4, c.GetHealthCheckConcurrency())
	assert.Equal(t, "redis://localhost:6379", c.GetRedisURL())
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	origins := config.New().GetAllowedOrigins()
	assert.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	assert.False(t, origins.IsAllowedOrigin("https://c.example.com"))
}

func TestGetEncryptionKey(t *testing.T) {
	raw := []byte(strings.Repeat("k", 32))

	t.Run("Hex", func(t *testing.T) {
		t.Setenv("CREDENTIALS_ENCRYPTION_KEY", hex.EncodeToString(raw))
		key, err := config.New().GetEncryptionKey()
		require.NoError(t, err)
		assert.Equal(t, raw, key)
	})

	t.Run("Base64", func(t *testing.T) {
		t.Setenv("CREDENTIALS_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(raw))
		key, err := config.New().GetEncryptionKey()
		require.NoError(t, err)
		assert.Equal(t, raw, key)
	})

	t.Run("Wrong length", func(t *testing.T) {
		t.Setenv("CREDENTIALS_ENCRYPTION_KEY", hex.EncodeToString([]byte("short")))
		_, err := config.New().GetEncryptionKey()
		require.Error(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "")
		_, err := config.New().GetEncryptionKey()
		require.Error(t, err)
	})
}
