package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Server.SendBuffer)
	assert.Equal(t, 512, cfg.Server.MaxInboundBytes)
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost:3000")
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://127.0.0.1:5173")
	assert.Len(t, cfg.Server.AllowedOrigins, 6)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "redis", cfg.Router.Kind)
	assert.Equal(t, "chatstream:ws:", cfg.Router.Prefix)

	assert.Equal(t, "jobs.generate", cfg.NATS.Subject)
	assert.Equal(t, "generators", cfg.NATS.Queue)

	assert.Equal(t, 3, cfg.Limits.MaxConnectionsPerUser)
	assert.Equal(t, 2*time.Hour, cfg.Limits.AcquireTTL)
	assert.Equal(t, 5*time.Minute, cfg.Limits.ReleaseTTL)

	assert.Equal(t, 2*time.Minute, cfg.Jobs.GenerateTimeout)
	assert.Empty(t, cfg.Jobs.UpstreamURL)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9100")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ROUTER_KIND", "memory")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MAX_CONNECTIONS_PER_USER", "5")
	t.Setenv("CONNECTION_TTL_SECONDS", "60")
	t.Setenv("RELEASE_TTL_SECONDS", "30")
	t.Setenv("LLM_API_URL", "http://llm.internal/generate")
	t.Setenv("WEBHOOK_URL", "http://hooks.internal/done")

	cfg := FromEnv()

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "redis.example.com:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "memory", cfg.Router.Kind)
	assert.Equal(t, "test-secret", cfg.Auth.Secret)
	assert.Equal(t, 5, cfg.Limits.MaxConnectionsPerUser)
	assert.Equal(t, time.Minute, cfg.Limits.AcquireTTL)
	assert.Equal(t, 30*time.Second, cfg.Limits.ReleaseTTL)
	assert.Equal(t, "http://llm.internal/generate", cfg.Jobs.UpstreamURL)
	assert.Equal(t, "http://hooks.internal/done", cfg.Jobs.WebhookURL)
}

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, Default().Router.Prefix, cfg.Router.Prefix)
	assert.Equal(t, Default().Limits.MaxConnectionsPerUser, cfg.Limits.MaxConnectionsPerUser)
}

func TestFromEnvInvalidValues(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("MAX_CONNECTIONS_PER_USER", "many")
	t.Setenv("CONNECTION_TTL_SECONDS", "-10")

	cfg := FromEnv()
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 3, cfg.Limits.MaxConnectionsPerUser)
	assert.Equal(t, 2*time.Hour, cfg.Limits.AcquireTTL)
}

func TestSplitListTrimsAndDropsEmpty(t *testing.T) {
	out := splitList(" a ,, b,")
	assert.Equal(t, []string{"a", "b"}, out)
}
