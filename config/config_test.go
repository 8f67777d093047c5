package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", "")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.ConfirmationTTL)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "inline", cfg.MQ.Backend)
	assert.Equal(t, "none", cfg.Storage.Backend)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("JWT_CONFIRMATION_TTL", "not-a-duration")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("EXPOSE_CONFIRMATION_TOKEN", "yes")
	t.Setenv("MQ_BACKEND", "RabbitMQ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.ConfirmationTTL)
	assert.True(t, cfg.Database.UseSSL)
	assert.True(t, cfg.Auth.ExposeConfirmationToken)
	assert.Equal(t, "rabbitmq", cfg.MQ.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
}
