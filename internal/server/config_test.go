package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":1608", cfg.Port)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.MaxMessages)
	assert.Equal(t, 2, cfg.MinNameLength)
	assert.Equal(t, 20, cfg.MaxNameLength)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.True(t, cfg.AutoHelp)
	assert.False(t, cfg.EchoSelfLabel)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "250")
	t.Setenv("RATE_LIMIT_MAX_MESSAGES", "3")
	t.Setenv("MAX_NAME_LENGTH", "12")
	t.Setenv("MAX_MESSAGE_LENGTH", "140")
	t.Setenv("ECHO_SELF_LABEL", "true")
	t.Setenv("AUTO_HELP", "false")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, "", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.RateLimit.MaxMessages)
	assert.Equal(t, 12, cfg.MaxNameLength)
	assert.Equal(t, 140, cfg.MaxMessageLength)
	assert.True(t, cfg.EchoSelfLabel)
	assert.False(t, cfg.AutoHelp)
}

func TestNewConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW_MS", "soon")
	t.Setenv("RATE_LIMIT_MAX_MESSAGES", "-4")
	t.Setenv("AUTO_HELP", "maybe")
	t.Setenv("SERVER_PORT", "127.0.0.1:7000")

	cfg := NewConfigFromEnv()

	assert.Equal(t, "127.0.0.1:7000", cfg.Port)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.MaxMessages)
	assert.True(t, cfg.AutoHelp)
}

func TestConfigSanitize(t *testing.T) {
	cfg := Config{
		MinNameLength: 10,
		MaxNameLength: 3,
	}.Sanitize()

	assert.Equal(t, ":1608", cfg.Port)
	assert.Equal(t, 2, cfg.MinNameLength)
	assert.Equal(t, 20, cfg.MaxNameLength)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.MaxMessages)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "", cfg.HTTPAddr, "empty HTTP address stays disabled")
}

func TestConfigHubOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.EchoSelfLabel = true
	cfg.MaxMessageLength = 42

	opts := cfg.HubOptions()

	assert.Equal(t, 2, opts.Names.MinLength)
	assert.Equal(t, 20, opts.Names.MaxLength)
	assert.Equal(t, 42, opts.MaxMessageLength)
	assert.Equal(t, cfg.RateLimit, opts.RateLimit)
	assert.True(t, opts.EchoSelfLabel)
	assert.True(t, opts.AutoHelp)
}
