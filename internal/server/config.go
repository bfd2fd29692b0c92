// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/linechat/internal/chat"
)

const (
	defaultPort             = ":1608"
	defaultHTTPAddr         = ":8080"
	defaultMinNameLength    = 2
	defaultMaxNameLength    = 20
	defaultMaxMessageLength = 500
	defaultSendBuffer       = 256
	defaultShutdownTimeout  = 10 * time.Second
)

// Config holds the server configuration settings including security controls.
type Config struct {
	// Port is the TCP listen address for line clients.
	Port string

	// HTTPAddr serves the WebSocket gateway, health, stats and metrics.
	// Empty disables HTTP.
	HTTPAddr       string
	AllowedOrigins []string

	RateLimit        chat.RateLimitConfig
	MinNameLength    int
	MaxNameLength    int
	MaxMessageLength int

	SendBuffer      int
	EchoSelfLabel   bool
	AutoHelp        bool
	ShutdownTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Port:     defaultPort,
		HTTPAddr: defaultHTTPAddr,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		RateLimit: chat.RateLimitConfig{
			Window:      time.Second,
			MaxMessages: 5,
		},
		MinNameLength:    defaultMinNameLength,
		MaxNameLength:    defaultMaxNameLength,
		MaxMessageLength: defaultMaxMessageLength,
		SendBuffer:       defaultSendBuffer,
		AutoHelp:         true,
		ShutdownTimeout:  defaultShutdownTimeout,
	}
}

// Sanitize returns a copy of cfg with unusable values replaced by defaults.
func (cfg Config) Sanitize() Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Second
	}

	if cfg.RateLimit.MaxMessages <= 0 {
		cfg.RateLimit.MaxMessages = 5
	}

	if cfg.MinNameLength <= 0 || cfg.MaxNameLength <= 0 || cfg.MinNameLength > cfg.MaxNameLength {
		cfg.MinNameLength = defaultMinNameLength
		cfg.MaxNameLength = defaultMaxNameLength
	}

	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessageLength
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// HubOptions maps the configuration onto the chat hub's options.
func (cfg Config) HubOptions() chat.Options {
	return chat.Options{
		Names: chat.NameRules{
			MinLength: cfg.MinNameLength,
			MaxLength: cfg.MaxNameLength,
		},
		RateLimit:        cfg.RateLimit,
		MaxMessageLength: cfg.MaxMessageLength,
		EchoSelfLabel:    cfg.EchoSelfLabel,
		AutoHelp:         cfg.AutoHelp,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = normalizeAddr(port)
	}

	// An explicitly empty HTTP_ADDR disables the HTTP listener.
	if addr, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if window := os.Getenv("RATE_LIMIT_WINDOW_MS"); window != "" {
		cfg.RateLimit.Window = parseMillis(window, cfg.RateLimit.Window)
	}

	if limit := os.Getenv("RATE_LIMIT_MAX_MESSAGES"); limit != "" {
		cfg.RateLimit.MaxMessages = parseIntValue(limit, cfg.RateLimit.MaxMessages)
	}

	if n := os.Getenv("MIN_NAME_LENGTH"); n != "" {
		cfg.MinNameLength = parseIntValue(n, cfg.MinNameLength)
	}

	if n := os.Getenv("MAX_NAME_LENGTH"); n != "" {
		cfg.MaxNameLength = parseIntValue(n, cfg.MaxNameLength)
	}

	if n := os.Getenv("MAX_MESSAGE_LENGTH"); n != "" {
		cfg.MaxMessageLength = parseIntValue(n, cfg.MaxMessageLength)
	}

	if n := os.Getenv("SEND_BUFFER"); n != "" {
		cfg.SendBuffer = parseIntValue(n, cfg.SendBuffer)
	}

	if v := os.Getenv("ECHO_SELF_LABEL"); v != "" {
		cfg.EchoSelfLabel = parseBoolValue(v, cfg.EchoSelfLabel)
	}

	if v := os.Getenv("AUTO_HELP"); v != "" {
		cfg.AutoHelp = parseBoolValue(v, cfg.AutoHelp)
	}

	return &cfg
}

// normalizeAddr turns a bare port number into a listen address.
func normalizeAddr(port string) string {
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseMillis(value string, defaultValue time.Duration) time.Duration {
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func parseBoolValue(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}
