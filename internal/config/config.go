// Package config loads runtime settings from defaults, an optional JSON file
// and ACTIVITYHUB_* environment variables, in increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Database  DatabaseConfig  `json:"database"`
	WebSocket WebSocketConfig `json:"websocket"`
	Auth      AuthConfig      `json:"auth"`
	LogLevel  string          `json:"log_level"`
}

type HTTPConfig struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type WebSocketConfig struct {
	PingInterval Duration `json:"ping_interval"`
	ReadTimeout  Duration `json:"read_timeout"`
	RateLimit    int      `json:"rate_limit"`
}

type AuthConfig struct {
	Secret   string   `json:"secret"`
	TokenTTL Duration `json:"token_ttl"`
}

// Duration wraps time.Duration so JSON config files can use strings like
// "30s" instead of nanosecond integers.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "./activityhub.db",
		},
		WebSocket: WebSocketConfig{
			PingInterval: Duration(30 * time.Second),
			ReadTimeout:  Duration(60 * time.Second),
			RateLimit:    60,
		},
		Auth: AuthConfig{
			TokenTTL: Duration(24 * time.Hour),
		},
		LogLevel: "info",
	}
}

// Load builds the effective configuration. An empty path skips the file
// layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.mergeEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	envString("ACTIVITYHUB_HTTP_HOST", &c.HTTP.Host)
	envInt("ACTIVITYHUB_HTTP_PORT", &c.HTTP.Port)
	envDuration("ACTIVITYHUB_HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	envDuration("ACTIVITYHUB_HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)
	envString("ACTIVITYHUB_DATABASE_PATH", &c.Database.Path)
	envDuration("ACTIVITYHUB_WEBSOCKET_PING_INTERVAL", &c.WebSocket.PingInterval)
	envDuration("ACTIVITYHUB_WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	envInt("ACTIVITYHUB_WEBSOCKET_RATE_LIMIT", &c.WebSocket.RateLimit)
	envString("ACTIVITYHUB_AUTH_SECRET", &c.Auth.Secret)
	envDuration("ACTIVITYHUB_AUTH_TOKEN_TTL", &c.Auth.TokenTTL)
	envString("ACTIVITYHUB_LOG_LEVEL", &c.LogLevel)
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("websocket intervals must be positive")
	}
	if c.WebSocket.ReadTimeout.Std() <= c.WebSocket.PingInterval.Std() {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.RateLimit <= 0 {
		return fmt.Errorf("websocket rate limit must be positive")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
