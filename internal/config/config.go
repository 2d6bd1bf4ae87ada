package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all process configuration, loaded from the environment.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSOrigins     string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB  string `env:"MONGO_DB" envDefault:"codepair"`

	// RedisURI is optional; without it switch serialization is process-local.
	RedisURI      string        `env:"REDIS_URI"`
	SwitchLockTTL time.Duration `env:"SWITCH_LOCK_TTL" envDefault:"30s"`

	Auth   AuthConfig
	Stream StreamConfig
	Exec   ExecConfig
}

// AuthConfig describes how identity-provider tokens are verified.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-in-production"`
	Issuer    string `env:"JWT_ISSUER"`
}

// StreamConfig holds the communications provider credentials. The provider
// is disabled when either credential is empty.
type StreamConfig struct {
	APIKey     string        `env:"STREAM_API_KEY"`
	APISecret  string        `env:"STREAM_API_SECRET"`
	VideoURL   string        `env:"STREAM_VIDEO_URL" envDefault:"https://video.stream-io-api.com/api/v2/video"`
	ChatURL    string        `env:"STREAM_CHAT_URL" envDefault:"https://chat.stream-io-api.com"`
	Timeout    time.Duration `env:"STREAM_TIMEOUT" envDefault:"15s"`
	MaxRetries int           `env:"STREAM_MAX_RETRIES" envDefault:"3"`
}

// Enabled reports whether provider calls should be made.
func (c StreamConfig) Enabled() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// ExecConfig configures the code-execution service.
type ExecConfig struct {
	PistonURL string        `env:"PISTON_URL" envDefault:"http://localhost:2000/api/v2"`
	Timeout   time.Duration `env:"EXEC_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.RedisURI = strings.TrimPrefix(cfg.RedisURI, "redis://")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.MongoURI == "" || c.MongoDB == "" {
		return errors.New("MONGO_URI and MONGO_DB are required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Exec.Timeout <= 0 {
		return errors.New("EXEC_TIMEOUT must be positive")
	}
	if c.SwitchLockTTL <= 0 {
		return errors.New("SWITCH_LOCK_TTL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Stream.MaxRetries < 1 {
		return errors.New("STREAM_MAX_RETRIES must be at least 1")
	}
	return nil
}
