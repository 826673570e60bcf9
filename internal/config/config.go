// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	CORS    CORSConfig    `yaml:"cors"`
	Auth    AuthConfig    `yaml:"auth"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	ReadTimeoutSecs    int     `yaml:"read_timeout_secs"`
	WriteTimeoutSecs   int     `yaml:"write_timeout_secs"`
	IdleTimeoutSecs    int     `yaml:"idle_timeout_secs"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs"`
	SubmitRPS          float64 `yaml:"submit_rps"`   // per-client answer submissions per second
	SubmitBurst        int     `yaml:"submit_burst"` // per-client burst capacity
}

// CORSConfig lists the origin hostnames allowed to use credentials.
type CORSConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// AuthConfig points at the Cerberus introspection service.
type AuthConfig struct {
	ServiceURL   string `yaml:"service_url"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs"`
	SecretKey    string `yaml:"secret_key"`
}

// EngineConfig holds match engine defaults.
type EngineConfig struct {
	CooldownSecs float64 `yaml:"cooldown_secs"`
}

// StorageConfig selects the persistence and cache backends. Empty
// values fall back to in-memory implementations.
type StorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               5000,
			ReadTimeoutSecs:    10,
			WriteTimeoutSecs:   10,
			IdleTimeoutSecs:    60,
			RequestTimeoutSecs: 10,
			SubmitRPS:          5,
			SubmitBurst:        20,
		},
		CORS: CORSConfig{
			AllowedHosts: []string{
				"clash-of-prodigies.github.io",
				"room.clashofprodigies.org",
				"localhost",
			},
		},
		Auth: AuthConfig{
			ServiceURL:   "http://localhost:5001/introspect",
			CacheTTLSecs: 30,
			SecretKey:    "supersecrettoken",
		},
		Engine: EngineConfig{CooldownSecs: 10},
	}
}

// Load reads the config at path (Default when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AUTH_SERVICE_URL"); v != "" {
		c.Auth.ServiceURL = v
	}
	if v := os.Getenv("RAGNAROK_SECRET_KEY"); v != "" {
		c.Auth.SecretKey = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Auth.ServiceURL == "" {
		return fmt.Errorf("auth service_url is required")
	}
	if c.Engine.CooldownSecs < 0 {
		return fmt.Errorf("engine cooldown_secs cannot be negative")
	}
	if c.Server.SubmitRPS <= 0 || c.Server.SubmitBurst <= 0 {
		return fmt.Errorf("submit rate limit must be positive")
	}
	return nil
}
