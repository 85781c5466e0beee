package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.toml
var exampleConf []byte

// Storage backend names accepted by [StorageConfig.Type].
const (
	BackendKvrocks = "kvrocks"
	BackendRedis   = "redis"
	BackendSQLite  = "sqlite"
)

// DefaultOwnerName is the owner account name used when USERNAME is unset.
const DefaultOwnerName = "admin"

// Config represents the application configuration loaded from a TOML or YAML file and the environment.
type Config struct {
	Storage StorageConfig  `toml:"storage" yaml:"storage"`
	Kvrocks BackendConfig  `toml:"kvrocks" yaml:"kvrocks"`
	Redis   BackendConfig  `toml:"redis" yaml:"redis"`
	SQLite  DatabaseConfig `toml:"sqlite" yaml:"sqlite"`
	Server  ServerConfig   `toml:"server" yaml:"server"`
	Auth    AuthConfig     `toml:"auth" yaml:"auth"`
	Retry   RetryConfig    `toml:"retry" yaml:"retry"`
	Log     LogConfig      `toml:"log" yaml:"log"`
}

// StorageConfig selects the active backend.
type StorageConfig struct {
	Type string `toml:"type" yaml:"type"` // kvrocks, redis or sqlite
}

// BackendConfig contains the connection endpoint and access token of a key-value backend.
type BackendConfig struct {
	URL   string `toml:"url" yaml:"url"`
	Token string `toml:"token" yaml:"token"`
}

// DatabaseConfig contains SQLite connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" yaml:"path"`
	MaxOpenConns int    `toml:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns" yaml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host       string  `toml:"host" yaml:"host"`
	Port       int     `toml:"port" yaml:"port"`
	LoginRate  float64 `toml:"login_rate" yaml:"login_rate"`   // Login attempts per second per client
	LoginBurst int     `toml:"login_burst" yaml:"login_burst"` // Burst allowance for login attempts
}

// AuthConfig contains the owner identity and the auth cookie signing settings.
type AuthConfig struct {
	OwnerName     string `toml:"owner_name" yaml:"owner_name"`
	OwnerPassword string `toml:"owner_password" yaml:"owner_password"`
	Secret        string `toml:"secret" yaml:"secret"`
	TokenTTLHours int    `toml:"token_ttl_hours" yaml:"token_ttl_hours"`
}

// RetryConfig controls the backend retry loop.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts" yaml:"max_attempts"`
	BaseDelayMS int `toml:"base_delay_ms" yaml:"base_delay_ms"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TokenTTL returns the auth cookie lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// BaseDelay returns the retry backoff step.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// LoadConfig reads and parses a configuration file on top of [DefaultConfig].
//
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads variables from the given .env files (default ".env") into the process environment.
//
// Missing files are ignored; variables already set in the environment are not overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with environment variables.
//
// Recognized: STORAGE_TYPE, KVROCKS_URL, KVROCKS_TOKEN, REDIS_URL, REDIS_TOKEN, SQLITE_PATH,
// USERNAME, PASSWORD, AUTH_SECRET, PORT, LOG_LEVEL.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Storage.Type, "STORAGE_TYPE")
	set(&c.Kvrocks.URL, "KVROCKS_URL")
	set(&c.Kvrocks.Token, "KVROCKS_TOKEN")
	set(&c.Redis.URL, "REDIS_URL")
	set(&c.Redis.Token, "REDIS_TOKEN")
	set(&c.SQLite.Path, "SQLITE_PATH")
	set(&c.Auth.OwnerName, "USERNAME")
	set(&c.Auth.OwnerPassword, "PASSWORD")
	set(&c.Auth.Secret, "AUTH_SECRET")
	set(&c.Log.Level, "LOG_LEVEL")

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}

	if c.Auth.OwnerName == "" {
		c.Auth.OwnerName = DefaultOwnerName
	}

	return nil
}

// Validate checks the fields every command relies on.
// Backend credentials are checked when the backend client is constructed.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case BackendKvrocks, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Type)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Retry.BaseDelayMS < 0 {
		return fmt.Errorf("%w: retry.base_delay_ms cannot be negative", ErrInvalidConfig)
	}
	return nil
}
