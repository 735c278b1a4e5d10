package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	defaultHost                = "0.0.0.0"
	defaultPort                = 3001
	defaultDSN                 = "wartel.db"
	defaultTokenExpiry         = 12 * time.Hour
	defaultMaxSignalingBytes   = 64 * 1024
	defaultSignalingPerSecond  = 50
	defaultSignalingQueueDepth = 32
)

// Config is the root service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Signaling SignalingConfig `yaml:"signaling"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig carries the store DSN (SQLite path or PostgreSQL URL).
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig carries the shared JWT secret used to verify operator and staff
// tokens. Identity itself is managed by an external system; tokens only need
// to carry an opaque actor id and a staff flag.
type AuthConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	TokenExpiry Duration `yaml:"token_expiry"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "12h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if errDecode := node.Decode(&raw); errDecode != nil {
		return errDecode
	}
	parsed, errParse := time.ParseDuration(strings.TrimSpace(raw))
	if errParse != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, errParse)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SignalingConfig bounds the websocket relay per connection.
type SignalingConfig struct {
	MaxMessageBytes   int64 `yaml:"max_message_bytes"`
	MessagesPerSecond int   `yaml:"messages_per_second"`
	SendQueueDepth    int   `yaml:"send_queue_depth"`
}

// RedisConfig enables cross-instance change-feed fan-out when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether the redis mirror should be started.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// LogConfig controls log level and optional rotating file output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ResolveConfigPath returns the effective config file path, falling back to
// config.yaml next to the working directory.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed != "" {
		return filepath.Clean(trimmed)
	}
	return "config.yaml"
}

// Load reads the YAML config file and applies defaults. A missing file is not
// an error; the defaults describe a standalone SQLite deployment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, errRead := os.ReadFile(ResolveConfigPath(path))
	switch {
	case errRead == nil:
		if errDecode := yaml.Unmarshal(data, cfg); errDecode != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errDecode)
		}
	case os.IsNotExist(errRead):
		// Defaults only.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Host) == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port <= 0 {
		c.Server.Port = defaultPort
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		c.Database.DSN = defaultDSN
	}
	if c.Auth.TokenExpiry <= 0 {
		c.Auth.TokenExpiry = Duration(defaultTokenExpiry)
	}
	if c.Signaling.MaxMessageBytes <= 0 {
		c.Signaling.MaxMessageBytes = defaultMaxSignalingBytes
	}
	if c.Signaling.MessagesPerSecond <= 0 {
		c.Signaling.MessagesPerSecond = defaultSignalingPerSecond
	}
	if c.Signaling.SendQueueDepth <= 0 {
		c.Signaling.SendQueueDepth = defaultSignalingQueueDepth
	}
	if strings.TrimSpace(c.Redis.Channel) == "" {
		c.Redis.Channel = "wartel.events"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
}
