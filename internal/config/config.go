// Package config loads and validates page analyzer configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported db.driver values.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int      `mapstructure:"port"`
	ReadHeaderTimeoutSeconds int      `mapstructure:"read_header_timeout_seconds"`
	RequestTimeoutSeconds    int      `mapstructure:"request_timeout_seconds"`
	CORSAllowedOrigins       []string `mapstructure:"cors_allowed_origins"`
}

// AuthConfig guards the JSON API.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig governs the outbound page fetch.
type FetchConfig struct {
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
	MaxRedirects          int    `mapstructure:"max_redirects"`
	UserAgent             string `mapstructure:"user_agent"`
	InsecureSkipVerify    bool   `mapstructure:"insecure_skip_verify"`
	MaxBodyBytes          int    `mapstructure:"max_body_bytes"`
}

// RateLimitConfig throttles checks per target host. Zero disables it.
type RateLimitConfig struct {
	PerHostRPS float64 `mapstructure:"per_host_rps"`
	Burst      int     `mapstructure:"burst"`
}

// DBConfig selects and tunes the persistence backend.
type DBConfig struct {
	Driver                 string `mapstructure:"driver"`
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	MigrateOnStart         bool   `mapstructure:"migrate_on_start"`
}

// PubSubConfig holds metadata for check notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
}

// TelemetryConfig names the service in traces and metrics.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
}

// Load builds a Config from .env, disk and environment. Variables are read
// with the ANALYZER_ prefix; PORT and DATABASE_URL are honored as overrides
// for platforms that inject them.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	applyPlatformEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("fetch.connect_timeout_seconds", 5)
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.user_agent", "page-analyzer/0.1")
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("ratelimit.per_host_rps", 0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.dsn", "page-analyzer.db")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("db.migrate_on_start", true)
	v.SetDefault("pubsub.topic_name", "url-checks")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("telemetry.service_name", "page-analyzer")
	v.SetDefault("telemetry.version", "dev")
}

func applyPlatformEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			cfg.Server.Port = p
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DB.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			cfg.DB.Driver = DriverPostgres
		}
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.connect_timeout_seconds must be > 0")
	}
	if c.Fetch.ConnectTimeoutSeconds > c.Fetch.TimeoutSeconds {
		return fmt.Errorf("fetch.connect_timeout_seconds must not exceed fetch.timeout_seconds")
	}
	if c.Server.RequestTimeoutSeconds > 0 && c.Server.RequestTimeoutSeconds <= c.Fetch.TimeoutSeconds {
		return fmt.Errorf("server.request_timeout_seconds must exceed fetch.timeout_seconds")
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0")
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for driver %q", c.DB.Driver)
		}
	default:
		return fmt.Errorf("db.driver must be one of memory, sqlite, postgres")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout is the overall per-check fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ConnectTimeout bounds dialing and the TLS handshake.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Fetch.ConnectTimeoutSeconds) * time.Second
}

// RequestTimeout bounds a whole inbound HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ReadHeaderTimeout bounds reading inbound request headers.
func (c Config) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.Server.ReadHeaderTimeoutSeconds) * time.Second
}

// MaxConnLifetime is the pooled connection lifetime.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}

// PubSubEnabled reports whether notifications go to Cloud Pub/Sub.
func (c Config) PubSubEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}
