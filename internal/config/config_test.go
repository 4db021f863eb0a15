package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearPlatformEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	clearPlatformEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, DriverSQLite, cfg.DB.Driver)
	require.Equal(t, "page-analyzer.db", cfg.DB.DSN)
	require.True(t, cfg.DB.MigrateOnStart)
	require.Equal(t, 10*time.Second, cfg.FetchTimeout())
	require.Equal(t, 5*time.Second, cfg.ConnectTimeout())
	require.Equal(t, 10, cfg.Fetch.MaxRedirects)
	require.Equal(t, "url-checks", cfg.PubSub.TopicName)
	require.False(t, cfg.PubSubEnabled())
	require.Equal(t, "page-analyzer", cfg.Telemetry.ServiceName)
}

func TestLoadWithFileOverrides(t *testing.T) {
	clearPlatformEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 40
  cors_allowed_origins: ["https://app.example.com"]
auth:
  enabled: true
  api_key: secret
fetch:
  connect_timeout_seconds: 3
  timeout_seconds: 20
  max_redirects: 2
  user_agent: real-agent
  insecure_skip_verify: true
ratelimit:
  per_host_rps: 2.5
  burst: 3
db:
  driver: memory
  max_conn_lifetime_seconds: 60
pubsub:
  project_id: my-project
  topic_name: checks
logging:
  development: false
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSAllowedOrigins)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 20*time.Second, cfg.FetchTimeout())
	require.Equal(t, 3*time.Second, cfg.ConnectTimeout())
	require.Equal(t, 40*time.Second, cfg.RequestTimeout())
	require.Equal(t, 2, cfg.Fetch.MaxRedirects)
	require.True(t, cfg.Fetch.InsecureSkipVerify)
	require.InDelta(t, 2.5, cfg.RateLimit.PerHostRPS, 0.001)
	require.Equal(t, 3, cfg.RateLimit.Burst)
	require.Equal(t, DriverMemory, cfg.DB.Driver)
	require.Equal(t, time.Minute, cfg.MaxConnLifetime())
	require.True(t, cfg.PubSubEnabled())
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("ANALYZER_SERVER_PORT", "7070")
	t.Setenv("ANALYZER_FETCH_USER_AGENT", "env-agent")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "env-agent", cfg.Fetch.UserAgent)
}

func TestLoadPlatformEnv(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/analyzer")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.Server.Port)
	require.Equal(t, DriverPostgres, cfg.DB.Driver)
	require.Equal(t, "postgres://user:pass@db:5432/analyzer", cfg.DB.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	clearPlatformEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080, RequestTimeoutSeconds: 30},
		Fetch:  FetchConfig{ConnectTimeoutSeconds: 5, TimeoutSeconds: 10, MaxRedirects: 10},
		DB:     DBConfig{Driver: DriverSQLite, DSN: "a.db"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid timeout", mutate: func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, want: "fetch.timeout_seconds"},
		{name: "invalid connect timeout", mutate: func(c *Config) { c.Fetch.ConnectTimeoutSeconds = 0 }, want: "fetch.connect_timeout_seconds"},
		{name: "connect exceeds overall", mutate: func(c *Config) { c.Fetch.ConnectTimeoutSeconds = 11 }, want: "must not exceed"},
		{name: "request shorter than fetch", mutate: func(c *Config) { c.Server.RequestTimeoutSeconds = 10 }, want: "server.request_timeout_seconds"},
		{name: "negative redirects", mutate: func(c *Config) { c.Fetch.MaxRedirects = -1 }, want: "fetch.max_redirects"},
		{name: "unknown driver", mutate: func(c *Config) { c.DB.Driver = "mysql" }, want: "db.driver"},
		{name: "missing dsn", mutate: func(c *Config) { c.DB.DSN = "" }, want: "db.dsn"},
		{name: "auth without key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
