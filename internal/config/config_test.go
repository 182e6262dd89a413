package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestServerConfig_Validate(t *testing.T) {
	valid := ServerConfig{
		Address:      ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    1024 * 1024,
	}

	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr string
	}{
		{name: "valid config", mutate: func(c *ServerConfig) {}},
		{name: "empty address", mutate: func(c *ServerConfig) { c.Address = "" }, wantErr: "server address cannot be empty"},
		{name: "zero read timeout", mutate: func(c *ServerConfig) { c.ReadTimeout = 0 }, wantErr: "read_timeout must be positive"},
		{name: "negative write timeout", mutate: func(c *ServerConfig) { c.WriteTimeout = -time.Second }, wantErr: "write_timeout must be positive"},
		{name: "zero idle timeout", mutate: func(c *ServerConfig) { c.IdleTimeout = 0 }, wantErr: "idle_timeout must be positive"},
		{name: "zero body limit", mutate: func(c *ServerConfig) { c.BodyLimit = 0 }, wantErr: "body_limit must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig(t *testing.T) {
	t.Run("connection string from fields", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host: "db", Port: 5432, User: "u", Password: "p", Database: "markwell", SSLMode: "disable",
		}
		assert.Equal(t, "postgres://u:p@db:5432/markwell?sslmode=disable", cfg.ConnectionString())
	})

	t.Run("url takes precedence", func(t *testing.T) {
		cfg := DatabaseConfig{URL: "postgres://x@y/z", Host: "ignored"}
		assert.Equal(t, "postgres://x@y/z", cfg.ConnectionString())
	})

	t.Run("url skips field validation", func(t *testing.T) {
		cfg := DatabaseConfig{URL: "postgres://x@y/z"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "db", Port: 70000, Database: "markwell"}
		assert.ErrorContains(t, cfg.Validate(), "port must be between")
	})

	t.Run("max below min connections", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "db", Port: 5432, Database: "markwell", MaxConnections: 1, MinConnections: 2}
		assert.ErrorContains(t, cfg.Validate(), "max_connections")
	})
}

func TestAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AuthConfig
		wantErr string
	}{
		{name: "jwt with secret", config: AuthConfig{Provider: "jwt", JWTSecret: testSecret}},
		{name: "jwt without secret", config: AuthConfig{Provider: "jwt"}, wantErr: "jwt_secret is required"},
		{name: "jwt with short secret", config: AuthConfig{Provider: "jwt", JWTSecret: "short"}, wantErr: "at least 32"},
		{name: "oidc complete", config: AuthConfig{Provider: "oidc", OIDCIssuerURL: "https://id.example.com", OIDCClientID: "markwell"}},
		{name: "oidc without issuer", config: AuthConfig{Provider: "oidc", OIDCClientID: "markwell"}, wantErr: "oidc_issuer_url"},
		{name: "oidc without client", config: AuthConfig{Provider: "oidc", OIDCIssuerURL: "https://id.example.com"}, wantErr: "oidc_client_id"},
		{name: "unknown provider", config: AuthConfig{Provider: "saml"}, wantErr: "invalid auth provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEmailConfig(t *testing.T) {
	t.Run("invalid provider", func(t *testing.T) {
		cfg := EmailConfig{FromAddress: "a@b.c", Provider: "pigeon"}
		assert.ErrorContains(t, cfg.Validate(), "invalid email provider")
	})

	t.Run("missing from address", func(t *testing.T) {
		cfg := EmailConfig{Provider: "smtp"}
		assert.ErrorContains(t, cfg.Validate(), "from_address")
	})

	t.Run("missing credentials still validates", func(t *testing.T) {
		cfg := EmailConfig{FromAddress: "a@b.c", Provider: "sendgrid"}
		assert.NoError(t, cfg.Validate())
		assert.False(t, cfg.IsConfigured())
	})

	t.Run("is configured per provider", func(t *testing.T) {
		assert.True(t, (&EmailConfig{Provider: "smtp", SMTPHost: "mail", SMTPPort: 25}).IsConfigured())
		assert.False(t, (&EmailConfig{Provider: "smtp", SMTPPort: 25}).IsConfigured())
		assert.True(t, (&EmailConfig{Provider: "sendgrid", SendGridAPIKey: "k"}).IsConfigured())
		assert.False(t, (&EmailConfig{Provider: "mailgun", MailgunAPIKey: "k"}).IsConfigured())
		assert.True(t, (&EmailConfig{Provider: "mailgun", MailgunAPIKey: "k", MailgunDomain: "d"}).IsConfigured())
		assert.True(t, (&EmailConfig{Provider: "ses", SESRegion: "eu-west-1"}).IsConfigured())
		assert.False(t, (&EmailConfig{Provider: "carrier"}).IsConfigured())
	})
}

func TestRateLimitConfig_Validate(t *testing.T) {
	assert.NoError(t, (&RateLimitConfig{Backend: "postgres"}).Validate())
	assert.NoError(t, (&RateLimitConfig{Backend: "memory"}).Validate())
	assert.NoError(t, (&RateLimitConfig{Backend: "redis", RedisURL: "redis://localhost:6379"}).Validate())
	assert.ErrorContains(t, (&RateLimitConfig{Backend: "redis"}).Validate(), "redis_url")
	assert.ErrorContains(t, (&RateLimitConfig{Backend: "etcd"}).Validate(), "unknown rate limit backend")
	assert.ErrorContains(t, (&RateLimitConfig{Backend: "postgres", DefaultLimit: -1}).Validate(), "default_limit")

	t.Run("windows below store resolution", func(t *testing.T) {
		assert.ErrorContains(t, (&RateLimitConfig{Backend: "postgres", DefaultWindow: 500 * time.Microsecond}).Validate(), "default_window must be at least 1ms")
		assert.ErrorContains(t, (&RateLimitConfig{Backend: "postgres", API: RateLimitRule{Limit: 5, Window: time.Microsecond}}).Validate(), "api.window")
		assert.ErrorContains(t, (&RateLimitConfig{Backend: "postgres", Share: RateLimitRule{Limit: -1}}).Validate(), "share.limit")
		assert.NoError(t, (&RateLimitConfig{Backend: "postgres", DefaultWindow: time.Millisecond, Debug: RateLimitRule{Limit: 1, Window: time.Second}}).Validate())
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markwell.yaml")
	content := `
server:
  address: ":9090"
auth:
  provider: jwt
  jwt_secret: "` + testSecret + `"
ratelimit:
  backend: memory
  default_limit: 3
  default_window: 2s
email:
  enabled: true
  provider: smtp
  smtp_host: mailhog
  smtp_port: 1025
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, int64(3), cfg.RateLimit.DefaultLimit)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.DefaultWindow)
	assert.True(t, cfg.Email.IsConfigured())

	// Defaults fill the rest
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(120), cfg.RateLimit.API.Limit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Share.Window)
	assert.Equal(t, "markwell_session", cfg.Auth.SessionCookie)
	assert.Equal(t, "@every 15m", cfg.Jobs.BackfillSchedule)
	assert.True(t, cfg.Jobs.LeaderElection)
}

func TestLoadFile_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markwell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  provider: jwt\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret is required")
}

func TestLoadFile_MissingExplicitFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
