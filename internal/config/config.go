package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Email       EmailConfig     `mapstructure:"email"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Metadata    MetadataConfig  `mapstructure:"metadata"`
	Jobs        JobsConfig      `mapstructure:"jobs"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
	CORS        CORSConfig      `mapstructure:"cors"`
	BaseURL     string          `mapstructure:"base_url"`
	Environment string          `mapstructure:"environment"`
	LogFormat   string          `mapstructure:"log_format"` // json or console; console when empty and debug is on
	Debug       bool            `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address          string        `mapstructure:"address"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	BodyLimit        int           `mapstructure:"body_limit"`
	EnableDebugRoute bool          `mapstructure:"enable_debug_route"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"` // takes precedence over the discrete fields
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheck     time.Duration `mapstructure:"health_check_period"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// AuthConfig contains identity provider settings.
// Markwell never issues sessions itself; it only verifies tokens minted by the provider.
type AuthConfig struct {
	Provider      string        `mapstructure:"provider"` // jwt or oidc
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTAudience   string        `mapstructure:"jwt_audience"`
	JWTExpiry     time.Duration `mapstructure:"jwt_expiry"` // only used by the dev token command
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCClientID  string        `mapstructure:"oidc_client_id"`
	SessionCookie string        `mapstructure:"session_cookie"`
}

// EmailConfig contains email/SMTP settings
type EmailConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Provider       string `mapstructure:"provider"` // smtp, sendgrid, mailgun, ses
	FromAddress    string `mapstructure:"from_address"`
	FromName       string `mapstructure:"from_name"`
	ReplyToAddress string `mapstructure:"reply_to_address"`

	// SMTP Settings
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPTLS      bool   `mapstructure:"smtp_tls"`

	// SendGrid Settings
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`

	// Mailgun Settings
	MailgunAPIKey string `mapstructure:"mailgun_api_key"`
	MailgunDomain string `mapstructure:"mailgun_domain"`

	// AWS SES Settings
	SESAccessKey string `mapstructure:"ses_access_key"`
	SESSecretKey string `mapstructure:"ses_secret_key"`
	SESRegion    string `mapstructure:"ses_region"`
}

// RateLimitConfig contains rate limiter backend and per-route budgets
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Backend       string        `mapstructure:"backend"` // postgres, redis, memory
	RedisURL      string        `mapstructure:"redis_url"`
	DefaultLimit  int64         `mapstructure:"default_limit"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
	FailOpen      bool          `mapstructure:"fail_open"`

	API      RateLimitRule `mapstructure:"api"`
	Metadata RateLimitRule `mapstructure:"metadata"`
	Share    RateLimitRule `mapstructure:"share"`
	Debug    RateLimitRule `mapstructure:"debug"`
}

// RateLimitRule is a single limit/window pair
type RateLimitRule struct {
	Limit  int64         `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// MetadataConfig contains settings for the link metadata scraper
type MetadataConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`
	RatePerSec   float64       `mapstructure:"rate_per_sec"`
	Burst        int           `mapstructure:"burst"`
}

// JobsConfig contains background job settings
type JobsConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	BackfillSchedule    string `mapstructure:"backfill_schedule"`
	BackfillBatchSize   int    `mapstructure:"backfill_batch_size"`
	BackfillMaxAttempts int    `mapstructure:"backfill_max_attempts"`
	DigestSchedule      string `mapstructure:"digest_schedule"`
	LeaderElection      bool   `mapstructure:"leader_election"` // only the advisory lock holder fires schedules
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// CORSConfig contains CORS settings for the browser extension and web client
type CORSConfig struct {
	AllowedOrigins   string `mapstructure:"allowed_origins"`
	AllowedMethods   string `mapstructure:"allowed_methods"`
	AllowedHeaders   string `mapstructure:"allowed_headers"`
	ExposedHeaders   string `mapstructure:"exposed_headers"`
	AllowCredentials bool   `mapstructure:"allow_credentials"`
	MaxAge           int    `mapstructure:"max_age"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration, reading the given file when path is non-empty
func LoadFile(path string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("markwell")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/markwell")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("MARKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.body_limit", 1024*1024) // 1MB
	v.SetDefault("server.enable_debug_route", true)

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "markwell")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 20)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "1m")
	v.SetDefault("database.query_timeout", "5s")

	// Auth defaults
	v.SetDefault("auth.provider", "jwt")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.jwt_audience", "")
	v.SetDefault("auth.jwt_expiry", "1h")
	v.SetDefault("auth.oidc_issuer_url", "")
	v.SetDefault("auth.oidc_client_id", "")
	v.SetDefault("auth.session_cookie", "markwell_session")

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.provider", "smtp")
	v.SetDefault("email.from_address", "noreply@localhost")
	v.SetDefault("email.from_name", "Markwell")
	v.SetDefault("email.reply_to_address", "")
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_username", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.smtp_tls", true)
	v.SetDefault("email.sendgrid_api_key", "")
	v.SetDefault("email.mailgun_api_key", "")
	v.SetDefault("email.mailgun_domain", "")
	v.SetDefault("email.ses_access_key", "")
	v.SetDefault("email.ses_secret_key", "")
	v.SetDefault("email.ses_region", "")

	// Rate limit defaults
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.backend", "postgres")
	v.SetDefault("ratelimit.redis_url", "")
	v.SetDefault("ratelimit.default_limit", 10)
	v.SetDefault("ratelimit.default_window", "60s")
	v.SetDefault("ratelimit.fail_open", false)
	v.SetDefault("ratelimit.api.limit", 120)
	v.SetDefault("ratelimit.api.window", "1m")
	v.SetDefault("ratelimit.metadata.limit", 10)
	v.SetDefault("ratelimit.metadata.window", "1m")
	v.SetDefault("ratelimit.share.limit", 5)
	v.SetDefault("ratelimit.share.window", "1h")
	v.SetDefault("ratelimit.debug.limit", 10)
	v.SetDefault("ratelimit.debug.window", "1m")

	// Metadata scraper defaults
	v.SetDefault("metadata.timeout", "10s")
	v.SetDefault("metadata.max_body_bytes", 2*1024*1024) // 2MB
	v.SetDefault("metadata.user_agent", "MarkwellBot/1.0 (+https://markwell.app/bot)")
	v.SetDefault("metadata.rate_per_sec", 5.0)
	v.SetDefault("metadata.burst", 10)

	// Jobs defaults
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.backfill_schedule", "@every 15m")
	v.SetDefault("jobs.backfill_batch_size", 50)
	v.SetDefault("jobs.backfill_max_attempts", 5)
	v.SetDefault("jobs.digest_schedule", "0 8 * * *")
	v.SetDefault("jobs.leader_election", true)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "markwell")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	// CORS defaults
	v.SetDefault("cors.allowed_origins", "http://localhost:3000")
	v.SetDefault("cors.allowed_methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	v.SetDefault("cors.allowed_headers", "Origin,Content-Type,Accept,Authorization,X-Request-ID")
	v.SetDefault("cors.exposed_headers", "X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After")
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 300)

	// General defaults
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_format", "")
	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database configuration error: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth configuration error: %w", err)
	}

	if c.Email.Enabled {
		if err := c.Email.Validate(); err != nil {
			return fmt.Errorf("email configuration error: %w", err)
		}
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("ratelimit configuration error: %w", err)
	}

	if c.Metadata.Timeout <= 0 {
		return fmt.Errorf("metadata timeout must be positive")
	}

	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive")
	}
	return nil
}

// Validate validates database configuration
func (dc *DatabaseConfig) Validate() error {
	if dc.URL == "" {
		if dc.Host == "" {
			return fmt.Errorf("host is required")
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535")
		}
		if dc.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	if dc.MaxConnections < dc.MinConnections {
		return fmt.Errorf("max_connections must be greater than or equal to min_connections")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (dc *DatabaseConfig) ConnectionString() string {
	if dc.URL != "" {
		return dc.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}

// Validate validates auth configuration
func (ac *AuthConfig) Validate() error {
	switch ac.Provider {
	case "jwt":
		if ac.JWTSecret == "" {
			return fmt.Errorf("jwt_secret is required when using the jwt provider")
		}
		if len(ac.JWTSecret) < 32 {
			return fmt.Errorf("jwt_secret must be at least 32 characters")
		}
	case "oidc":
		if ac.OIDCIssuerURL == "" {
			return fmt.Errorf("oidc_issuer_url is required when using the oidc provider")
		}
		if ac.OIDCClientID == "" {
			return fmt.Errorf("oidc_client_id is required when using the oidc provider")
		}
	default:
		return fmt.Errorf("invalid auth provider: %s (must be one of: jwt, oidc)", ac.Provider)
	}
	return nil
}

// Validate validates email configuration
func (ec *EmailConfig) Validate() error {
	if ec.FromAddress == "" {
		return fmt.Errorf("from_address is required when email is enabled")
	}

	validProviders := []string{"smtp", "sendgrid", "mailgun", "ses"}
	providerValid := false
	for _, p := range validProviders {
		if ec.Provider == p {
			providerValid = true
			break
		}
	}
	if !providerValid {
		return fmt.Errorf("invalid email provider: %s (must be one of: %v)", ec.Provider, validProviders)
	}

	// Missing credentials are tolerated here: the mail service logs a warning and skips delivery.
	if ec.Provider == "smtp" && ec.SMTPPort < 0 {
		return fmt.Errorf("smtp_port cannot be negative")
	}

	return nil
}

// IsConfigured reports whether the selected provider has the credentials it needs
func (ec *EmailConfig) IsConfigured() bool {
	switch ec.Provider {
	case "smtp", "":
		return ec.SMTPHost != "" && ec.SMTPPort > 0
	case "sendgrid":
		return ec.SendGridAPIKey != ""
	case "mailgun":
		return ec.MailgunAPIKey != "" && ec.MailgunDomain != ""
	case "ses":
		return ec.SESRegion != ""
	default:
		return false
	}
}

// Validate validates rate limit configuration
func (rc *RateLimitConfig) Validate() error {
	switch rc.Backend {
	case "postgres", "memory", "local":
	case "redis":
		if rc.RedisURL == "" {
			return fmt.Errorf("redis_url is required for redis rate limit backend")
		}
	default:
		return fmt.Errorf("unknown rate limit backend: %s (valid options: postgres, redis, memory)", rc.Backend)
	}
	if rc.DefaultLimit < 0 {
		return fmt.Errorf("default_limit cannot be negative")
	}
	if rc.DefaultWindow < 0 {
		return fmt.Errorf("default_window cannot be negative")
	}
	if rc.DefaultWindow > 0 && rc.DefaultWindow < time.Millisecond {
		return fmt.Errorf("default_window must be at least 1ms")
	}
	rules := map[string]RateLimitRule{"api": rc.API, "metadata": rc.Metadata, "share": rc.Share, "debug": rc.Debug}
	for name, rule := range rules {
		if rule.Limit < 0 {
			return fmt.Errorf("%s.limit cannot be negative", name)
		}
		if rule.Window < 0 || (rule.Window > 0 && rule.Window < time.Millisecond) {
			return fmt.Errorf("%s.window must be at least 1ms", name)
		}
	}
	return nil
}
