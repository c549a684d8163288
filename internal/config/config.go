package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration of the caregate server. With no
// DATABASE_URL the core runs on its in-memory stores, which is the intended
// mode for development and for embedding the core as a library.
type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	SessionLifetimeMinutes    int `mapstructure:"SESSION_LIFETIME_MINUTES"`
	SessionWarningMinutes     int `mapstructure:"SESSION_WARNING_MINUTES"`
	SessionCheckSeconds       int `mapstructure:"SESSION_CHECK_SECONDS"`
	SessionFineCheckSeconds   int `mapstructure:"SESSION_FINE_CHECK_SECONDS"`
	ConsentSweepMinutes       int `mapstructure:"CONSENT_SWEEP_MINUTES"`
	AuditQueueSize            int `mapstructure:"AUDIT_QUEUE_SIZE"`
	AuditMaxRetries           int `mapstructure:"AUDIT_MAX_RETRIES"`
	AuditRetryDelayMillis     int `mapstructure:"AUDIT_RETRY_DELAY_MILLIS"`
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SESSION_LIFETIME_MINUTES", 30)
	v.SetDefault("SESSION_WARNING_MINUTES", 5)
	v.SetDefault("SESSION_CHECK_SECONDS", 30)
	v.SetDefault("SESSION_FINE_CHECK_SECONDS", 1)
	v.SetDefault("CONSENT_SWEEP_MINUTES", 15)
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_MAX_RETRIES", 3)
	v.SetDefault("AUDIT_RETRY_DELAY_MILLIS", 250)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
		"SESSION_LIFETIME_MINUTES", "SESSION_WARNING_MINUTES",
		"SESSION_CHECK_SECONDS", "SESSION_FINE_CHECK_SECONDS",
		"CONSENT_SWEEP_MINUTES", "AUDIT_QUEUE_SIZE", "AUDIT_MAX_RETRIES",
		"AUDIT_RETRY_DELAY_MILLIS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

// IsDev reports development mode, in which the dev principal middleware is
// active and every request acts as admin.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// SessionLifetime returns the configured lifetime as a duration.
func (c *Config) SessionLifetime() time.Duration {
	return time.Duration(c.SessionLifetimeMinutes) * time.Minute
}

// SessionWarningThreshold returns the warning threshold as a duration.
func (c *Config) SessionWarningThreshold() time.Duration {
	return time.Duration(c.SessionWarningMinutes) * time.Minute
}

// SessionCheckInterval returns the coarse watcher cadence.
func (c *Config) SessionCheckInterval() time.Duration {
	return time.Duration(c.SessionCheckSeconds) * time.Second
}

// SessionFineCheckInterval returns the warning-state watcher cadence.
func (c *Config) SessionFineCheckInterval() time.Duration {
	return time.Duration(c.SessionFineCheckSeconds) * time.Second
}

// ConsentSweepInterval returns the expiry sweep cadence.
func (c *Config) ConsentSweepInterval() time.Duration {
	return time.Duration(c.ConsentSweepMinutes) * time.Minute
}

// AuditRetryDelay returns the pause between audit insert retries.
func (c *Config) AuditRetryDelay() time.Duration {
	return time.Duration(c.AuditRetryDelayMillis) * time.Millisecond
}

// Validate checks the configuration is safe to run. Outside development a
// signing key is required so real authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY is required when ENV=%q; refusing to start without authentication", c.Env)
	}
	if c.SessionLifetimeMinutes <= 0 {
		return fmt.Errorf("SESSION_LIFETIME_MINUTES must be positive, got %d", c.SessionLifetimeMinutes)
	}
	if c.SessionWarningMinutes <= 0 || c.SessionWarningMinutes >= c.SessionLifetimeMinutes {
		return fmt.Errorf("SESSION_WARNING_MINUTES must be positive and less than the session lifetime, got %d", c.SessionWarningMinutes)
	}
	if c.SessionCheckSeconds <= 0 || c.SessionFineCheckSeconds <= 0 {
		return fmt.Errorf("session check intervals must be positive")
	}
	if c.ConsentSweepMinutes <= 0 {
		return fmt.Errorf("CONSENT_SWEEP_MINUTES must be positive, got %d", c.ConsentSweepMinutes)
	}
	if c.AuditQueueSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be positive, got %d", c.AuditQueueSize)
	}
	if c.AuditMaxRetries < 0 {
		return fmt.Errorf("AUDIT_MAX_RETRIES must not be negative, got %d", c.AuditMaxRetries)
	}
	return nil
}
