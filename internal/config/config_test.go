package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:                    "8000",
		Env:                     "production",
		AuthSigningKey:          "super-secret",
		SessionLifetimeMinutes:  30,
		SessionWarningMinutes:   5,
		SessionCheckSeconds:     30,
		SessionFineCheckSeconds: 1,
		ConsentSweepMinutes:     15,
		AuditQueueSize:          1024,
		AuditMaxRetries:         3,
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRequiresSigningKeyOutsideDev(t *testing.T) {
	cfg := validConfig()
	cfg.AuthSigningKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("production without signing key should fail validation")
	}

	cfg.Env = "development"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development without signing key should pass: %v", err)
	}
}

func TestValidateSessionBounds(t *testing.T) {
	cfg := validConfig()
	cfg.SessionLifetimeMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero lifetime should fail")
	}

	cfg = validConfig()
	cfg.SessionWarningMinutes = 30
	if err := cfg.Validate(); err == nil {
		t.Error("warning threshold equal to lifetime should fail")
	}

	cfg = validConfig()
	cfg.SessionCheckSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero check interval should fail")
	}
}

func TestValidateAuditBounds(t *testing.T) {
	cfg := validConfig()
	cfg.AuditQueueSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero queue size should fail")
	}

	cfg = validConfig()
	cfg.AuditMaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative retries should fail")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := validConfig()
	if cfg.SessionLifetime() != 30*time.Minute {
		t.Errorf("lifetime = %v", cfg.SessionLifetime())
	}
	if cfg.SessionWarningThreshold() != 5*time.Minute {
		t.Errorf("warning = %v", cfg.SessionWarningThreshold())
	}
	if cfg.ConsentSweepInterval() != 15*time.Minute {
		t.Errorf("sweep = %v", cfg.ConsentSweepInterval())
	}
}

func TestIsDev(t *testing.T) {
	cfg := validConfig()
	if cfg.IsDev() {
		t.Error("production reported as dev")
	}
	cfg.Env = "development"
	if !cfg.IsDev() {
		t.Error("development not reported as dev")
	}
}
