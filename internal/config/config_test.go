package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080},
		DB:       DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Provider: ProviderConfig{APIKey: "key", PhoneNumberID: "pn_1"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Provider.WebhookSecret = "s"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Calling.WindowStart != "07:00" || c.Calling.WindowEnd != "22:00" {
		t.Fatalf("expected default calling window, got %q-%q", c.Calling.WindowStart, c.Calling.WindowEnd)
	}
	if c.Calling.Timezone != "Europe/London" {
		t.Fatalf("expected default timezone, got %q", c.Calling.Timezone)
	}
	if c.Dispatch.MaxConcurrentCalls != 5 || c.Dispatch.MaxCallsPerHour != 50 || c.Dispatch.MaxCallsPerDay != 200 {
		t.Fatalf("expected default dispatch limits, got %+v", c.Dispatch)
	}
	if c.Dispatch.MaxAttempts != 3 || c.Dispatch.RetryDelay != 60*time.Minute {
		t.Fatalf("expected default retry policy, got %+v", c.Dispatch)
	}
	if c.Dispatch.Mode != "continuous" {
		t.Fatalf("expected continuous mode default, got %q", c.Dispatch.Mode)
	}
}

func TestValidate_RejectsBadWindow(t *testing.T) {
	c := validBase()
	c.Calling.WindowStart = "7am"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for malformed window")
	}
}

func TestValidate_RejectsBadMode(t *testing.T) {
	c := validBase()
	c.Dispatch.Mode = "forever"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown dispatch mode")
	}
}

func TestValidate_RejectsUnknownPlan(t *testing.T) {
	c := validBase()
	c.Billing.Plan = "enterprise"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown billing plan")
	}
}
