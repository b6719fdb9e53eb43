package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dialer process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Calling  CallingConfig
	Dispatch DispatchConfig
	Billing  BillingConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// ProviderConfig carries the voice-AI calling provider credentials.
type ProviderConfig struct {
	APIKey        string
	BaseURL       string
	PhoneNumberID string
	AssistantID   string

	// WebhookSecret authenticates inbound completion reports (HMAC-SHA256).
	WebhookSecret string
}

// CallingConfig is the legal calling window, evaluated in Timezone.
type CallingConfig struct {
	WindowStart string // "HH:MM"
	WindowEnd   string // "HH:MM"
	Timezone    string
}

// DispatchConfig bounds how fast the scheduler may place calls.
type DispatchConfig struct {
	MaxConcurrentCalls int
	MaxCallsPerHour    int
	MaxCallsPerDay     int

	MaxAttempts int
	RetryDelay  time.Duration

	// Mode is "continuous" (default) or "batch" (one pass, then exit).
	Mode             string
	PollInterval     time.Duration
	MaxRuntime       time.Duration
	PlacementTimeout time.Duration
}

type BillingConfig struct {
	// Plan gates monthly call volume; empty disables the quota gate.
	Plan string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optionalDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optionalDuration("JWT_REFRESH_TTL")

	c.Provider.APIKey = os.Getenv("PROVIDER_API_KEY")
	c.Provider.BaseURL = strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL"))
	c.Provider.PhoneNumberID = strings.TrimSpace(os.Getenv("PROVIDER_PHONE_NUMBER_ID"))
	c.Provider.AssistantID = strings.TrimSpace(os.Getenv("PROVIDER_ASSISTANT_ID"))
	c.Provider.WebhookSecret = os.Getenv("PROVIDER_WEBHOOK_SECRET")

	c.Calling.WindowStart = strings.TrimSpace(os.Getenv("CALL_WINDOW_START"))
	c.Calling.WindowEnd = strings.TrimSpace(os.Getenv("CALL_WINDOW_END"))
	c.Calling.Timezone = strings.TrimSpace(os.Getenv("CALL_TIMEZONE"))

	c.Dispatch.MaxConcurrentCalls = optionalInt("MAX_CONCURRENT_CALLS")
	c.Dispatch.MaxCallsPerHour = optionalInt("MAX_CALLS_PER_HOUR")
	c.Dispatch.MaxCallsPerDay = optionalInt("MAX_CALLS_PER_DAY")
	c.Dispatch.MaxAttempts = optionalInt("MAX_CALL_ATTEMPTS")
	c.Dispatch.RetryDelay = optionalDuration("RETRY_DELAY")
	c.Dispatch.Mode = strings.TrimSpace(os.Getenv("DISPATCH_MODE"))
	c.Dispatch.PollInterval = optionalDuration("DISPATCH_POLL_INTERVAL")
	c.Dispatch.MaxRuntime = optionalDuration("DISPATCH_MAX_RUNTIME")
	c.Dispatch.PlacementTimeout = optionalDuration("PLACEMENT_TIMEOUT")

	c.Billing.Plan = strings.TrimSpace(os.Getenv("BILLING_PLAN"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("PROVIDER_API_KEY is required"))
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.vapi.ai"
	}
	if c.Provider.PhoneNumberID == "" {
		errs = append(errs, errors.New("PROVIDER_PHONE_NUMBER_ID is required"))
	}
	if c.Provider.WebhookSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("PROVIDER_WEBHOOK_SECRET is required in production"))
	}

	if c.Calling.WindowStart == "" {
		c.Calling.WindowStart = "07:00"
	}
	if c.Calling.WindowEnd == "" {
		c.Calling.WindowEnd = "22:00"
	}
	for _, w := range []string{c.Calling.WindowStart, c.Calling.WindowEnd} {
		if _, err := time.Parse("15:04", w); err != nil {
			errs = append(errs, fmt.Errorf("calling window must be HH:MM, got %q", w))
		}
	}
	if c.Calling.Timezone == "" {
		c.Calling.Timezone = "Europe/London"
	}
	if _, err := time.LoadLocation(c.Calling.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("CALL_TIMEZONE is not a valid IANA zone: %q", c.Calling.Timezone))
	}

	if c.Dispatch.MaxConcurrentCalls <= 0 {
		c.Dispatch.MaxConcurrentCalls = 5
	}
	if c.Dispatch.MaxCallsPerHour <= 0 {
		c.Dispatch.MaxCallsPerHour = 50
	}
	if c.Dispatch.MaxCallsPerDay <= 0 {
		c.Dispatch.MaxCallsPerDay = 200
	}
	if c.Dispatch.MaxAttempts <= 0 {
		c.Dispatch.MaxAttempts = 3
	}
	if c.Dispatch.RetryDelay <= 0 {
		c.Dispatch.RetryDelay = 60 * time.Minute
	}
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = "continuous"
	}
	if c.Dispatch.Mode != "continuous" && c.Dispatch.Mode != "batch" {
		errs = append(errs, fmt.Errorf("DISPATCH_MODE must be continuous or batch, got %q", c.Dispatch.Mode))
	}
	if c.Dispatch.PollInterval <= 0 {
		c.Dispatch.PollInterval = time.Minute
	}
	if c.Dispatch.MaxRuntime <= 0 {
		c.Dispatch.MaxRuntime = 12 * time.Hour
	}
	if c.Dispatch.PlacementTimeout <= 0 {
		c.Dispatch.PlacementTimeout = 30 * time.Second
	}

	if c.Billing.Plan != "" && c.Billing.Plan != "free" && c.Billing.Plan != "pro" {
		errs = append(errs, fmt.Errorf("BILLING_PLAN must be free or pro, got %q", c.Billing.Plan))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optionalDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
