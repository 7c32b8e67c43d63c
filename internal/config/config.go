package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDev        = "dev"
	EnvTest       = "test"
	EnvProduction = "production"

	defaultJWTSecret     = "change-me"
	defaultAdminPassword = "admin123"
)

// Config is built once at startup and passed by value to every component.
type Config struct {
	Env      string
	HTTPAddr string
	Version  string

	DatabaseURL string

	Timezone string
	Location *time.Location

	StripeSecretKey     string
	StripePublicKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	StripeProductName   string
	// InsecureWebhooks trusts unsigned webhook payloads. Only honoured in dev.
	InsecureWebhooks bool

	GoogleServiceAccountJSONBase64 string
	GoogleCalendarID               string

	ResendAPIKey     string
	FromEmail        string
	ContactInbox     string
	LaunchpadBaseURL string

	AdminPassword     string
	AdminPasswordHash string
	AdminJWTSecret    string
	AdminTokenTTL     time.Duration

	CORSOrigins []string

	RedisAddr     string
	RedisPassword string

	DigestEnabled bool
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can inject values.
func FromEnv(lookup func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			return v
		}
		return def
	}

	c := Config{
		Env:         strings.ToLower(get("APP_ENV", EnvDev)),
		HTTPAddr:    get("ADDR", ":8080"),
		Version:     get("APP_VERSION", "0.1.0"),
		DatabaseURL: get("DATABASE_URL", "keys.db"),
		Timezone:    get("TIMEZONE", "America/Chicago"),

		StripeSecretKey:     get("STRIPE_SECRET_KEY", ""),
		StripePublicKey:     get("STRIPE_PUBLIC_KEY", ""),
		StripeWebhookSecret: get("STRIPE_WEBHOOK_SECRET", ""),
		StripeCurrency:      strings.ToLower(get("STRIPE_CURRENCY", "usd")),
		StripeProductName:   get("STRIPE_PRODUCT_NAME", "Serenity's Keys Session"),
		InsecureWebhooks:    getBool(lookup, "STRIPE_WEBHOOK_INSECURE", false),

		GoogleServiceAccountJSONBase64: get("GOOGLE_SERVICE_ACCOUNT_JSON_BASE64", ""),
		GoogleCalendarID:               get("GOOGLE_CALENDAR_ID", ""),

		ResendAPIKey:     get("RESEND_API_KEY", ""),
		FromEmail:        get("FROM_EMAIL", ""),
		ContactInbox:     get("CONTACT_INBOX_EMAIL", ""),
		LaunchpadBaseURL: get("LAUNCHPAD_BASE_URL", "http://localhost:3000/launchpad"),

		AdminPassword:     get("ADMIN_PASSWORD", defaultAdminPassword),
		AdminPasswordHash: get("ADMIN_PASSWORD_HASH", ""),
		AdminJWTSecret:    get("ADMIN_JWT_SECRET", defaultJWTSecret),

		CORSOrigins: splitList(get("CORS_ALLOW_ORIGINS", "http://localhost:3000")),

		RedisAddr:     get("REDIS_ADDR", ""),
		RedisPassword: get("REDIS_PASSWORD", ""),
	}

	var err error
	if c.AdminTokenTTL, err = getDuration(lookup, "ADMIN_TOKEN_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	c.DigestEnabled = getBool(lookup, "DIGEST_ENABLED", c.Env == EnvProduction)

	c.Location, err = time.LoadLocation(c.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("config: TIMEZONE %q: %w", c.Timezone, err)
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.Env {
	case EnvDev, EnvTest, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be one of dev, test, production (got %q)", c.Env))
	}
	if c.AdminTokenTTL <= 0 {
		errs = append(errs, errors.New("ADMIN_TOKEN_TTL must be positive"))
	}
	if c.Env == EnvProduction {
		if c.AdminJWTSecret == defaultJWTSecret {
			errs = append(errs, errors.New("ADMIN_JWT_SECRET must be set in production"))
		}
		if c.AdminPasswordHash == "" && c.AdminPassword == defaultAdminPassword {
			errs = append(errs, errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be set in production"))
		}
		if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) IsDev() bool { return c.Env == EnvDev }

func (c Config) StripeConfigured() bool { return c.StripeSecretKey != "" }

func (c Config) CalendarConfigured() bool {
	return c.GoogleServiceAccountJSONBase64 != "" && c.GoogleCalendarID != ""
}

func (c Config) MailConfigured() bool { return c.ResendAPIKey != "" }

// AllowUnsignedWebhooks reports whether webhook payloads may skip signature checks.
func (c Config) AllowUnsignedWebhooks() bool {
	return c.StripeWebhookSecret == "" && c.InsecureWebhooks && c.IsDev()
}

// ContactRecipient is the inbox for contact form messages, or "" if none is configured.
func (c Config) ContactRecipient() string {
	if c.ContactInbox != "" {
		return c.ContactInbox
	}
	return c.FromEmail
}

func getBool(lookup func(string) string, key string, def bool) bool {
	v := strings.TrimSpace(lookup(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(lookup func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(lookup(key))
	if v == "" {
		return def, nil
	}
	// plain integers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
