package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string `env:"DATABASE_URL,required" validate:"required"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	StripeSecretKey       string        `env:"STRIPE_SECRET_KEY,required" validate:"required"`
	ClientDomain          string        `env:"CLIENT_DOMAIN,required" validate:"required,url"`
	GatewayBreakerFailure uint32        `env:"GATEWAY_BREAKER_FAILURES" envDefault:"5" validate:"gt=0"`
	GatewayBreakerTimeout time.Duration `env:"GATEWAY_BREAKER_TIMEOUT" envDefault:"30s" validate:"gt=0"`

	IdentityJWTSecret          string   `env:"IDENTITY_JWT_SECRET"`
	IdentityJWTPublicKeyBase64 string   `env:"IDENTITY_JWT_PUBLIC_KEY_BASE64"`
	IdentityJWTIssuer          string   `env:"IDENTITY_JWT_ISSUER"`
	IdentityJWTAudience        string   `env:"IDENTITY_JWT_AUDIENCE"`
	AdminEmails                []string `env:"ADMIN_EMAILS" envSeparator:","`
	CORSAllowedOrigins         []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," validate:"dive,url"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	NATSURL string `env:"NATS_URL" validate:"omitempty,url"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" validate:"omitempty,email"`

	SentryDSN              string  `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0.2" validate:"gte=0,lte=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"3000"`
}

var configValidator = validator.New()

const defaultEnvFile = ".env"

func Load() (*Config, error) {
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", defaultEnvFile, err)
	}

	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasSecret := strings.TrimSpace(c.IdentityJWTSecret) != ""
	hasPublicKey := strings.TrimSpace(c.IdentityJWTPublicKeyBase64) != ""
	if hasSecret == hasPublicKey {
		return fmt.Errorf("exactly one of IDENTITY_JWT_SECRET or IDENTITY_JWT_PUBLIC_KEY_BASE64 must be set")
	}

	hasResendKey := strings.TrimSpace(c.ResendAPIKey) != ""
	hasEmailFrom := strings.TrimSpace(c.EmailFrom) != ""
	if hasResendKey != hasEmailFrom {
		return fmt.Errorf("RESEND_API_KEY and EMAIL_FROM must be set together")
	}

	parsed, err := url.Parse(strings.TrimSpace(c.ClientDomain))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("CLIENT_DOMAIN must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("CLIENT_DOMAIN must use https outside local development")
	}

	return nil
}

// ClientURL joins path onto the client domain.
func (c *Config) ClientURL(path string) string {
	return strings.TrimRight(strings.TrimSpace(c.ClientDomain), "/") + "/" + strings.TrimLeft(path, "/")
}

// IsAdmin reports whether email is one of the configured administrators.
func (c *Config) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range c.AdminEmails {
		if strings.ToLower(strings.TrimSpace(admin)) == email {
			return true
		}
	}
	return false
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
