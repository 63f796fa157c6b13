package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateIdentityKeyMaterial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		secret    string
		publicKey string
		wantErr   bool
	}{
		{
			name:    "shared secret only",
			secret:  "dev-secret",
			wantErr: false,
		},
		{
			name:      "public key only",
			publicKey: "LS0tLS1CRUdJTg==",
			wantErr:   false,
		},
		{
			name:    "neither configured",
			wantErr: true,
		},
		{
			name:      "both configured",
			secret:    "dev-secret",
			publicKey: "LS0tLS1CRUdJTg==",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.IdentityJWTSecret = tt.secret
			cfg.IdentityJWTPublicKeyBase64 = tt.publicKey

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateCacheProvider(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CacheProvider = "memcached"

	err := cfg.validate()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "CacheProvider") || !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRedisConnectionStringForRedisCache(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CacheProvider = "redis"
	cfg.RedisConnectionString = ""

	err := cfg.validate()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "RedisConnectionString") || !strings.Contains(err.Error(), "required_if") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateResendSettingsMustBePaired(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ResendAPIKey = "re_123"

	if err := cfg.validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}

	cfg.EmailFrom = "receipts@bookmarket.test"
	if err := cfg.validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateClientDomainRequiresHTTPSOutsideLocalhost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		domain  string
		wantErr bool
	}{
		{name: "localhost http", domain: "http://localhost:5173", wantErr: false},
		{name: "public https", domain: "https://books.example.com", wantErr: false},
		{name: "public http", domain: "http://books.example.com", wantErr: true},
		{name: "not a url", domain: "books", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.ClientDomain = tt.domain

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestClientURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ClientDomain = "https://books.example.com/"

	got := cfg.ClientURL("/payment-success?session_id={CHECKOUT_SESSION_ID}")
	want := "https://books.example.com/payment-success?session_id={CHECKOUT_SESSION_ID}"
	if got != want {
		t.Fatalf("ClientURL() = %q, want %q", got, want)
	}
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.AdminEmails = []string{" Admin@Bookmarket.test ", "ops@bookmarket.test"}

	if !cfg.IsAdmin("admin@bookmarket.test") {
		t.Fatalf("expected admin to be recognised")
	}
	if cfg.IsAdmin("reader@bookmarket.test") {
		t.Fatalf("expected non-admin to be rejected")
	}
	if cfg.IsAdmin("") {
		t.Fatalf("expected empty email to be rejected")
	}
}

func validConfig() *Config {
	return &Config{
		DatabaseURL:            "postgres://localhost:5432/bookmarket",
		StripeSecretKey:        "sk_test_123",
		ClientDomain:           "http://localhost:5173",
		GatewayBreakerFailure:  5,
		GatewayBreakerTimeout:  30 * time.Second,
		IdentityJWTSecret:      "dev-secret",
		CacheProvider:          "memory",
		RedisConnectionString:  "redis://localhost:6379/0",
		SentryEnvironment:      "test",
		SentryTracesSampleRate: 0.2,
		LogFormat:              "text",
		Port:                   "3000",
	}
}
