// Package email sends transactional mail to customers.
package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	APIKey     string
	From       string
	HTTPClient *http.Client
}

// NewProvider returns a Resend provider, or a provider that drops mail when no API key is configured.
func NewProvider(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return NoopProvider{}, nil
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email sender address is required")
	}
	return NewResendProvider(cfg.APIKey, cfg.From, cfg.HTTPClient), nil
}

// NoopProvider accepts every email without sending it.
type NoopProvider struct{}

func (NoopProvider) SendEmail(context.Context, *Email) error {
	return nil
}
