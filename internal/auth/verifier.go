// Package auth verifies identity-provider bearer tokens.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Principal is the caller established from a verified token.
type Principal struct {
	Email   string
	Subject string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret          string
	PublicKeyBase64 string
	Issuer          string
	Audience        string
}

// JWTVerifier accepts HS256 tokens signed with a shared secret or RS256 tokens signed by the identity provider.
type JWTVerifier struct {
	key    any
	parser *jwt.Parser
}

func NewJWTVerifier(cfg Config) (*JWTVerifier, error) {
	var (
		key    any
		method string
	)
	switch {
	case strings.TrimSpace(cfg.PublicKeyBase64) != "":
		publicKey, err := parsePublicKey(cfg.PublicKeyBase64)
		if err != nil {
			return nil, err
		}
		key, method = publicKey, jwt.SigningMethodRS256.Alg()
	case strings.TrimSpace(cfg.Secret) != "":
		key, method = []byte(cfg.Secret), jwt.SigningMethodHS256.Alg()
	default:
		return nil, fmt.Errorf("identity token secret or public key is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTVerifier{key: key, parser: jwt.NewParser(opts...)}, nil
}

func parsePublicKey(encoded string) (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 public key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return publicKey, nil
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Principal{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	email := strings.TrimSpace(claims.Email)
	if email == "" {
		return Principal{}, fmt.Errorf("%w: email claim is missing", ErrInvalidToken)
	}

	return Principal{Email: email, Subject: claims.Subject}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok && principal.Email != ""
}
