// Package auth verifies bearer tokens issued by the external identity provider.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sajang-ai/backend/internal/config"
)

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrNotConfigured = errors.New("auth provider is not configured")
	ErrUnavailable   = errors.New("auth provider unavailable")
)

// User is the authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Verifier resolves a bearer token to a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// SupabaseVerifier asks the provider's user endpoint about every token.
type SupabaseVerifier struct {
	baseURL string
	anonKey string
	client  *http.Client
	now     func() time.Time
}

// NewSupabaseVerifier returns a verifier for cfg. It returns nil when auth is not configured.
func NewSupabaseVerifier(cfg config.AuthConfig) *SupabaseVerifier {
	if !cfg.Enabled() {
		return nil
	}
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SupabaseVerifier{
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/"),
		anonKey: cfg.SupabaseAnonKey,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Verify rejects obviously expired tokens locally, then looks the token up remotely.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrMissingToken
	}
	if err := checkExpiry(token, v.now()); err != nil {
		return User{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return User{}, ErrInvalidToken
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return User{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("%w: decode user: %v", ErrUnavailable, err)
	}
	if user.ID == "" {
		return User{}, ErrInvalidToken
	}
	return user, nil
}

// checkExpiry parses the JWT without verifying its signature; the provider remains the
// authority. Tokens that do not parse as JWTs are rejected.
func checkExpiry(token string, now time.Time) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return ErrInvalidToken
	}
	if exp != nil && !now.Before(exp.Time) {
		return ErrExpiredToken
	}
	return nil
}
