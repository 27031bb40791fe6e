// Package service implements the administrative gate: one shared secret
// guards the privileged key operations (create, bulk-create, list, delete).
// Clients either send the secret with each request or exchange it once for a
// short-lived JWT session token.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keygate/keygate/internal/config"
)

var (
	// ErrUnauthorized is the uniform failure for a wrong or missing secret.
	// It is deliberately indistinguishable between "no secret configured",
	// "wrong secret", and "bad token".
	ErrUnauthorized = errors.New("unauthorized")
)

// adminSecretSetting is the settings-store key holding the hashed fallback
// secret, written by `keygate secret set`.
const adminSecretSetting = "admin_secret_hash"

// AuthService validates the admin shared secret and manages JWT sessions.
type AuthService struct {
	store      *config.Store // optional fallback source for the secret
	secretHash string        // hex SHA-256 of the configured secret, "" if unset
	jwtSecret  []byte
}

// NewAuthService creates an AuthService. adminSecret comes from config/env
// and takes precedence; when empty, the hashed secret in the settings store
// is used. jwtSecret signs session tokens.
func NewAuthService(store *config.Store, adminSecret, jwtSecret string) *AuthService {
	s := &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
	}
	if adminSecret != "" {
		s.secretHash = config.HashSecret(adminSecret)
	}
	return s
}

// VerifyAdminSecret checks a candidate secret against the configured one.
// Comparison runs over SHA-256 digests in constant time. With no secret
// configured anywhere, every candidate is rejected: the privileged surface
// stays closed rather than open.
func (s *AuthService) VerifyAdminSecret(ctx context.Context, candidate string) error {
	if candidate == "" {
		return ErrUnauthorized
	}

	expected := s.secretHash
	if expected == "" && s.store != nil {
		stored, err := s.store.GetSetting(ctx, adminSecretSetting)
		if err == nil {
			expected = stored
		}
	}
	if expected == "" {
		return ErrUnauthorized
	}

	got := config.HashSecret(candidate)
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// IssueSession exchanges a verified admin secret for a signed JWT valid for
// ttl. Call VerifyAdminSecret first; this method does not re-check.
func (s *AuthService) IssueSession(ctx context.Context, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    "keygate",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateSession verifies a session token's signature and expiry.
func (s *AuthService) ValidateSession(ctx context.Context, tokenStr string) error {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return ErrUnauthorized
	}
	if claims.Subject != "admin" {
		return ErrUnauthorized
	}
	return nil
}
