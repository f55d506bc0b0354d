// Package auth issues and verifies the HS256 bearer tokens guarding the
// HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is how long issued tokens stay valid when no explicit lifetime
// is configured.
const DefaultTTL = 24 * time.Hour

// ErrInvalidToken is returned for tokens that fail signature, structure or
// expiry checks.
var ErrInvalidToken = errors.New("invalid or expired token")

// Authenticator signs and validates access tokens with a shared secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

// New returns an Authenticator. A non-positive ttl uses DefaultTTL.
func New(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}, nil
}

// Issue returns a signed token for username carrying the subject and expiry
// claims.
func (a *Authenticator) Issue(username string) (string, error) {
	if username == "" {
		return "", errors.New("auth: username is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns its subject. Tokens signed with any
// method other than HS256 are rejected outright.
func (a *Authenticator) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
