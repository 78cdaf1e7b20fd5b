// Package csrf issues and verifies the short-lived signed tokens that guard
// the sign-in and sign-up forms.
package csrf

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "_csrf"
	FieldName  = "csrf_token"
	HeaderName = "X-CSRF-Token"

	subject = "csrf"
)

var (
	ErrInvalidToken  = errors.New("invalid csrf token")
	ErrExpiredToken  = errors.New("csrf token has expired")
	ErrMissingToken  = errors.New("missing csrf token")
	ErrTokenMismatch = errors.New("csrf token does not match cookie")
)

type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret []byte, ttl time.Duration) *Manager {
	return &Manager{secret: secret, ttl: ttl}
}

// TTL is the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue returns a token valid from now for the manager TTL.
func (m *Manager) Issue(now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	})
	return token.SignedString(m.secret)
}

// Verify checks the signature, algorithm, subject and expiry of token at now.
func (m *Manager) Verify(token string, now time.Time) error {
	if token == "" {
		return ErrMissingToken
	}

	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return errors.Join(ErrInvalidToken, err)
	}
}

// VerifyPair verifies the submitted token and that it equals the cookie
// token issued with the form.
func (m *Manager) VerifyPair(submitted, cookie string, now time.Time) error {
	if submitted == "" || cookie == "" {
		return ErrMissingToken
	}
	if submitted != cookie {
		return ErrTokenMismatch
	}
	return m.Verify(submitted, now)
}
