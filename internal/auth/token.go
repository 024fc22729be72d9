// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenTTL = 72 * time.Hour
	MinSecretLength = 32
)

// Claims is the decoded payload of a bearer token.
type Claims struct {
	UserID    int64
	SessionID uuid.UUID
	ExpiresAt time.Time
}

// Session returns the session the claims refer to.
func (c Claims) Session() Session {
	return Session{UserID: c.UserID, ID: c.SessionID}
}

// Issuer signs bearer tokens for persisted sessions.
type Issuer interface {
	Issue(session Session) (string, Claims, error)
}

// Validator decodes and verifies bearer tokens.
type Validator interface {
	Validate(token string) (Claims, error)
}

// jwtClaims is the wire form: {"user_id", "session_uuid", "exp"}.
type jwtClaims struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_uuid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 JWTs with a single shared secret.
// Key rotation and asymmetric signing are not supported.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// NewTokenIssuer creates a TokenIssuer. The secret must be at least
// MinSecretLength bytes.
func NewTokenIssuer(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("AUTH_INVALID_SECRET").
			With("min", MinSecretLength).
			With("got", len(secret)).
			Errorf("signing secret is too short")
	}
	if ttl <= 0 {
		return nil, oops.Code("AUTH_INVALID_TTL").With("ttl", ttl).Errorf("token ttl must be positive")
	}

	t := &TokenIssuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token referencing session that expires TTL from now.
func (t *TokenIssuer) Issue(session Session) (string, Claims, error) {
	exp := jwt.NewNumericDate(t.now().Add(t.ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		UserID:    session.UserID,
		SessionID: session.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: exp,
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", Claims{}, oops.Code("AUTH_TOKEN_SIGNING").
			With("user_id", session.UserID).
			Wrap(errors.Join(ErrSigning, err))
	}

	return signed, Claims{
		UserID:    session.UserID,
		SessionID: session.ID,
		ExpiresAt: exp.Time,
	}, nil
}

// Validate checks the signature and expiry of raw and returns its claims.
// Failures wrap ErrTokenMalformed, ErrTokenBadSignature or ErrTokenExpired.
func (t *TokenIssuer) Validate(raw string) (Claims, error) {
	var wire jwtClaims
	_, err := jwt.ParseWithClaims(raw, &wire,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, oops.Code("AUTH_TOKEN_EXPIRED").Wrap(ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, oops.Code("AUTH_TOKEN_BAD_SIGNATURE").Wrap(ErrTokenBadSignature)
	default:
		return Claims{}, oops.Code("AUTH_TOKEN_MALFORMED").With("reason", err.Error()).Wrap(ErrTokenMalformed)
	}

	sessionID, err := uuid.Parse(wire.SessionID)
	if err != nil {
		return Claims{}, oops.Code("AUTH_TOKEN_MALFORMED").With("reason", "session_uuid").Wrap(ErrTokenMalformed)
	}
	if wire.UserID <= 0 {
		return Claims{}, oops.Code("AUTH_TOKEN_MALFORMED").With("reason", "user_id").Wrap(ErrTokenMalformed)
	}

	return Claims{
		UserID:    wire.UserID,
		SessionID: sessionID,
		ExpiresAt: wire.ExpiresAt.Time,
	}, nil
}

var (
	_ Issuer    = (*TokenIssuer)(nil)
	_ Validator = (*TokenIssuer)(nil)
)
