package admin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const sessionAudience = "sdeal-admin"

// Sessions issues and verifies HS256 signed admin session tokens.
type Sessions struct {
	secret    []byte
	ttl       time.Duration
	issuer    string
	clockSkew time.Duration
	now       func() time.Time
}

// SessionConfig configures Sessions.
type SessionConfig struct {
	Secret    string
	TTL       time.Duration
	Issuer    string
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewSessions constructs a session signer. The secret must be at least 32 bytes.
func NewSessions(cfg SessionConfig) (*Sessions, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("admin: session secret must be at least 32 bytes")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "sdeal-api"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sessions{secret: []byte(cfg.Secret), ttl: ttl, issuer: issuer, clockSkew: cfg.ClockSkew, now: now}, nil
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a new session token and returns it with its expiry.
func (s *Sessions) Issue() (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject("admin").
		Issuer(s.issuer).
		Audience([]string{sessionAudience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Verify checks signature, issuer, audience and expiry and returns the
// session subject.
func (s *Sessions) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("admin: empty session")
	}
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(sessionAudience),
	}
	if s.clockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(s.clockSkew))
	}
	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return "", fmt.Errorf("admin: invalid session: %w", err)
	}
	return tok.Subject(), nil
}
