// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/renameio/v2"
)

const (
	subjectReviewer = "reviewer"
	issuer          = "vlabel"
	secretBytes     = 32
)

var (
	ErrInvalidSession = errors.New("invalid reviewer session")
	ErrShortSecret    = errors.New("reviewer secret too short")
)

// Sessions issues and verifies HS256 reviewer tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// SessionOption configures Sessions.
type SessionOption func(*Sessions)

// WithSessionClock overrides time.Now for issuing and verifying.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Sessions) { s.now = now }
}

func NewSessions(secret []byte, ttl time.Duration, opts ...SessionOption) (*Sessions, error) {
	if len(secret) < 16 {
		return nil, ErrShortSecret
	}
	s := &Sessions{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL is the lifetime of issued tokens.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a new reviewer token and returns it with its expiry.
func (s *Sessions) Issue() (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subjectReviewer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign reviewer session: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm, issuer, subject and expiry.
func (s *Sessions) Verify(token string) error {
	if token == "" {
		return ErrInvalidSession
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(subjectReviewer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	return nil
}

// LoadOrCreateSecret reads the signing secret at path, generating and
// atomically writing a new one on first start.
func LoadOrCreateSecret(path string) ([]byte, error) {
	// #nosec G304 -- path comes from operator configuration
	raw, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(raw))
		if len(secret) < 16 {
			return nil, fmt.Errorf("%s: %w", path, ErrShortSecret)
		}
		return []byte(secret), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read reviewer secret: %w", err)
	}

	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate reviewer secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create secret dir: %w", err)
	}
	if err := renameio.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write reviewer secret: %w", err)
	}
	return []byte(secret), nil
}
