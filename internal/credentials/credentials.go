// Package credentials supplies session tokens and reads the identity claims
// they carry.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mohsale1/dino-sync/internal/clock"
	"github.com/mohsale1/dino-sync/internal/protocol"
)

// Errors
var (
	ErrNoToken      = errors.New("no session token")
	ErrTokenExpired = errors.New("session token expired")
)

// Source returns the current session token.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token.
type Static string

// Token returns the token.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// File reads the token from a file on every call, so a rotated token is
// picked up on the next connect.
type File string

// Token reads and trims the file contents.
func (f File) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, string(f))
	}
	return tok, nil
}

// Env reads the token from an environment variable.
type Env string

// Token returns the variable's value.
func (e Env) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(os.Getenv(string(e)))
	if tok == "" {
		return "", fmt.Errorf("%w: $%s is not set", ErrNoToken, string(e))
	}
	return tok, nil
}

// Claims are the session claims issued by the backend.
type Claims struct {
	UserID      string `json:"user_id,omitempty"`
	VenueID     string `json:"venue_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the handshake identity. The subject stands in for a
// missing user_id.
func (c *Claims) Identity() protocol.Identity {
	id := protocol.Identity{
		UserID:      c.UserID,
		VenueID:     c.VenueID,
		WorkspaceID: c.WorkspaceID,
		Role:        c.Role,
	}
	if id.UserID == "" {
		id.UserID = c.Subject
	}
	return id
}

// Expiry returns the exp claim, zero when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ParseClaims decodes the claims of a JWT without verifying its signature.
// The server verifies the token when the connection is opened.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	return claims, nil
}

// Issue signs claims with an HS256 secret. Used by the dev-token command
// and tests.
func Issue(secret string, claims Claims, now time.Time, ttl time.Duration) (string, error) {
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Verify parses and validates an HS256 token.
func Verify(secret, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Checked wraps src and refuses tokens whose exp claim has passed.
// Tokens that are not JWTs pass through unchanged.
func Checked(src Source, c clock.Clock) Source {
	if c == nil {
		c = clock.New()
	}
	return &checked{src: src, clock: c}
}

type checked struct {
	src   Source
	clock clock.Clock
}

func (c *checked) Token(ctx context.Context) (string, error) {
	tok, err := c.src.Token(ctx)
	if err != nil {
		return "", err
	}
	claims, err := ParseClaims(tok)
	if err != nil {
		return tok, nil
	}
	if exp := claims.Expiry(); !exp.IsZero() && !c.clock.Now().Before(exp) {
		return "", fmt.Errorf("%w at %s", ErrTokenExpired, exp.Format(time.RFC3339))
	}
	return tok, nil
}

// ResolveIdentity combines the token's claims with explicit overrides.
// Override fields win when set.
func ResolveIdentity(ctx context.Context, src Source, overrides protocol.Identity) (protocol.Identity, error) {
	tok, err := src.Token(ctx)
	if err != nil {
		return protocol.Identity{}, err
	}
	claims, err := ParseClaims(tok)
	if err != nil {
		if overrides.IsZero() {
			return protocol.Identity{}, err
		}
		return overrides, nil
	}
	return overrides.Merge(claims.Identity()), nil
}
