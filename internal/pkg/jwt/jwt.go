// Package jwt mints and verifies the signed descriptor carried by an admin
// session. The descriptor is never authoritative on its own: the server-side
// session record is checked on every request.
package jwt

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningMethod = errors.New("jwt: unexpected signing method")
	ErrSigningKeyTooShort   = errors.New("jwt: HS512 key must be at least 64 bytes")
	ErrTokenExpired         = errors.New("jwt: token expired")
	ErrInvalidToken         = errors.New("jwt: invalid token")
)

type JWT interface {
	Generate(p Payload, expiresAt time.Time) (Token, error)
	// Verify returns the claims of a valid token. A token whose only defect
	// is expiry yields its claims together with ErrTokenExpired.
	Verify(tokenStr string) (Claims, error)
}

type clocker interface{ Now() time.Time }

type generator interface{ Generate() string }

type Config struct {
	Secret    []byte
	Issuer    string
	Audiences []string
	Clock     clocker
	// UUID supplies the jti of each token.
	UUID generator
}

type Payload struct {
	SessionID   string
	Address     string
	Role        string
	Level       int
	Permissions []string
}

type Token struct {
	ID        string
	Value     string
	ExpiresAt time.Time
}

type Claims struct {
	jwt.RegisteredClaims
	SessionID   string   `json:"sid"`
	Address     string   `json:"address"`
	Role        string   `json:"role"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions,omitempty"`
}

// Can reports whether a permission "object:action" in the claims covers obj
// and act. Either half may be "*".
func (c Claims) Can(obj, act string) bool {
	return slices.ContainsFunc(c.Permissions, func(p string) bool {
		o, a, ok := strings.Cut(p, ":")
		return ok && (o == "*" || o == obj) && (a == "*" || a == act)
	})
}

type authKey struct{}

func SetAuth(ctx context.Context, clm Claims) context.Context {
	return context.WithValue(ctx, authKey{}, clm)
}

// GetAuth returns nil for an unauthenticated request.
func GetAuth(ctx context.Context) *Claims {
	if clm, ok := ctx.Value(authKey{}).(Claims); ok {
		return &clm
	}
	return nil
}
