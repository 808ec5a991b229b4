package entity

import (
	"errors"
	"strings"
	"time"
)

// Member is an allow-listed administrator and its role entry.
type Member struct {
	Address     string
	DisplayName string
	DisplayRole string
	Role        string
	Level       int
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizeAddress trims and lowercases a contact address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Identity is what the identity provider vouches for after sign-in.
type Identity struct {
	Address     string
	DisplayName string
	ProviderRef string
	IssuedAt    time.Time
}

// ErrInvalidCredential is returned by the identity provider for a credential
// it does not vouch for.
var ErrInvalidCredential = errors.New("invalid identity credential")
