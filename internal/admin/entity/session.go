package entity

import "time"

// SessionPointer is the minimal persisted fragment of a session.
type SessionPointer struct {
	IdentityRef string    `json:"identity_ref"`
	ProviderRef string    `json:"provider_ref"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenID     string    `json:"token_id"`
}

// Valid reports whether the pointer has not yet expired.
func (p SessionPointer) Valid(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// Session is the descriptor returned to the client after step-up.
type Session struct {
	ID          string
	Token       string
	TokenID     string
	Address     string
	DisplayName string
	DisplayRole string
	Role        string
	Level       int
	Permissions []string
	ExpiresAt   time.Time
}
