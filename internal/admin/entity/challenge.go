package entity

import "time"

// ConsumedReason records why a challenge stopped being usable.
type ConsumedReason string

const (
	ConsumedReasonNone      ConsumedReason = ""
	ConsumedReasonVerified  ConsumedReason = "verified"
	ConsumedReasonExhausted ConsumedReason = "exhausted"
)

// Challenge is the hashed, time-bounded OTP record for one address.
type Challenge struct {
	Address        string
	CodeHash       string
	ExpiresAt      time.Time
	Consumed       bool
	ConsumedReason ConsumedReason
	AttemptCount   int
	IssuedAt       time.Time
}

// Usable reports whether the challenge still accepts a verification attempt.
func (c Challenge) Usable(now time.Time, maxAttempts int) bool {
	return !c.Consumed && now.Before(c.ExpiresAt) && c.AttemptCount < maxAttempts
}
