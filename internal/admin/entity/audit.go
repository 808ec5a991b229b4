package entity

import "time"

// Event is a step-up occurrence handed to the audit trail.
type Event struct {
	Type       string
	Address    string
	SessionID  string
	Detail     map[string]string
	OccurredAt time.Time
}
