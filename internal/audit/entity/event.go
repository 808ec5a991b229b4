package entity

import "time"

// Event is a stored step-up audit record.
type Event struct {
	ID            int64
	Type          string
	Address       string
	SessionID     string
	Detail        map[string]string
	CorrelationID string
	OccurredAt    time.Time
	RecordedAt    time.Time
}

type EventFilter struct {
	Address string
	Type    string
	Limit   int32
	Offset  int32
}
