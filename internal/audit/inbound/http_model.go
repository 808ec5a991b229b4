package inbound

import "time"

type EventResponse struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Address       string            `json:"address,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	Detail        map[string]string `json:"detail,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
	RecordedAt    time.Time         `json:"recorded_at"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`

	total  int64
	limit  int32
	offset int32
}

func (l ListEventsResponse) Meta() map[string]any {
	return map[string]any{
		"total":  l.total,
		"limit":  l.limit,
		"offset": l.offset,
	}
}
