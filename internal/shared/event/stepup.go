package event

import (
	"encoding/json"
	"errors"
	"time"
)

const StepUpDestination string = "admin.stepup.events"
const StepUpConsumerAudit string = "admin_stepup_audit"

// Headers set on every step-up message.
const (
	HeaderCorrelationID = "cID"
	HeaderEventType     = "event_type"
)

// Step-up event types.
const (
	ChallengeDenied   = "challenge.denied"
	ChallengeIssued   = "challenge.issued"
	ChallengeVerified = "challenge.verified"
	ChallengeFailed   = "challenge.failed"
	SessionStarted    = "session.started"
	SessionExtended   = "session.extended"
	SessionExpired    = "session.expired"
	SessionRevoked    = "session.revoked"
	SessionLogout     = "session.logout"
)

var ErrIncompleteStepUp = errors.New("event: step-up message needs type and address")

type StepUpMessage struct {
	Type       string            `json:"type"`
	Address    string            `json:"address"`
	SessionID  string            `json:"session_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ParseStepUp decodes body and rejects messages without type or address.
func ParseStepUp(body []byte) (StepUpMessage, error) {
	var m StepUpMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return StepUpMessage{}, err
	}
	if m.Type == "" || m.Address == "" {
		return StepUpMessage{}, ErrIncompleteStepUp
	}
	return m, nil
}
