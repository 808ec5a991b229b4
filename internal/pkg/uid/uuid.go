package uid

import "github.com/google/uuid"

// UUID yields version 7 UUIDs: unguessable enough for session ids and
// time-ordered for correlation ids.
type UUID struct{}

func NewUUID() *UUID { return &UUID{} }

func (*UUID) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
