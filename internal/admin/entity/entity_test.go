package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallengeUsable(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base := Challenge{ExpiresAt: now.Add(time.Minute)}

	tests := []struct {
		name string
		c    Challenge
		want bool
	}{
		{name: "fresh", c: base, want: true},
		{name: "consumed", c: Challenge{ExpiresAt: base.ExpiresAt, Consumed: true}, want: false},
		{name: "expired at boundary", c: Challenge{ExpiresAt: now}, want: false},
		{name: "attempts exhausted", c: Challenge{ExpiresAt: base.ExpiresAt, AttemptCount: 5}, want: false},
		{name: "one attempt left", c: Challenge{ExpiresAt: base.ExpiresAt, AttemptCount: 4}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Usable(now, 5))
		})
	}
}

func TestSessionPointerValid(t *testing.T) {
	// Arrange
	issued := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	p := SessionPointer{ExpiresAt: issued.Add(60 * time.Minute)}

	// Act & Assert
	assert.True(t, p.Valid(issued.Add(59*time.Minute)))
	assert.False(t, p.Valid(issued.Add(60*time.Minute)))
	assert.False(t, p.Valid(issued.Add(61*time.Minute)))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "admin@example.org", NormalizeAddress("  Admin@Example.ORG "))
}
