//go:build !otpdebug

package devcode

import (
	"context"
	"testing"
	"time"

	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestReleaseSinkKeepsNothing(t *testing.T) {
	// Arrange
	s := New(clock.New())
	s.Record(context.Background(), "admin@example.org", "042613", time.Now().Add(time.Hour))

	// Act
	code, _, ok := s.Lookup("admin@example.org")

	// Assert
	assert.False(t, Enabled)
	assert.False(t, ok)
	assert.Empty(t, code)
}
