//go:build otpdebug

package devcode

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
)

const Enabled = true

type entry struct {
	code      string
	expiresAt time.Time
}

type Sink struct {
	mu    sync.RWMutex
	codes map[string]entry
	clock clock.Clocker
}

func New(clk clock.Clocker) *Sink {
	return &Sink{codes: map[string]entry{}, clock: clk}
}

func (s *Sink) Record(ctx context.Context, address, code string, expiresAt time.Time) {
	s.mu.Lock()
	s.codes[address] = entry{code: code, expiresAt: expiresAt}
	s.mu.Unlock()

	slog.WarnContext(ctx, "DEBUG BUILD otp code recorded", "address", address, "debug_code", code, "expires_at", expiresAt)
}

// Lookup returns the latest unexpired code recorded for address.
func (s *Sink) Lookup(address string) (string, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.codes[address]
	if !ok || !s.clock.Now().Before(e.expiresAt) {
		return "", time.Time{}, false
	}

	return e.code, e.expiresAt, true
}
