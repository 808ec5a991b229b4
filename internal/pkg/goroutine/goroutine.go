// Package goroutine runs fire-and-forget work, such as OTP delivery and
// audit publishing, under a shared concurrency cap.
package goroutine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/shandysiswandi/stepguard/internal/pkg/stacktrace"
	"golang.org/x/sync/errgroup"
)

// DefaultPerCPU is multiplied by runtime.NumCPU when NewManager gets a
// non-positive limit.
const DefaultPerCPU = 100

// Manager starts background tasks without blocking the caller. A task that
// arrives while the cap is reached is dropped and logged. Task errors are
// kept until Wait.
type Manager struct {
	group errgroup.Group

	errMu sync.Mutex
	errs  []error

	closeMu sync.RWMutex
	closed  bool
}

// NewManager returns a Manager that runs at most limit tasks at a time.
func NewManager(limit int) *Manager {
	if limit < 1 {
		limit = runtime.NumCPU() * DefaultPerCPU
	}

	m := &Manager{}
	m.group.SetLimit(limit)
	return m
}

// Go starts f with ctx. It is a no-op on a nil or closed Manager.
func (m *Manager) Go(ctx context.Context, f func(ctx context.Context) error) {
	if m == nil {
		return
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		slog.WarnContext(ctx, "goroutine manager closed, task dropped")
		return
	}

	started := m.group.TryGo(func() error {
		defer m.recover(ctx)

		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "task skipped, context done", "error", err)
			return nil
		}
		if err := f(ctx); err != nil {
			m.errMu.Lock()
			m.errs = append(m.errs, err)
			m.errMu.Unlock()
		}
		return nil
	})
	if !started {
		slog.WarnContext(ctx, "goroutine limit reached, task dropped")
	}
}

func (m *Manager) recover(ctx context.Context) {
	if rvr := recover(); rvr != nil {
		slog.ErrorContext(ctx, "panic in background task", "panic", rvr, "stack", stacktrace.Frames(1))
	}
}

// Wait closes the Manager to new tasks, waits for the running ones and
// returns their joined errors.
func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}

	m.closeMu.Lock()
	m.closed = true
	m.closeMu.Unlock()

	_ = m.group.Wait()

	m.errMu.Lock()
	defer m.errMu.Unlock()
	return errors.Join(m.errs...)
}
