package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/stepguard/internal/pkg/stacktrace"
)

// runHandler shields a broker loop from a panicking consumer. The panic is
// logged with module frames and surfaced as an error so the message is
// treated as failed.
func runHandler(ctx context.Context, driver string, fn func() error) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			slog.ErrorContext(ctx, "consumer handler panicked", "driver", driver, "panic", rvr, "stack", stacktrace.Frames(1))
			err = fmt.Errorf("messaging: %s handler panic: %v", driver, rvr)
		}
	}()

	return fn()
}
