package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Run serves HTTP until ctx is canceled or the listener fails, then drains
// in-flight requests and background tasks and releases every resource.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "http server listening", "address", a.httpServer.Addr)
		serveErr <- a.httpServer.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutdown requested")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	timeout := a.config.GetSecond("app.server.shutdown_timeout_seconds")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	a.stop(shutdownCtx)
	return runErr
}

func (a *App) stop(ctx context.Context) {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shut down http server", "error", err)
	}

	// Consumers and tickers watch a.ctx.
	a.cancel()

	if err := a.goroutine.Wait(); err != nil {
		slog.ErrorContext(ctx, "background tasks finished with errors", "error", err)
	}

	a.close(ctx)
	slog.InfoContext(ctx, "application stopped")
}
