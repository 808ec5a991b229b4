package router

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/stacktrace"
)

func (ro *Router) middlewareRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			//nolint:errorlint // sentinel is compared as a panic value
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			slog.ErrorContext(r.Context(), "panic while serving request", "panic", rvr, "stack", stacktrace.Frames(1))
			ro.errorCodec(r.Context(), w, goerror.NewServer(fmt.Errorf("panic: %v", rvr)))
		}()

		next.ServeHTTP(w, r)
	})
}

var errMaintenance = goerror.NewReason("Service is under maintenance", goerror.CodeServiceUnavailable, "maintenance")

// middlewareMaintenance answers 503 for the routes listed in
// app.maintenance.endpoints ("*" closes every route except /health).
func (ro *Router) middlewareMaintenance(routes []string) Middleware {
	closed := make(map[string]struct{}, len(routes))
	for _, route := range routes {
		closed[route] = struct{}{}
	}
	_, all := closed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := matchedRoutePath(r)
			if _, hit := closed[route]; hit || (all && route != "/health") {
				ro.errorCodec(r.Context(), w, errMaintenance)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
