package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
)

// SessionGuard checks the server-side state behind a session token.
type SessionGuard interface {
	// Guard validates a live token. It returns the context to continue with,
	// typically carrying refreshed claims, or an error that is sent to the client.
	Guard(ctx context.Context, clm jwt.Claims) (context.Context, error)
	// Expire is told about a correctly signed token that has expired.
	Expire(ctx context.Context, clm jwt.Claims) error
}

var (
	errAuthRequired   = goerror.NewReason("Authentication required", goerror.CodeUnauthorized, "unauthorized")
	errInvalidToken   = goerror.NewReason("Invalid token", goerror.CodeUnauthorized, "unauthorized")
	errSessionExpired = goerror.NewReason("Session expired", goerror.CodeUnauthorized, "session_expired")
)

func (ro *Router) middlewareAuthentication(verifier jwt.JWT, publicEndpoints map[string]map[string]struct{}) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := matchedRoutePath(r)

			if s, ok := publicEndpoints[r.Method]; ok {
				if _, skip := s[path]; skip {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := r.Context()

			p := strings.Fields(r.Header.Get("Authorization"))
			if len(p) != 2 || !strings.EqualFold(p[0], "Bearer") {
				ro.errorCodec(ctx, w, errAuthRequired)
				return
			}

			claims, err := verifier.Verify(p[1])
			if errors.Is(err, jwt.ErrTokenExpired) {
				if ro.guard != nil {
					if errExp := ro.guard.Expire(ctx, claims); errExp != nil {
						slog.WarnContext(ctx, "failed to clean up expired session", "session_id", claims.SessionID, "error", errExp)
					}
				}
				ro.errorCodec(ctx, w, errSessionExpired)
				return
			}
			if err != nil {
				ro.errorCodec(ctx, w, errInvalidToken)
				return
			}

			ctx = jwt.SetAuth(ctx, claims)
			if ro.guard != nil {
				ctx, err = ro.guard.Guard(ctx, claims)
				if err != nil {
					ro.errorCodec(r.Context(), w, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
