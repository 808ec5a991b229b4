package router

import (
	"net"
	"net/http"
	"strings"

	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
)

const (
	// HeaderCorrelationID carries the request correlation id in and out.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is accepted as a fallback when no correlation id is sent.
	HeaderRequestID = "X-Request-ID"

	maxCorrelationIDLen = 128
)

// middlewareRequestContext stores the correlation id and client address in the
// request context. Forwarding headers are honored only when trustProxy is set,
// otherwise a caller could spoof the address recorded on audit events.
func middlewareRequestContext(gen uid.StringID, trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cid := firstCorrelationID(r.Header.Get(HeaderCorrelationID), r.Header.Get(HeaderRequestID))
			if cid == "" && gen != nil {
				cid = gen.Generate()
			}
			if cid != "" {
				w.Header().Set(HeaderCorrelationID, cid)
				ctx = instrument.SetCorrelationID(ctx, cid)
			}

			if ip := clientIP(r, trustProxy); ip != "" {
				ctx = instrument.SetClientIP(ctx, ip)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func firstCorrelationID(candidates ...string) string {
	for _, v := range candidates {
		if strings.ContainsAny(v, "\r\n") {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if len(v) > maxCorrelationIDLen {
			v = v[:maxCorrelationIDLen]
		}
		return v
	}
	return ""
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range []string{"True-Client-IP", "X-Real-IP", "X-Forwarded-For"} {
			v, _, _ := strings.Cut(r.Header.Get(h), ",")
			if ip := net.ParseIP(strings.TrimSpace(v)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
