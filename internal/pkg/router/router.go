package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
)

type errorResponse struct {
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
	Error   map[string]string `json:"error,omitempty"`
}

type successResponse struct {
	Message string         `json:"message"`
	Data    any            `json:"data"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Handler returns a payload to encode as JSON, or an error for errorCodec.
type Handler func(r *Request) (any, error)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds what the router needs. Every field may be left empty in tests.
type Config struct {
	Config     config.Config
	UUID       uid.StringID
	JWT        jwt.JWT
	Instrument instrument.Instrumentation

	// PublicEndpoints adds method/path pairs that skip authentication.
	PublicEndpoints map[string][]string
	// HealthChecks are run by GET /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// Router serves the JSON API through httprouter behind a fixed middleware chain.
type Router struct {
	hr    *httprouter.Router
	mws   []Middleware
	guard SessionGuard
}

// NewRouter builds the router with recovery, request context, observability,
// maintenance and authentication middleware, plus GET / and GET /health.
func NewRouter(cfg Config) *Router {
	ro := &Router{
		hr: &httprouter.Router{
			RedirectTrailingSlash:  true,
			RedirectFixedPath:      true,
			HandleMethodNotAllowed: true,
			HandleOPTIONS:          true,
			SaveMatchedRoutePath:   true,
			NotFound: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, errorResponse{Message: "endpoint not found"}, http.StatusNotFound)
			}),
			MethodNotAllowed: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, errorResponse{Message: "method not allowed"}, http.StatusMethodNotAllowed)
			}),
		},
	}

	ins := cfg.Instrument
	if ins == nil {
		ins = instrument.NewNoop()
	}

	var (
		trustProxy  bool
		maskFields  []string
		maintenance []string
	)
	if cfg.Config != nil {
		trustProxy = cfg.Config.GetBool("app.server.behind_proxy")
		maskFields = cfg.Config.GetArray("instrument.log_mask_fields")
		maintenance = cfg.Config.GetArray("app.maintenance.endpoints")
	}

	ro.mws = []Middleware{
		ro.middlewareRecoverer,
		middlewareRequestContext(cfg.UUID, trustProxy),
		middlewareObservability(ins, instrument.NewRedactor(maskFields)),
		ro.middlewareMaintenance(maintenance),
		ro.middlewareAuthentication(cfg.JWT, publicEndpoints(cfg.PublicEndpoints)),
	}

	ro.GET("/", func(*Request) (any, error) {
		return map[string]string{"service": "stepguard"}, nil
	})
	ro.GET("/health", healthHandler(cfg.HealthChecks))

	return ro
}

func publicEndpoints(extra map[string][]string) map[string]map[string]struct{} {
	out := map[string]map[string]struct{}{
		http.MethodGet:  {"/": {}, "/health": {}},
		http.MethodPost: {"/api/v1/admin/challenge": {}, "/api/v1/admin/challenge/verify": {}},
	}
	for method, paths := range extra {
		if out[method] == nil {
			out[method] = make(map[string]struct{}, len(paths))
		}
		for _, p := range paths {
			out[method][p] = struct{}{}
		}
	}
	return out
}

type healthResponse struct {
	Checks map[string]string `json:"checks,omitempty"`
}

func (healthResponse) Message() string { return "ok" }

func healthHandler(checks map[string]HealthCheck) Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(r *Request) (any, error) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Checks: make(map[string]string, len(names))}
		var failed []any
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				slog.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				resp.Checks[name] = "down"
				failed = append(failed, name, "down")
				continue
			}
			resp.Checks[name] = "up"
		}

		if len(failed) > 0 {
			return nil, goerror.NewReason("Service unhealthy", goerror.CodeServiceUnavailable, "unhealthy", failed...)
		}
		return resp, nil
	}
}

// UseSessionGuard sets the hook consulted on every authenticated request.
// Call it before serving traffic.
func (ro *Router) UseSessionGuard(g SessionGuard) {
	ro.guard = g
}

func (ro *Router) GET(path string, h Handler, mws ...Middleware) {
	ro.handle(http.MethodGet, path, h, mws)
}

func (ro *Router) POST(path string, h Handler, mws ...Middleware) {
	ro.handle(http.MethodPost, path, h, mws)
}

func (ro *Router) PUT(path string, h Handler, mws ...Middleware) {
	ro.handle(http.MethodPut, path, h, mws)
}

func (ro *Router) DELETE(path string, h Handler, mws ...Middleware) {
	ro.handle(http.MethodDelete, path, h, mws)
}

func (ro *Router) handle(method, path string, h Handler, mws []Middleware) {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := h(&Request{Request: r})
		if err != nil {
			if rec, ok := w.(interface{ SetError(error) }); ok {
				rec.SetError(err)
			}
			ro.errorCodec(r.Context(), w, err)
			return
		}
		ro.encode(w, resp)
	})

	chain := make([]Middleware, 0, len(ro.mws)+len(mws))
	chain = append(append(chain, ro.mws...), mws...)
	ro.hr.Handler(method, path, Chain(final, chain...))
}

// ServeHTTP implements http.Handler.
func (ro *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ro.hr.ServeHTTP(w, r)
}

// errorCodec writes err as the JSON error envelope. Errors that are not a
// *goerror.Error are reported as an opaque 500.
func (ro *Router) errorCodec(ctx context.Context, w http.ResponseWriter, err error) {
	var gerr *goerror.Error
	if !errors.As(err, &gerr) {
		slog.ErrorContext(ctx, "unclassified handler error", "error", err)
		writeJSON(w, errorResponse{Message: "Internal server error"}, http.StatusInternalServerError)
		return
	}

	resp := errorResponse{Message: gerr.Msg(), Reason: gerr.Reason(), Details: gerr.Details()}

	var verr validator.V10ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Error = verr.Values()
	case len(gerr.Fields()) > 0:
		resp.Error = gerr.Fields()
	}

	writeJSON(w, resp, gerr.StatusCode())
}

// encode writes resp in the success envelope. resp may implement
// StatusCode() int, Message() string and Meta() map[string]any.
func (ro *Router) encode(w http.ResponseWriter, resp any) {
	status := http.StatusOK
	if sc, ok := resp.(interface{ StatusCode() int }); ok {
		status = sc.StatusCode()
	}
	if resp == nil || status == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	env := successResponse{Message: "request has been successfully", Data: resp}
	if m, ok := resp.(interface{ Message() string }); ok {
		env.Message = m.Message()
	}
	if m, ok := resp.(interface{ Meta() map[string]any }); ok {
		env.Meta = m.Meta()
	}

	writeJSON(w, env, status)
}

func writeJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}
