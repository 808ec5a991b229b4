package instrument

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// initLogging installs the default slog logger: JSON on stdout, mirrored to
// the OTLP log pipeline when lp is set.
func initLogging(serviceName string, lp *sdklog.LoggerProvider, maskFields []string) {
	sinks := []slog.Handler{newStdoutHandler(os.Stdout)}
	if lp != nil {
		sinks = append(sinks, otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(lp)))
	}

	slog.SetDefault(slog.New(&logHandler{
		next:     fanout(sinks),
		redactor: NewRedactor(maskFields),
		service:  serviceName,
	}))
}

func newStdoutHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				a.Key = "severity"
			case slog.SourceKey:
				src, ok := a.Value.Any().(*slog.Source)
				if !ok {
					return a
				}
				rel, found := sourcePath(src.File)
				if !found {
					return slog.Attr{}
				}
				return slog.String("file", rel+":"+strconv.Itoa(src.Line))
			}
			return a
		},
	})
}

func sourcePath(file string) (string, bool) {
	_, after, found := strings.Cut(file, "/internal/")
	if !found {
		return "", false
	}
	return "internal/" + after, true
}

// logHandler adds the service name and correlation id to every record and
// redacts secret-bearing attributes before they reach any sink.
type logHandler struct {
	next     slog.Handler
	redactor *Redactor
	service  string
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})

	out.AddAttrs(slog.String("service", h.service))
	if cID := GetCorrelationID(ctx); cID != "" {
		out.AddAttrs(slog.String("_cID", cID))
	}

	return h.next.Handle(ctx, out)
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redactedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redactedAttrs[i] = h.redact(a)
	}
	return &logHandler{next: h.next.WithAttrs(redactedAttrs), redactor: h.redactor, service: h.service}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{next: h.next.WithGroup(name), redactor: h.redactor, service: h.service}
}

func (h *logHandler) redact(a slog.Attr) slog.Attr {
	if h.redactor.Hides(a.Key) {
		return slog.String(a.Key, redacted)
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		inner := make([]slog.Attr, len(group))
		for i, ga := range group {
			inner[i] = h.redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(inner...)}
	case slog.KindString:
		if s := a.Value.String(); strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
			if v, ok := h.redactor.JSON([]byte(s)); ok {
				if b, err := json.Marshal(v); err == nil {
					return slog.String(a.Key, string(b))
				}
			}
		}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case map[string]any, map[string]string, []any:
			return slog.Any(a.Key, h.redactor.Value(v))
		case []byte:
			if red, ok := h.redactor.JSON(v); ok {
				if b, err := json.Marshal(red); err == nil {
					return slog.String(a.Key, string(b))
				}
			}
		}
	}

	return a
}

// fanout sends every record to each enabled sink and returns the first error.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
