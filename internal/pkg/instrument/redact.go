package instrument

import (
	"encoding/json"
	"net/http"
	"strings"
)

const redacted = "***"

// alwaysRedacted are keys that carry step-up secrets. They are hidden no
// matter what instrument.log_mask_fields says.
var alwaysRedacted = []string{"code", "otp", "credential", "id_token", "token", "authorization", "cookie"}

// Redactor hides values whose key matches a configured name, case-insensitively.
type Redactor struct {
	keys map[string]struct{}
}

// NewRedactor returns a Redactor for the built-in secret keys plus extra.
func NewRedactor(extra []string) *Redactor {
	r := &Redactor{keys: make(map[string]struct{}, len(alwaysRedacted)+len(extra))}
	for _, k := range append(append([]string{}, alwaysRedacted...), extra...) {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			r.keys[k] = struct{}{}
		}
	}
	return r
}

// Hides reports whether values stored under key are redacted.
func (r *Redactor) Hides(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

// Value walks decoded JSON (maps and slices) and redacts matching keys.
func (r *Redactor) Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if r.Hides(k) {
				out[k] = redacted
				continue
			}
			out[k] = r.Value(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = inner
		}
		return r.Value(out)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = r.Value(inner)
		}
		return out
	default:
		return v
	}
}

// JSON decodes b and returns its redacted form. ok is false when b is not JSON.
func (r *Redactor) JSON(b []byte) (any, bool) {
	if len(b) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return r.Value(v), true
}

// Header returns a copy of h with matching headers redacted.
func (r *Redactor) Header(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if r.Hides(k) {
			out.Set(k, redacted)
		}
	}
	return out
}
