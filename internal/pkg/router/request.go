package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
)

// maxBodyBytes bounds JSON request bodies. Step-up payloads are a credential
// and a short code, so anything larger is rejected.
const maxBodyBytes = 64 * 1024

// Request is the *http.Request handed to a Handler.
type Request struct {
	*http.Request
}

// GetParam returns the named path parameter.
func (r *Request) GetParam(key string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(key)
}

// GetQuery returns the trimmed query value for key.
func (r *Request) GetQuery(key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// GetQueryInt32 parses an optional int32 query value. A missing value is 0.
func (r *Request) GetQueryInt32(key string) (int32, error) {
	raw := r.GetQuery(key)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, goerror.NewInvalidFormat("Invalid query " + key)
	}
	return int32(v), nil
}

// DecodeBody strictly decodes a single JSON object into dst. Unknown fields,
// trailing data and bodies over maxBodyBytes are invalid.
func (r *Request) DecodeBody(dst any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return goerror.NewInvalidFormat()
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes+1))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return goerror.NewInvalidFormat()
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return goerror.NewInvalidFormat()
	}
	if dec.InputOffset() > maxBodyBytes {
		return goerror.NewInvalidFormat("Request body too large")
	}

	return nil
}
