// Package goerror carries the classification of an error (type, code and
// machine readable reason) from the usecases to the HTTP error envelope.
package goerror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned by repositories for a missing row or key.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned by repositories for a unique violation.
	ErrConflict = errors.New("resource conflict")
)

// Type is the broad class of an error.
type Type int

const (
	TypeServer Type = iota
	TypeBusiness
	TypeValidation
)

func (t Type) String() string {
	switch t {
	case TypeServer:
		return "ERROR_TYPE_SERVER"
	case TypeBusiness:
		return "ERROR_TYPE_BUSINESS"
	case TypeValidation:
		return "ERROR_TYPE_VALIDATION"
	}
	return "ERROR_TYPE_UNKNOWN"
}

// Code selects the HTTP status of an error.
type Code int

const (
	CodeInternal Code = iota
	CodeInvalidFormat
	CodeInvalidInput
	CodeNotFound
	CodeConflict
	CodeTooManyRequest
	CodeUnauthorized
	CodeForbidden
	CodeTimeout
	CodeGone
	CodeServiceUnavailable
)

var codeTable = map[Code]struct {
	name   string
	status int
}{
	CodeInternal:           {"ERROR_CODE_INTERNAL", http.StatusInternalServerError},
	CodeInvalidFormat:      {"ERROR_CODE_INVALID_FORMAT", http.StatusBadRequest},
	CodeInvalidInput:       {"ERROR_CODE_INVALID_INPUT", http.StatusUnprocessableEntity},
	CodeNotFound:           {"ERROR_CODE_NOT_FOUND", http.StatusNotFound},
	CodeConflict:           {"ERROR_CODE_CONFLICT", http.StatusConflict},
	CodeTooManyRequest:     {"ERROR_CODE_TOO_MANY_REQUESTS", http.StatusTooManyRequests},
	CodeUnauthorized:       {"ERROR_CODE_UNAUTHORIZED", http.StatusUnauthorized},
	CodeForbidden:          {"ERROR_CODE_FORBIDDEN", http.StatusForbidden},
	CodeTimeout:            {"ERROR_CODE_TIMEOUT", http.StatusRequestTimeout},
	CodeGone:               {"ERROR_CODE_GONE", http.StatusGone},
	CodeServiceUnavailable: {"ERROR_CODE_SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
}

func (c Code) String() string {
	if e, ok := codeTable[c]; ok {
		return e.name
	}
	return codeTable[CodeInternal].name
}

// Status returns the HTTP status for c.
func (c Code) Status() int {
	if e, ok := codeTable[c]; ok {
		return e.status
	}
	return http.StatusInternalServerError
}

// Error is a classified error. msg is shown to clients; the wrapped err is
// only logged.
type Error struct {
	err     error
	msg     string
	errType Type
	code    Code
	reason  string
	fields  map[string]string
	details map[string]any
}

func (e *Error) Error() string {
	switch {
	case e.err != nil:
		return e.err.Error()
	case e.msg != "":
		return e.msg
	case e.errType == TypeValidation:
		return "Validation violation"
	case e.errType == TypeBusiness:
		return "Logical business not meet with requirement"
	}
	return "Internal error"
}

// String is the verbose form used in logs.
func (e *Error) String() string {
	return fmt.Sprintf("type=%s code=%s reason=%q msg=%q cause=%v", e.errType, e.code, e.reason, e.msg, e.err)
}

func (e *Error) Msg() string { return e.msg }
func (e *Error) Type() Type { return e.errType }
func (e *Error) Code() Code { return e.code }
func (e *Error) Reason() string { return e.reason }
func (e *Error) Fields() map[string]string { return e.fields }
func (e *Error) Details() map[string]any { return e.details }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) StatusCode() int { return e.code.Status() }

// NewServer hides err behind a generic 500 message.
func NewServer(err error) error {
	return &Error{err: err, msg: "Internal server error", errType: TypeServer, code: CodeInternal}
}

// NewServiceUnavailable reports a backing store or broker that could not be
// reached.
func NewServiceUnavailable(err error) error {
	return &Error{
		err:     err,
		msg:     "Service temporarily unavailable",
		errType: TypeServer,
		code:    CodeServiceUnavailable,
		reason:  "service_unavailable",
	}
}

func NewBusiness(msg string, code Code) error {
	return &Error{msg: msg, errType: TypeBusiness, code: code}
}

// NewReason is NewBusiness plus a reason string clients can switch on, and
// optional details given as key/value pairs. Non-string keys and a trailing
// key without value are dropped.
func NewReason(msg string, code Code, reason string, kv ...any) error {
	e := &Error{msg: msg, errType: TypeBusiness, code: code, reason: reason}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if e.details == nil {
			e.details = make(map[string]any, len(kv)/2)
		}
		e.details[key] = kv[i+1]
	}
	return e
}

// NewInvalidInput wraps a validator error, or builds field errors from
// field/message pairs when err is nil. An odd pair count is treated as a
// malformed request.
func NewInvalidInput(err error, kv ...string) error {
	if err != nil {
		return &Error{err: err, msg: "Validation error", errType: TypeValidation, code: CodeInvalidInput}
	}
	if len(kv)%2 != 0 {
		return NewInvalidFormat()
	}

	fields := make(map[string]string, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return &Error{msg: "Validation error", errType: TypeValidation, code: CodeInvalidInput, fields: fields}
}

// NewInvalidFormat reports an undecodable request. The first msg, if any,
// replaces the default message.
func NewInvalidFormat(msg ...string) error {
	m := "Invalid request body"
	if len(msg) > 0 {
		m = msg[0]
	}
	return &Error{msg: m, errType: TypeValidation, code: CodeInvalidFormat}
}

// CodeOf returns the Code of the first *Error in err's chain, else CodeInternal.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.code
	}
	return CodeInternal
}

// ReasonOf returns the reason of the first *Error in err's chain, else "".
func ReasonOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.reason
	}
	return ""
}
