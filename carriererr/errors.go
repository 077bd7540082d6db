// Package carriererr defines the classified errors reported by every layer of
// rateshop: the transport, the token manager and the carrier clients.
//
// Each error carries exactly one Kind. Callers dispatch on the kind, either
// with errors.Is against the sentinel values or through KindOf:
//
//	quotes, err := client.GetRates(ctx, req)
//	switch {
//	case errors.Is(err, carriererr.ErrRateLimit):
//		// back off
//	case errors.Is(err, carriererr.ErrValidation):
//		// fix the request
//	}
//
// The low-level cause stays reachable through errors.Unwrap for diagnostics.
package carriererr

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind classifies a failure. It is the only key callers should use to pick a
// recovery strategy.
type Kind string

const (
	// KindAuth: credential rejected, missing, or token endpoint unreachable.
	KindAuth Kind = "auth"

	// KindNetwork: connection failure or 5xx after retries were exhausted.
	KindNetwork Kind = "network"

	// KindRateLimit: 429 from a business endpoint.
	KindRateLimit Kind = "rate_limit"

	// KindValidation: malformed caller input, detected before any network call.
	KindValidation Kind = "validation"

	// KindBusiness: the carrier rejected the semantic request.
	KindBusiness Kind = "business"

	// KindResponse: unexpected or unparseable response shape.
	KindResponse Kind = "response"

	// KindConfig: missing or invalid configuration at construction time.
	KindConfig Kind = "config"
)

var kindCodes = map[Kind]string{
	KindAuth:       "AUTH_ERROR",
	KindNetwork:    "NETWORK_ERROR",
	KindRateLimit:  "RATE_LIMIT_ERROR",
	KindValidation: "VALIDATION_ERROR",
	KindBusiness:   "CARRIER_ERROR",
	KindResponse:   "RESPONSE_ERROR",
	KindConfig:     "CONFIG_ERROR",
}

// Code returns the stable machine-readable code for the kind.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return "UNKNOWN_ERROR"
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrAuth       = &Error{kind: KindAuth}
	ErrNetwork    = &Error{kind: KindNetwork}
	ErrRateLimit  = &Error{kind: KindRateLimit}
	ErrValidation = &Error{kind: KindValidation}
	ErrBusiness   = &Error{kind: KindBusiness}
	ErrResponse   = &Error{kind: KindResponse}
	ErrConfig     = &Error{kind: KindConfig}
)

// Error is a classified failure. The kind is fixed at construction; the
// remaining fields are payload, most of them only meaningful for one kind.
type Error struct {
	kind Kind

	// Message is a human-readable description.
	Message string

	// Carrier identifies the carrier that produced the error, if any.
	Carrier string

	// StatusCode is the HTTP status of the failed exchange, 0 when no
	// response was received.
	StatusCode int

	// RetryAfterSeconds is the server's backoff hint (KindRateLimit).
	RetryAfterSeconds int

	// ValidationErrors maps a field path to its problems (KindValidation).
	ValidationErrors map[string][]string

	// BusinessCode is the carrier's own error code (KindBusiness).
	BusinessCode string

	// Body is the raw response body kept for diagnostics.
	Body string

	// Err is the underlying cause.
	Err error
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the stable code of the error's kind.
func (e *Error) Code() string { return e.kind.Code() }

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Code())
	b.WriteString("]")
	if e.Carrier != "" {
		b.WriteString(" ")
		b.WriteString(e.Carrier)
		b.WriteString(":")
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.kind)
	}
	b.WriteString(" ")
	b.WriteString(msg)
	if e.BusinessCode != "" {
		fmt.Fprintf(&b, " (code %s)", e.BusinessCode)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if len(e.ValidationErrors) > 0 {
		b.WriteString(": ")
		b.WriteString(formatFields(e.ValidationErrors))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. A target carrying
// a carrier id only matches errors from that carrier.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.kind != e.kind {
		return false
	}
	return t.Carrier == "" || t.Carrier == e.Carrier
}

// Retryable reports whether a higher layer may reasonably replay the call.
func (e *Error) Retryable() bool {
	return e.kind == KindNetwork || e.kind == KindRateLimit
}

// WithCarrier returns a copy of e attributed to carrier.
func (e *Error) WithCarrier(carrier string) *Error {
	c := *e
	c.Carrier = carrier
	return &c
}

// WithStatus returns a copy of e carrying the HTTP status code.
func (e *Error) WithStatus(code int) *Error {
	c := *e
	c.StatusCode = code
	return &c
}

// WithBody returns a copy of e carrying the raw response body.
func (e *Error) WithBody(body string) *Error {
	c := *e
	c.Body = body
	return &c
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, Message: message}
}

// Wrap creates an error of the given kind with an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, Message: message, Err: lowLevel(cause)}
}

// NewAuth creates a KindAuth error.
func NewAuth(message string, cause error) *Error {
	return Wrap(KindAuth, message, cause)
}

// NewNetwork creates a KindNetwork error. status is 0 when no response was
// received.
func NewNetwork(message string, status int, cause error) *Error {
	return &Error{kind: KindNetwork, Message: message, StatusCode: status, Err: lowLevel(cause)}
}

// NewRateLimit creates a KindRateLimit error.
func NewRateLimit(message string, retryAfterSeconds int, cause error) *Error {
	return &Error{
		kind:              KindRateLimit,
		Message:           message,
		StatusCode:        429,
		RetryAfterSeconds: retryAfterSeconds,
		Err:               lowLevel(cause),
	}
}

// NewValidation creates a KindValidation error from a field-path to messages
// map. The map is copied.
func NewValidation(message string, fields map[string][]string) *Error {
	copied := make(map[string][]string, len(fields))
	for k, v := range fields {
		copied[k] = slices.Clone(v)
	}
	return &Error{kind: KindValidation, Message: message, ValidationErrors: copied}
}

// NewBusiness creates a KindBusiness error from a carrier error entry.
func NewBusiness(code, message string, status int) *Error {
	return &Error{kind: KindBusiness, Message: message, BusinessCode: code, StatusCode: status}
}

// NewResponse creates a KindResponse error, keeping the raw body.
func NewResponse(message, body string, cause error) *Error {
	return &Error{kind: KindResponse, Message: message, Body: body, Err: lowLevel(cause)}
}

// NewConfig creates a KindConfig error.
func NewConfig(message string, cause error) *Error {
	return Wrap(KindConfig, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.kind
	}
	return ""
}

// IsKind reports whether err's chain holds an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// IsRetryable reports whether err is classified and retryable.
func IsRetryable(err error) bool {
	ce, ok := As(err)
	return ok && ce.Retryable()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if ce, ok := As(err); ok {
		return ce.StatusCode
	}
	return 0
}

// lowLevel drops classified records from a cause so that a chain never
// holds two kinds.
func lowLevel(cause error) error {
	for {
		ce, ok := cause.(*Error)
		if !ok {
			return cause
		}
		if ce == nil {
			return nil
		}
		cause = ce.Err
	}
}

func formatFields(fields map[string][]string) string {
	keys := slices.Sorted(maps.Keys(fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(fields[k], ", "))
	}
	return strings.Join(parts, "; ")
}
