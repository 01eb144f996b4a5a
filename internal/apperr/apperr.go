// Package apperr defines the error kinds shared across the engine.
//
// Errors are classified into kinds so that the API layer can map them to
// HTTP status codes and the background workers can decide whether an
// operation is retryable. Every error carries enough context for the audit
// trail without leaking tenant internals to the caller.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Base error values usable with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyUsed       = errors.New("already used")
	ErrExpired           = errors.New("expired")
	ErrRateLimited       = errors.New("rate limited")
	ErrCrossTenant       = errors.New("cross-tenant access")
	ErrDataIntegrity     = errors.New("data integrity violation")
	ErrUpstream          = errors.New("upstream failure")
	ErrInternal          = errors.New("internal error")
)

// Kind categorizes an error for HTTP mapping and retry decisions.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindAuthentication    Kind = "authentication_error"
	KindPermission        Kind = "permission_error"
	KindCrossTenant       Kind = "cross_tenant_access"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindAlreadyUsed       Kind = "already_used"
	KindExpired           Kind = "expired"
	KindRateLimited       Kind = "rate_limited"
	KindUpstreamTransient Kind = "upstream_transient"
	KindUpstreamPermanent Kind = "upstream_permanent"
	KindDataIntegrity     Kind = "data_integrity"
	KindInternal          Kind = "internal"
)

// Error is the structured error used throughout the engine.
type Error struct {
	Kind      Kind
	Op        string // operation that failed, e.g. "documents.validate"
	Message   string
	Field     string // offending field for validation errors
	Err       error  // wrapped cause
	Details   map[string]any
	Timestamp time.Time
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps kinds onto the base error values so callers can use errors.Is
// without knowing about *Error.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnauthenticated:
		return e.Kind == KindAuthentication
	case ErrForbidden:
		return e.Kind == KindPermission || e.Kind == KindCrossTenant
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrInvalidTransition:
		return e.Kind == KindInvalidTransition
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrAlreadyUsed:
		return e.Kind == KindAlreadyUsed
	case ErrExpired:
		return e.Kind == KindExpired
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrCrossTenant:
		return e.Kind == KindCrossTenant
	case ErrDataIntegrity:
		return e.Kind == KindDataIntegrity
	case ErrUpstream:
		return e.Kind == KindUpstreamTransient || e.Kind == KindUpstreamPermanent
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return errors.Is(e.Err, target)
}

// New creates a structured error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Timestamp: time.Now()}
}

// Wrap wraps a cause with kind and operation context.
func Wrap(kind Kind, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err, Timestamp: time.Now()}
}

// WithField attaches the offending field name (validation errors).
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetails attaches machine-readable details for the error envelope.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Retryable reports whether the error is worth retrying with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindUpstreamTransient
}

// HTTPStatus maps an error to the HTTP status code defined by the API
// contract. Cross-tenant access intentionally maps to 404 to avoid
// resource enumeration.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindCrossTenant, KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindAlreadyUsed, KindExpired:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamTransient:
		return http.StatusBadGateway
	case KindUpstreamPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
