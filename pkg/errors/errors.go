// Package errors defines the typed error model used across the API. Every
// error carries a Code, and each Code maps to fixed HTTP metadata so handlers
// never pick status codes ad hoc.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeAllocationExhausted Code = "ALLOCATION_EXHAUSTED"
	CodeRateLimit           Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

// Metadata is the fixed, per-code response policy.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, msg string, retryable, detailsAllowed bool) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  msg,
		Retryable:      retryable,
		DetailsAllowed: detailsAllowed,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:          meta(http.StatusBadRequest, "validation failed", false, true),
	CodeUnauthorized:        meta(http.StatusUnauthorized, "authentication required", false, false),
	CodeForbidden:           meta(http.StatusForbidden, "access denied", false, false),
	CodeNotFound:            meta(http.StatusNotFound, "resource not found", false, false),
	CodeConflict:            meta(http.StatusConflict, "conflict detected", false, false),
	CodeAllocationExhausted: meta(http.StatusServiceUnavailable, "member code allocation exhausted", true, false),
	CodeRateLimit:           meta(http.StatusTooManyRequests, "rate limit exceeded", false, false),
	CodeInternal:            meta(http.StatusInternalServerError, "internal server error", true, false),
	CodeDependency:          meta(http.StatusServiceUnavailable, "dependency unavailable", true, true),
}

// MetadataFor resolves the response policy for a code. Unknown codes get the
// internal-error policy so nothing ever leaks by accident.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried through the service layers. All methods
// tolerate a nil receiver so call sites can chain without guarding.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and context message to an underlying cause. The cause
// stays reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the first typed *Error in a chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
