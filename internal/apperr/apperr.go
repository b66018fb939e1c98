// Package apperr defines the error taxonomy shared across the identification
// pipeline and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP-status mapping and client messaging.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindInsufficientSpeech  Kind = "insufficient_speech"
	KindNotFound            Kind = "not_found"
	KindBusy                Kind = "busy"
	KindProviderError       Kind = "provider_error"
	KindProviderTimeout     Kind = "provider_timeout"
	KindInternal            Kind = "internal"
)

// Error is the concrete error type returned by pipeline and store code.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, apperr.KindNotFound-like sentinels) work via Kind
// comparison on two *Error values.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) *Error {
	return newf(KindInvalidInput, format, args...)
}

func InsufficientSpeech(format string, args ...any) *Error {
	return newf(KindInsufficientSpeech, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Busy(format string, args ...any) *Error {
	return newf(KindBusy, format, args...)
}

func ProviderError(cause error, format string, args ...any) *Error {
	e := newf(KindProviderError, format, args...)
	e.cause = cause
	return e
}

func ProviderTimeout(format string, args ...any) *Error {
	return newf(KindProviderTimeout, format, args...)
}

func Internal(cause error, format string, args ...any) *Error {
	e := newf(KindInternal, format, args...)
	e.cause = cause
	return e
}

// As extracts an *Error from any error chain, returning (nil, false) if
// absent.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to its HTTP status code per the error handling
// design.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindInsufficientSpeech:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBusy:
		return http.StatusConflict
	case KindProviderError, KindProviderTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
