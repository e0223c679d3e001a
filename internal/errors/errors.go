// Package errors provides the structured error types used across the
// transformer service. Every failure that can reach a request boundary is
// represented as a *ServiceError with a Kind, so handlers can map errors to
// HTTP status codes without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies service errors for status mapping and handling policy.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindFetch            Kind = "fetch"
	KindCompile          Kind = "compile"
	KindEmptyResult      Kind = "empty_result"
	KindUnsupportedMedia Kind = "unsupported_media"
	KindNotImplemented   Kind = "not_implemented"
	KindInternal         Kind = "internal"
)

// ServiceError is a structured error with classification and context.
type ServiceError struct {
	Kind       Kind
	Message    string
	Cause      error
	Stylesheet string
	// StatusCode overrides the kind's default HTTP status when non-zero.
	// Used to propagate an upstream status from a failed remote fetch.
	StatusCode int
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	msg := e.Message
	if e.Stylesheet != "" {
		msg = fmt.Sprintf("%s (stylesheet %q)", msg, e.Stylesheet)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches two service errors by kind.
func (e *ServiceError) Is(target error) bool {
	var t *ServiceError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithStylesheet attaches the stylesheet name the error relates to.
func (e *ServiceError) WithStylesheet(name string) *ServiceError {
	e.Stylesheet = name
	return e
}

// WithStatus overrides the HTTP status the error maps to.
func (e *ServiceError) WithStatus(code int) *ServiceError {
	e.StatusCode = code
	return e
}

// NewNotFound reports an unknown stylesheet name.
func NewNotFound(name string) *ServiceError {
	return &ServiceError{
		Kind:       KindNotFound,
		Message:    fmt.Sprintf("stylesheet %q is not found", name),
		Stylesheet: name,
	}
}

// NewInvalidInput reports a payload that is not well-formed after recovery.
func NewInvalidInput(message string, cause error) *ServiceError {
	return &ServiceError{Kind: KindInvalidInput, Message: message, Cause: cause}
}

// NewFetch reports a failed remote GET.
func NewFetch(url string, cause error) *ServiceError {
	return &ServiceError{
		Kind:    KindFetch,
		Message: fmt.Sprintf("fetching %s failed", url),
		Cause:   cause,
	}
}

// NewCompile reports a stylesheet that failed to compile.
func NewCompile(name string, cause error) *ServiceError {
	return &ServiceError{
		Kind:       KindCompile,
		Message:    "stylesheet does not compile",
		Cause:      cause,
		Stylesheet: name,
	}
}

// NewEmptyResult reports a transform that produced no output.
func NewEmptyResult(name string) *ServiceError {
	return &ServiceError{
		Kind:       KindEmptyResult,
		Message:    "transformation produced an empty result",
		Stylesheet: name,
	}
}

// NewUnsupportedMedia reports a request body content type the service does
// not accept on that route.
func NewUnsupportedMedia(contentType string) *ServiceError {
	return &ServiceError{
		Kind:    KindUnsupportedMedia,
		Message: fmt.Sprintf("content type %q not supported", contentType),
	}
}

// NewNotImplemented reports an operation that is declared but intentionally
// not implemented.
func NewNotImplemented(operation string) *ServiceError {
	return &ServiceError{
		Kind:    KindNotImplemented,
		Message: fmt.Sprintf("%s is not implemented", operation),
	}
}

// NewInternal reports an unexpected server-side failure.
func NewInternal(message string, cause error) *ServiceError {
	return &ServiceError{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf extracts the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code of its response. Caller faults
// map to 4xx, server and transform faults to 5xx. An unknown stylesheet name
// is a server fault here, not a routing miss.
func HTTPStatus(err error) int {
	var se *ServiceError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	if se.StatusCode != 0 {
		return se.StatusCode
	}
	switch se.Kind {
	case KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotImplemented:
		return http.StatusNotImplemented
	case KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
