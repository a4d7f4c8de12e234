// Package apperr classifies the failures that flow through the analysis
// pipeline. Every error falls into one kind, and the kind decides two things:
// whether the retry loop may try again, and which HTTP status the API surfaces.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind partitions errors by how the pipeline must react to them.
type Kind int

const (
	// KindUnknown is the conservative default: not retried.
	KindUnknown Kind = iota
	// KindValidation marks bad caller input. Fatal, never retried.
	KindValidation
	// KindAuth marks a rejected credential. Fatal.
	KindAuth
	// KindExtraction marks a model reply no parser could make sense of.
	// Fatal: the same reply will not parse differently on a second look.
	KindExtraction
	// KindExternal marks an upstream failure (rate limit, timeout, 5xx).
	// Retryable.
	KindExternal
)

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	// Status holds the upstream HTTP status when the error came from the
	// vision API, so retry classification can distinguish 429/5xx from 4xx.
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a fatal bad-input error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Auth builds a fatal authentication error.
func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Msg: msg}
}

// Extraction builds a fatal model-reply parse error.
func Extraction(msg string, err error) *Error {
	return &Error{Kind: KindExtraction, Msg: msg, Err: err}
}

// External builds a retryable upstream error. status may be zero for
// transport-level failures (connection refused, timeout).
func External(status int, msg string, err error) *Error {
	return &Error{Kind: KindExternal, Status: status, Msg: msg, Err: err}
}

// KindOf returns the classification of err, or KindUnknown when err was never
// classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether the retry loop may attempt err again. Only
// external-service failures qualify; a 4xx other than 429 from upstream is
// treated as permanent.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Kind != KindExternal {
		return false
	}
	if e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500 {
		return true
	}
	return false
}

// HTTPStatus maps err to the response status the API should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindExtraction:
		return http.StatusUnprocessableEntity
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the machine-readable error code for the response envelope.
func CodeOf(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindAuth:
		return "AUTH_ERROR"
	case KindExtraction:
		return "EXTRACTION_ERROR"
	case KindExternal:
		return "EXTERNAL_SERVICE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
