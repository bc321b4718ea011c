package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a repository failure so callers can react without
// inspecting transport details.
type Kind string

const (
	// KindNetwork means the request could not be completed.
	KindNetwork Kind = "network"
	// KindUnauthorized means the bearer credential is invalid or expired.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound means the target id no longer exists server-side.
	KindNotFound Kind = "not_found"
	// KindValidation means the server rejected the request as malformed.
	KindValidation Kind = "validation"
	// KindServer covers any other non-2xx response.
	KindServer Kind = "server"
)

// Error is returned by every Repository operation that fails.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsUnauthorized reports whether err (or any error in its chain) is an
// unauthorized Error.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsNotFound reports whether err is a not-found Error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsNetwork reports whether err is a network Error.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsValidation reports whether err is a validation Error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// kindForStatus maps an HTTP status code to an error kind.
func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthorized
	case code == http.StatusNotFound || code == http.StatusGone:
		return KindNotFound
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindServer
	}
}
