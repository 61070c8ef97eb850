package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies operation failures. Handlers map kinds onto HTTP status
// codes; callers decide retryability from the kind, never from the message.
type Kind int

const (
	// KindServer is an unexpected failure. Surfaced to the caller, safe to
	// retry the whole operation.
	KindServer Kind = iota
	// KindInvalidFormat is a malformed composite id or request. Fatal,
	// never retried.
	KindInvalidFormat
	// KindNotFound means the document, snapshot or project is absent. Fatal.
	KindNotFound
	// KindForbidden is an ownership/authorization failure. Fatal.
	KindForbidden
	// KindUnauthorized means the caller must re-authenticate; not retried
	// silently.
	KindUnauthorized
	// KindNetwork means a transport was unreachable. Recoverable; callers
	// fall back to cached state when available.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "INVALID_FORMAT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindNetwork:
		return "NETWORK_ERROR"
	default:
		return "SERVER_ERROR"
	}
}

// HTTPStatus maps a kind to the status code the REST surface reports.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidFormat:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified service failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind. A nil err returns nil.
func E(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain, defaulting to SERVER_ERROR.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindServer
}
