package relayerr

import (
	"errors"
	"net/http"
)

// Kind classifies an Error.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate in this package.
	KindUnknown Kind = iota
	KindMissingParameter
	KindUpstream
	KindTransport
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMissingParameter:
		return "missing_parameter"
	case KindUpstream:
		return "upstream_failure"
	case KindTransport:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string // Shown to the caller as-is
	Err     error  // Underlying cause, may be nil
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// MissingParameter returns an error for incomplete caller input.
func MissingParameter(message string) *Error {
	return &Error{Kind: KindMissingParameter, Message: message}
}

// Upstream wraps a failure returned by Google. The message is taken from
// message when non-empty, otherwise from err.
func Upstream(message string, err error) *Error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Transport wraps a failure to reach the backend.
func Transport(err error) *Error {
	msg := "backend unreachable"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status code the backend answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMissingParameter:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
