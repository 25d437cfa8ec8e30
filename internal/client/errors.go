package client

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindTransport: the server could not be reached or its reply could not be read.
	KindTransport ErrorKind = iota
	KindNotFound
	KindValidation
	// KindConflict: the backend rejected a state change (e.g. completing a
	// cancelled purchase) or an idempotency key reuse.
	KindConflict
	// KindServer covers every other non-success status.
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "server"
	}
}

const transportMessage = "Unable to reach the server. Please try again."

// RequestError is returned by every client call that fails. Message is safe to
// show to an end user; the underlying cause is only reachable through Unwrap.
type RequestError struct {
	Kind    ErrorKind
	Status  int // HTTP status, 0 for transport failures
	Message string
	cause   error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.cause }

func transportError(cause error) *RequestError {
	return &RequestError{Kind: KindTransport, Message: transportMessage, cause: cause}
}

func statusError(status int, message string) *RequestError {
	kind := KindServer
	switch {
	case status == 404:
		kind = KindNotFound
	case status == 400 || status == 422:
		kind = KindValidation
	case status == 409:
		kind = KindConflict
	}
	if message == "" {
		message = fmt.Sprintf("Request failed with status %d", status)
	}
	return &RequestError{Kind: kind, Status: status, Message: message}
}

// KindOf reports the kind of a *RequestError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}
