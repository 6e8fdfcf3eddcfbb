package api

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind int

const (
	// KindNetwork means the request never produced a response
	// (connectivity, DNS, timeout).
	KindNetwork Kind = iota + 1
	// KindServer is any non-2xx response other than 403.
	KindServer
	// KindInsufficientAuthority is an HTTP 403: the session lacks the
	// credits or permission for the operation. Always user-facing, never
	// retried.
	KindInsufficientAuthority
)

// Error is the transport failure returned by the Client. Status is zero for
// network errors.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		return fmt.Sprintf("network error: %s", e.Message)
	case KindInsufficientAuthority:
		return fmt.Sprintf("insufficient authority (status %d): %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("server error (status %d): %s", e.Status, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInsufficientAuthority reports whether err is an HTTP 403 transport error.
func IsInsufficientAuthority(err error) bool {
	return kindOf(err) == KindInsufficientAuthority
}

// IsNetwork reports whether err is a connectivity failure.
func IsNetwork(err error) bool {
	return kindOf(err) == KindNetwork
}

// IsServer reports whether err is a non-403 server rejection.
func IsServer(err error) bool {
	return kindOf(err) == KindServer
}

func kindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}
