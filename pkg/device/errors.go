package device

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates the hub has no entity with the requested id
	ErrNotFound = errors.New("entity not found")

	// ErrUnreachable indicates the hub could not be reached (timeout, refused connection, DNS)
	ErrUnreachable = errors.New("hub unreachable")

	// ErrBadResponse indicates the hub answered with a body that could not be decoded
	ErrBadResponse = errors.New("unexpected response from hub")
)

// StatusError is returned when the hub answers with a non-2xx status other than 404.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hub returned HTTP %d", e.StatusCode)
}

// Unauthorized reports whether the hub rejected the access token.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// UnreachableError carries the reason the hub could not be reached. The
// reason never contains the hub URL or the token.
type UnreachableError struct {
	Reason string
}

func (e *UnreachableError) Error() string {
	return ErrUnreachable.Error() + ": " + e.Reason
}

func (e *UnreachableError) Unwrap() error {
	return ErrUnreachable
}
