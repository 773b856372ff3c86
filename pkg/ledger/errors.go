package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable covers transport failures, timeouts, 5xx and open breakers.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrProtocol covers rejected requests and bodies that cannot be decoded.
	ErrProtocol = errors.New("ledger protocol error")
	// ErrNotConfigured is returned by clients built without endpoints.
	ErrNotConfigured = errors.New("ledger not configured")
)

// APIError carries the status and message of a rejected ledger request.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return ErrProtocol }

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

func protocol(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// IsUnavailable reports whether err means the ledger could not be reached.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotConfigured) }

// IsProtocol reports whether the ledger answered with something unusable.
func IsProtocol(err error) bool { return errors.Is(err, ErrProtocol) }
