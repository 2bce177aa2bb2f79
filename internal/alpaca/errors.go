package alpaca

import (
	"errors"
	"fmt"
)

// Gateway errors. ErrUnavailable wraps transport-level failures so callers can
// distinguish "the broker said no" from "the broker could not be reached".
var (
	ErrUnavailable   = errors.New("broker unavailable")
	ErrOrderTerminal = errors.New("order already in terminal state")
)

// APIError is a non-success response from the broker. The raw payload is kept
// so rejection reasons reach the caller untouched.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker rejected request: status %d: %s", e.StatusCode, e.Body)
}

// IsUnavailable reports whether err is a transport-level failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRejected reports whether err carries a broker rejection payload.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
