package githubapi

import (
	"errors"
	"fmt"
)

// TransportError is a network or HTTP-level failure talking to GitHub.
type TransportError struct {
	Op         string
	Status     EndpointStatus
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d (%s): %v", e.Op, e.StatusCode, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: http %d (%s)", e.Op, e.StatusCode, e.Status)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a malformed or schema-mismatched response body.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsDecode reports whether err carries a DecodeError.
func IsDecode(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}
