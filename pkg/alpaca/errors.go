package alpaca

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned before any dial when the key or secret is empty.
	ErrMissingCredentials = errors.New("alpaca credentials not configured")

	// ErrUnauthorized is terminal: the stream rejected the credentials and is not retried.
	ErrUnauthorized = errors.New("stream authentication failed: unauthorized")

	// ErrReconnectExhausted is terminal: every reconnect attempt in the budget was used.
	ErrReconnectExhausted = errors.New("stream reconnect attempts exhausted")
)

// StreamError is an error event reported by the stream after authentication.
type StreamError struct {
	Code    int
	Message string
}

func (e *StreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("stream error %d: %s", e.Code, e.Message)
	}
	return "stream error: " + e.Message
}
