package pipeclient

import (
	"errors"
	"fmt"
)

// Sentinel errors for session and stream failures.
var (
	// ErrSessionClosed is returned when an operation is attempted after
	// the client's session has been torn down with Close.
	ErrSessionClosed = errors.New("session is closed")

	// ErrAuthenticationFailed is returned (wrapped in a ConnectionError)
	// when SSH authentication fails.
	ErrAuthenticationFailed = errors.New("ssh authentication failed")

	// ErrConnectionTimeout is returned (wrapped in a ConnectionError)
	// when the connection attempt times out.
	ErrConnectionTimeout = errors.New("ssh connection timed out")
)

// ConnectionError reports a failure to establish the SSH connection:
// unreachable host, failed authentication, or invalid key material. It is
// surfaced to every caller waiting on the same connection attempt.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StreamError reports a remote process or stream failure during a channel
// operation. It is surfaced only to the operation that hit it; sibling
// channels on the same session are unaffected.
type StreamError struct {
	// Op is the operation that failed: "spawn", "read", or "write".
	Op string

	// Command is the remote command backing the channel.
	Command string

	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s channel: %s: %v", e.Command, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsStreamError returns true if the error is a StreamError.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

// IsSessionClosed returns true if the error indicates the session was
// already closed when the operation was attempted.
func IsSessionClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed)
}
