package x11

import (
	"context"
	"errors"
	"fmt"
)

// Connection-establishment and connection-lifetime errors. Backpressure from
// sequence-number issuance is never one of these: the dispatcher absorbs it
// internally with a synchronizing request.

var (
	// ErrDisplayParse reports a display string the parser cannot accept.
	ErrDisplayParse = errors.New("x11: cannot parse display")

	// ErrInvalidScreen reports a requested screen index outside the range
	// the server advertised during the handshake.
	ErrInvalidScreen = errors.New("x11: invalid screen")

	// ErrSetupParse reports a malformed setup response.
	ErrSetupParse = errors.New("x11: cannot parse setup response")

	// ErrConnectionClosed is returned by every operation after Close.
	ErrConnectionClosed = errors.New("x11: connection closed")

	// ErrWriteBufferCorrupted means a writer abandoned the write pipeline
	// mid-operation, or an earlier write failed partway. Buffer contents
	// can no longer be trusted to hold whole requests, so the connection
	// is poisoned: every later acquisition fails with this error too.
	ErrWriteBufferCorrupted = errors.New("x11: write buffer corrupted")

	// ErrRequestTooLarge means a request exceeds the server's maximum
	// request size even with the extended length encoding. The request
	// was not sent; the connection remains usable.
	ErrRequestTooLarge = errors.New("x11: request exceeds server maximum")

	// ErrFDPassingFailed means the stream could not transfer descriptors
	// that a request attached.
	ErrFDPassingFailed = errors.New("x11: file descriptor passing failed")

	// ErrIDsExhausted means no resource identifiers are left: the current
	// range ran out and the server could not extend it.
	ErrIDsExhausted = errors.New("x11: resource ids exhausted")
)

// ConnectionError wraps a stream failure. Once one occurs, the connection is
// unusable; waiters and later callers all observe it.
type ConnectionError struct {
	Op  string // operation that failed: dial, setup, read, write, flush
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("x11: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection reports true: the stream state is unknown after an
// I/O failure.
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection that produced them is still usable.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether an operation's error means the
// connection must be discarded. Server-side request errors keep the
// connection usable; stream failures and a corrupted write buffer do not.
// Unknown error types are treated as fatal.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRequestTooLarge) || errors.Is(err, ErrIDsExhausted) {
		return false
	}
	// An abandoned wait for a reply or event holds no shared state; write-
	// side cancellations surface as ConnectionError or a corrupted buffer
	// instead.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}
	return true
}
