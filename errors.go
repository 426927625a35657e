package kt

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrClientClosed is returned by calls made after Close.
	ErrClientClosed = errors.New("kt: client closed")

	// ErrConnectionClosed fails operations still queued when the connection
	// went away. The error chain also carries the cause.
	ErrConnectionClosed = errors.New("kt: connection closed")

	// ErrInvalidArgument reports a call rejected before anything was sent.
	ErrInvalidArgument = errors.New("kt: invalid argument")

	// ErrOutcomeUnknown is returned when the caller stopped waiting before the
	// response arrived. The request may still have been applied; the
	// operation stays queued until its response is read.
	ErrOutcomeUnknown = errors.New("kt: operation outcome unknown")

	// ErrNotNumeric is returned by Increment and IncrementDouble when the
	// existing value is not a number.
	ErrNotNumeric = errors.New("kt: existing value is not numeric")

	// ErrPostprocessFailed is returned by Synchronize when the server ran
	// the postprocessing command and it failed.
	ErrPostprocessFailed = errors.New("kt: postprocessing command failed")

	// ErrServerError reports an error frame or an unexpected status code.
	ErrServerError = errors.New("kt: server error")

	// ErrProtocolMismatch means a response did not belong to the operation at
	// the head of the queue. The stream is out of step and gets closed.
	ErrProtocolMismatch = errors.New("kt: response does not match pending request")

	// ErrUnsolicitedResponse means a response arrived with no operation
	// waiting for it.
	ErrUnsolicitedResponse = errors.New("kt: response without pending request")
)

// OperationError is returned by every Client method that fails. It carries
// the procedure, the key when there is one, the TSV-RPC status when the
// server answered, and the cause.
type OperationError struct {
	Op     string
	Key    []byte
	Status int
	Err    error
}

func (e *OperationError) Error() string {
	msg := "kt: " + e.Op + " failed"
	if e.Key != nil {
		msg += ": key=" + strconv.Quote(string(e.Key))
	}
	if e.Status != 0 {
		msg += ": status=" + strconv.Itoa(e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause for error chain inspection
func (e *OperationError) Unwrap() error {
	return e.Err
}

// ConnectionError wraps I/O errors from the shared connection.
//
// Connection handling: the connection is already closed
type ConnectionError struct {
	Op  string // read or write
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("kt: connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is makes every connection error match ErrConnectionClosed.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionClosed
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
