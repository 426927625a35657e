package binproto

import (
	"errors"
	"fmt"
)

// ParseError reports an inbound byte stream that cannot be a valid frame.
//
// Connection handling: CLOSE connection, the stream position is lost.
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "binproto: parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "binproto: parse error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - parse errors indicate corrupted state
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// FrameTooLargeError is returned by the Decoder when a frame declares more
// bytes than its MaxFrameSize allows. A stream that desynchronized usually
// produces one of these quickly, since random bytes decode as huge lengths.
//
// Connection handling: CLOSE connection
type FrameTooLargeError struct {
	Magic    byte
	Declared uint64
	Limit    int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("binproto: frame 0x%02X declares %d bytes, limit is %d", e.Magic, e.Declared, e.Limit)
}

// ShouldCloseConnection returns true - the stream cannot be resynchronized
func (e *FrameTooLargeError) ShouldCloseConnection() bool {
	return true
}

// EncodeError is returned when a request cannot be represented on the wire.
// Nothing has been written when it is returned.
//
// Connection handling: Connection is still valid
type EncodeError struct {
	Message string
}

func (e *EncodeError) Error() string {
	return "binproto: " + e.Message
}

// ShouldCloseConnection returns false - the request was rejected before writing
func (e *EncodeError) ShouldCloseConnection() bool {
	return false
}

// ErrorWithConnectionState is implemented by all errors of this package.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
// Unknown error types are treated conservatively and return true.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}
