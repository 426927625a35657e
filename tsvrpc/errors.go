package tsvrpc

import "errors"

// ParseError reports an inbound response envelope that cannot be parsed:
// a malformed status line or header, a missing Content-Length, or a chunked
// body.
//
// Connection handling: CLOSE connection, the stream position is lost.
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "tsvrpc: parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "tsvrpc: parse error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - parse errors indicate corrupted state
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// EncodingError reports a field that does not decode under its declared
// column encoding, or an unknown encoding. The envelope itself was framed
// correctly, so the stream is still aligned.
//
// Connection handling: Connection can be REUSED
type EncodingError struct {
	Message string
	Err     error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return "tsvrpc: " + e.Message + ": " + e.Err.Error()
	}
	return "tsvrpc: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *EncodingError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - the frame boundary is intact
func (e *EncodingError) ShouldCloseConnection() bool {
	return false
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
// Unknown error types are treated conservatively and return true.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e interface{ ShouldCloseConnection() bool }
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}
