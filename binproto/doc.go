// Package binproto implements the Kyoto Tycoon binary protocol.
//
// The binary protocol covers the bulk record operations (set_bulk, get_bulk,
// remove_bulk) and script invocation (play_script). Frames carry no request
// identifier: responses arrive in the order requests were written, and the
// caller is responsible for pairing them.
//
// # Core Types
//
//   - Record: key, value, expiration and database index
//   - Request: one outbound frame (magic byte plus records or script parameters)
//   - Response: one inbound frame, a single tagged variant keyed by its magic byte
//
// # Serialization
//
// WriteRequest serializes a request with a single Write call:
//
//	req := binproto.NewGetBulk(0, []byte("key1"), []byte("key2"))
//	if err := binproto.WriteRequest(conn, req); err != nil {
//	    return err
//	}
//
// # Decoding
//
// Decoder is fed arbitrary chunks of the inbound stream and yields complete
// frames only. Next returns (nil, nil) until a whole frame is buffered; the
// partial bytes stay buffered and parsing restarts from the frame start on the
// next call:
//
//	var dec binproto.Decoder
//	dec.Feed(chunk)
//	for {
//	    resp, err := dec.Next()
//	    if err != nil {
//	        return err // stream is corrupt, close the connection
//	    }
//	    if resp == nil {
//	        break // need more bytes
//	    }
//	    handle(resp)
//	}
//
// All integers on the wire are big-endian.
package binproto
