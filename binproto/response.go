package binproto

import "bytes"

// Response represents one decoded binary response frame.
// The Magic byte is the tag; which other fields are meaningful depends on it:
//
//   - MagicError: nothing else
//   - MagicSetBulk, MagicRemoveBulk: Hits
//   - MagicGetBulk: Hits and Records (DBIndex, Key, Value, Expiration)
//   - MagicPlayScript: Hits and Records (Key, Value)
//   - anything else: Raw holds the undecoded bytes
type Response struct {
	Magic byte

	// Hits is the number of records stored or removed, or the number of
	// records that follow for get_bulk and play_script.
	Hits uint32

	Records []Record

	// Raw is set for frames this package does not decode. Callers must not
	// assume it holds exactly one frame.
	Raw []byte
}

// IsError returns true if the server reported it could not process the request.
func (r *Response) IsError() bool {
	return r.Magic == MagicError
}

// IsDecoded returns true if the frame was decoded rather than passed through raw.
func (r *Response) IsDecoded() bool {
	switch r.Magic {
	case MagicError, MagicSetBulk, MagicRemoveBulk, MagicGetBulk, MagicPlayScript:
		return true
	default:
		return false
	}
}

// Lookup returns the first record carrying key.
func (r *Response) Lookup(key []byte) (Record, bool) {
	for i := range r.Records {
		if bytes.Equal(r.Records[i].Key, key) {
			return r.Records[i], true
		}
	}
	return Record{}, false
}
