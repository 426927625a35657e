package binproto

import "math"

// Magic bytes identifying a binary frame. Requests and responses share the
// same magic byte for a given operation.
const (
	// MagicReplication is the replication stream magic. It is not supported;
	// a response carrying it is passed through as raw bytes.
	MagicReplication byte = 0xB1

	// MagicPlayScript calls a server-side script procedure.
	//
	// Request:  magic flags(4) nsiz(4) rnum(4) name [ksiz(4) vsiz(4) key value]*
	// Response: magic rnum(4) [ksiz(4) vsiz(4) key value]*
	MagicPlayScript byte = 0xB4

	// MagicSetBulk stores records.
	//
	// Request:  magic flags(4) rnum(4) [dbidx(2) ksiz(4) vsiz(4) xt(8) key value]*
	// Response: magic hits(4)
	MagicSetBulk byte = 0xB8

	// MagicRemoveBulk removes records.
	//
	// Request:  magic flags(4) rnum(4) [dbidx(2) ksiz(4) key]*
	// Response: magic hits(4)
	MagicRemoveBulk byte = 0xB9

	// MagicGetBulk retrieves records.
	//
	// Request:  magic flags(4) rnum(4) [dbidx(2) ksiz(4) key]*
	// Response: magic hits(4) [dbidx(2) ksiz(4) vsiz(4) xt(8) key value]*
	MagicGetBulk byte = 0xBA

	// MagicError is sent by the server when it could not process a request.
	// The frame has no payload.
	MagicError byte = 0xBF
)

// NoExpiration is the expiration sent for records stored without one.
// The server treats it as "never expires".
const NoExpiration int64 = math.MaxInt64

// DefaultMaxFrameSize bounds the size a single decoded frame may declare.
const DefaultMaxFrameSize = 64 << 20

// Field sizes in bytes.
const (
	sizeMagic = 1
	sizeFlags = 4
	sizeCount = 4
	sizeDBIdx = 2
	sizeLen   = 4
	sizeXT    = 8

	sizeHeader       = sizeMagic + sizeFlags + sizeCount
	sizeRecordHeader = sizeDBIdx + sizeLen + sizeLen + sizeXT
)

// IsMagic reports whether b is one of the magic bytes a binary response may
// start with.
func IsMagic(b byte) bool {
	switch b {
	case MagicReplication, MagicPlayScript, MagicSetBulk, MagicRemoveBulk, MagicGetBulk, MagicError:
		return true
	default:
		return false
	}
}
