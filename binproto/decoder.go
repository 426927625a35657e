package binproto

import (
	"encoding/binary"
	"errors"
)

// errShortFrame signals that the buffered bytes end inside a frame.
var errShortFrame = errors.New("short frame")

// Decoder reconstructs complete response frames from an arbitrarily chunked
// byte stream. The zero value is ready to use.
//
// Decoder is not safe for concurrent use; inbound frames are decoded
// sequentially by one reader.
type Decoder struct {
	// MaxFrameSize bounds the byte count a frame may declare.
	// Zero means DefaultMaxFrameSize.
	MaxFrameSize int

	buf []byte
	off int
}

// Feed appends p to the decoder's buffer. p is copied.
func (d *Decoder) Feed(p []byte) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	} else if d.off > 0 && d.off >= cap(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the bytes fed but not yet consumed.
// The slice is only valid until the next call to Feed, Next or Discard.
func (d *Decoder) Buffered() []byte {
	return d.buf[d.off:]
}

// Discard consumes n buffered bytes. It is used when another decoder parsed
// a frame sharing the stream.
func (d *Decoder) Discard(n int) {
	if n > len(d.buf)-d.off {
		n = len(d.buf) - d.off
	}
	d.off += n
}

// Reset drops all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
}

// Next decodes the next complete frame.
//
// Returns (nil, nil) when the buffer is empty or ends inside a frame; the
// partial frame stays buffered and decoding restarts from its first byte on
// the next call. Returns a *FrameTooLargeError when a frame declares more
// than MaxFrameSize bytes; the stream cannot be recovered after that.
//
// Frames with an unrecognized magic byte are passed through: the returned
// Response holds every buffered byte in Raw.
func (d *Decoder) Next() (*Response, error) {
	buf := d.Buffered()
	if len(buf) == 0 {
		return nil, nil
	}

	limit := d.MaxFrameSize
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}

	c := cursor{buf: buf, pos: sizeMagic, limit: limit, magic: buf[0]}
	resp, err := c.frame()
	if errors.Is(err, errShortFrame) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.off += c.pos
	return resp, nil
}

// cursor reads one frame out of buf. Every accessor fails with errShortFrame
// when buf ends early, leaving the caller free to retry from the start.
type cursor struct {
	buf   []byte
	pos   int
	limit int
	magic byte
}

func (c *cursor) frame() (*Response, error) {
	switch c.magic {
	case MagicError:
		return &Response{Magic: MagicError}, nil

	case MagicSetBulk, MagicRemoveBulk:
		hits, err := c.uint32()
		if err != nil {
			return nil, err
		}
		return &Response{Magic: c.magic, Hits: hits}, nil

	case MagicGetBulk:
		return c.records(true)

	case MagicPlayScript:
		return c.records(false)

	default:
		raw := make([]byte, len(c.buf))
		copy(raw, c.buf)
		c.pos = len(c.buf)
		return &Response{Magic: c.magic, Raw: raw}, nil
	}
}

// records decodes a counted list of records. get_bulk records carry the
// dbidx and xt fields, play_script records do not.
//
// The frame is walked once without copying to check it is complete; keys and
// values are only allocated when it is.
func (c *cursor) records(full bool) (*Response, error) {
	count, err := c.uint32()
	if err != nil {
		return nil, err
	}

	minRecord := sizeLen + sizeLen
	if full {
		minRecord = sizeRecordHeader
	}
	if err := c.declare(uint64(count) * uint64(minRecord)); err != nil {
		return nil, err
	}

	start := c.pos
	for range count {
		if _, err := c.record(full, false); err != nil {
			return nil, err
		}
	}
	c.pos = start

	resp := &Response{Magic: c.magic, Hits: count}
	if count > 0 {
		resp.Records = make([]Record, 0, count)
	}
	for range count {
		rec, err := c.record(full, true)
		if err != nil {
			return nil, err
		}
		resp.Records = append(resp.Records, rec)
	}

	return resp, nil
}

// record reads one record. Unless copied, it only advances past it.
func (c *cursor) record(full, copied bool) (Record, error) {
	var rec Record
	var err error
	if full {
		if rec.DBIndex, err = c.uint16(); err != nil {
			return rec, err
		}
	}
	ksiz, err := c.uint32()
	if err != nil {
		return rec, err
	}
	vsiz, err := c.uint32()
	if err != nil {
		return rec, err
	}
	if full {
		xt, err := c.uint64()
		if err != nil {
			return rec, err
		}
		rec.Expiration = int64(xt)
	}
	if rec.Key, err = c.bytes(ksiz, copied); err != nil {
		return rec, err
	}
	if rec.Value, err = c.bytes(vsiz, copied); err != nil {
		return rec, err
	}
	return rec, nil
}

// declare checks that n more bytes would keep the frame within the limit.
func (c *cursor) declare(n uint64) error {
	if uint64(c.pos)+n > uint64(c.limit) {
		return &FrameTooLargeError{Magic: c.magic, Declared: uint64(c.pos) + n, Limit: c.limit}
	}
	return nil
}

func (c *cursor) need(n int) error {
	if len(c.buf)-c.pos < n {
		return errShortFrame
	}
	return nil
}

func (c *cursor) uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) uint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) bytes(n uint32, copied bool) ([]byte, error) {
	if err := c.declare(uint64(n)); err != nil {
		return nil, err
	}
	if err := c.need(int(n)); err != nil {
		return nil, err
	}
	var b []byte
	if copied {
		b = make([]byte, n)
		copy(b, c.buf[c.pos:])
	}
	c.pos += int(n)
	return b, nil
}
