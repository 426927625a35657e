package binproto

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pior/kt/internal/bufpool"
)

var bufferPool = bufpool.New(512, 64<<10)

// WriteRequest serializes req and writes it to w with a single Write call.
//
// Nothing is written when req is invalid. A partial write is reported by the
// writer's error; callers sharing w between requests must treat any write
// error as fatal for the stream.
func WriteRequest(w io.Writer, req *Request) error {
	bp := bufferPool.Get()
	defer bufferPool.Put(bp)

	var err error
	*bp, err = AppendRequest(*bp, req)
	if err != nil {
		return err
	}
	_, err = w.Write(*bp)
	return err
}

// AppendRequest appends the wire form of req to dst.
// The reserved flags field is always zero: the no-reply flag would leave a
// request without a response and break in-order pairing.
func AppendRequest(dst []byte, req *Request) ([]byte, error) {
	if err := validate(req); err != nil {
		return dst, err
	}

	dst = append(dst, req.Magic)
	dst = binary.BigEndian.AppendUint32(dst, 0)

	switch req.Magic {
	case MagicSetBulk:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(req.Records)))
		for i := range req.Records {
			rec := &req.Records[i]
			dst = binary.BigEndian.AppendUint16(dst, rec.DBIndex)
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(rec.Key)))
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(rec.Value)))
			dst = binary.BigEndian.AppendUint64(dst, uint64(rec.Expiration))
			dst = append(dst, rec.Key...)
			dst = append(dst, rec.Value...)
		}

	case MagicGetBulk, MagicRemoveBulk:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(req.Records)))
		for i := range req.Records {
			rec := &req.Records[i]
			dst = binary.BigEndian.AppendUint16(dst, rec.DBIndex)
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(rec.Key)))
			dst = append(dst, rec.Key...)
		}

	case MagicPlayScript:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(req.Procedure)))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(req.Records)))
		dst = append(dst, req.Procedure...)
		for i := range req.Records {
			rec := &req.Records[i]
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(rec.Key)))
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(rec.Value)))
			dst = append(dst, rec.Key...)
			dst = append(dst, rec.Value...)
		}
	}

	return dst, nil
}

func validate(req *Request) error {
	if req == nil {
		return &EncodeError{Message: "nil request"}
	}

	switch req.Magic {
	case MagicSetBulk, MagicGetBulk, MagicRemoveBulk:
	case MagicPlayScript:
		if req.Procedure == "" {
			return &EncodeError{Message: "play_script requires a procedure name"}
		}
		if !fitsUint32(len(req.Procedure)) {
			return &EncodeError{Message: "procedure name too long"}
		}
	default:
		return &EncodeError{Message: "unsupported request magic"}
	}

	if !fitsUint32(len(req.Records)) {
		return &EncodeError{Message: "too many records"}
	}
	for i := range req.Records {
		if !fitsUint32(len(req.Records[i].Key)) || !fitsUint32(len(req.Records[i].Value)) {
			return &EncodeError{Message: "record too large"}
		}
	}
	return nil
}

func fitsUint32(n int) bool {
	return uint64(n) <= math.MaxUint32
}
