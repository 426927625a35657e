package tsvrpc

import (
	"io"
	"strconv"

	"github.com/pior/kt/internal/bufpool"
)

// PathPrefix is prepended to the procedure name to build the request path.
const PathPrefix = "/rpc/"

// Request is one TSV-RPC call. Fields hold unencoded bytes; Encoding is
// applied when the request is written, so the same builder serves every
// column encoding.
type Request struct {
	Procedure string
	Encoding  ColumnEncoding
	Fields    []Field
}

// NewRequest creates a request for procedure using enc.
func NewRequest(procedure string, enc ColumnEncoding) *Request {
	return &Request{Procedure: procedure, Encoding: enc}
}

// Add appends a field.
func (r *Request) Add(name string, value []byte) *Request {
	r.Fields = append(r.Fields, Field{Name: []byte(name), Value: value})
	return r
}

// AddString appends a field with a text value.
func (r *Request) AddString(name, value string) *Request {
	return r.Add(name, []byte(value))
}

// AddInt appends a field with a decimal integer value.
func (r *Request) AddInt(name string, value int64) *Request {
	return r.Add(name, strconv.AppendInt(nil, value, 10))
}

// AddFloat appends a field with a decimal floating point value.
func (r *Request) AddFloat(name string, value float64) *Request {
	return r.Add(name, strconv.AppendFloat(nil, value, 'f', -1, 64))
}

// AddFlag appends a field whose presence is the value (atomic, hard).
func (r *Request) AddFlag(name string) *Request {
	return r.Add(name, []byte{})
}

// AddPrefixed appends a field named '_' + name, the convention for bulk keys
// and script parameters.
func (r *Request) AddPrefixed(name, value []byte) *Request {
	r.Fields = append(r.Fields, Field{Name: PrefixedName(name), Value: value})
	return r
}

// PrefixedName returns '_' + name.
func PrefixedName(name []byte) []byte {
	out := make([]byte, 0, len(name)+1)
	out = append(out, '_')
	return append(out, name...)
}

// Path returns the request path, /rpc/<procedure>.
func (r *Request) Path() string {
	return PathPrefix + r.Procedure
}

var bufferPool = bufpool.New(512, 64<<10)

// WriteRequest writes the full HTTP/1.1 envelope and body with a single Write.
func WriteRequest(w io.Writer, host string, req *Request) error {
	bp := bufferPool.Get()
	defer bufferPool.Put(bp)

	*bp = AppendRequest(*bp, host, req)
	_, err := w.Write(*bp)
	return err
}

// AppendRequest appends the HTTP/1.1 envelope of req to dst:
//
//	POST /rpc/<procedure> HTTP/1.1
//	Host: <host>
//	Content-Type: text/tab-separated-values[; colenc=B|U]
//	Content-Length: <n>
//
//	<name TAB value CRLF>*
func AppendRequest(dst []byte, host string, req *Request) []byte {
	body := EncodeFields(req.Encoding, req.Fields)

	dst = append(dst, "POST "...)
	dst = append(dst, req.Path()...)
	dst = append(dst, " HTTP/1.1\r\n"...)
	if host != "" {
		dst = append(dst, "Host: "...)
		dst = append(dst, host...)
		dst = append(dst, "\r\n"...)
	}
	dst = append(dst, "Content-Type: "...)
	dst = append(dst, req.Encoding.ContentType()...)
	dst = append(dst, "\r\nContent-Length: "...)
	dst = strconv.AppendInt(dst, int64(len(body)), 10)
	dst = append(dst, "\r\n\r\n"...)
	return append(dst, body...)
}
