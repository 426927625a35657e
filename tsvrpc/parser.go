package tsvrpc

import (
	"bufio"
	"bytes"
	"net/textproto"
	"strconv"
	"strings"
)

// MaxHeaderSize bounds the status line plus headers of one response.
const MaxHeaderSize = 64 << 10

// DefaultMaxBodySize bounds the body of one response when the caller gives
// no limit.
const DefaultMaxBodySize = 64 << 20

var headerEnd = []byte("\r\n\r\n")

// LooksLikeResponse reports whether buf could start an HTTP response.
// It only inspects as many bytes as are available.
func LooksLikeResponse(buf []byte) bool {
	const prefix = "HTTP/"
	n := min(len(buf), len(prefix))
	return string(buf[:n]) == prefix[:n]
}

// ParseResponse parses one response from the start of buf.
//
// Returns (nil, 0, nil) when buf does not yet hold the whole response; call
// again with more bytes. On success n is the number of bytes consumed.
// The body is decoded with the column encoding named by the response's own
// Content-Type header, which may differ from the request's.
//
// maxBody <= 0 means DefaultMaxBodySize.
func ParseResponse(buf []byte, maxBody int) (resp *Response, n int, err error) {
	end := bytes.Index(buf, headerEnd)
	if end < 0 {
		if len(buf) > MaxHeaderSize {
			return nil, 0, &ParseError{Message: "response header too large"}
		}
		return nil, 0, nil
	}
	if end > MaxHeaderSize {
		return nil, 0, &ParseError{Message: "response header too large"}
	}
	bodyStart := end + len(headerEnd)

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(buf[:bodyStart])))

	line, err := tp.ReadLine()
	if err != nil {
		return nil, 0, &ParseError{Message: "reading status line", Err: err}
	}
	status, err := parseStatusLine(line)
	if err != nil {
		return nil, 0, err
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, 0, &ParseError{Message: "reading headers", Err: err}
	}

	if te := header.Get("Transfer-Encoding"); te != "" && !strings.EqualFold(te, "identity") {
		return nil, 0, &ParseError{Message: "unsupported transfer encoding " + te}
	}

	cl := header.Get("Content-Length")
	if cl == "" {
		return nil, 0, &ParseError{Message: "missing Content-Length"}
	}
	length, err := strconv.Atoi(cl)
	if err != nil || length < 0 {
		return nil, 0, &ParseError{Message: "invalid Content-Length " + cl, Err: err}
	}

	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	if length > maxBody {
		return nil, 0, &ParseError{Message: "body of " + cl + " bytes exceeds limit"}
	}

	if len(buf)-bodyStart < length {
		return nil, 0, nil
	}
	n = bodyStart + length
	body := buf[bodyStart:n]

	resp = &Response{Status: status}

	// from here on the frame boundary is known, failures leave the stream aligned
	resp.Encoding, err = EncodingForContentType(header.Get("Content-Type"))
	if err != nil {
		return resp, n, err
	}
	resp.Fields, err = DecodeFields(resp.Encoding, body)
	if err != nil {
		return resp, n, err
	}

	return resp, n, nil
}

// parseStatusLine parses "HTTP/1.1 200 OK".
func parseStatusLine(line string) (int, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, &ParseError{Message: "malformed status line " + strconv.Quote(line)}
	}
	code, _, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return 0, &ParseError{Message: "malformed status code " + strconv.Quote(code)}
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return 0, &ParseError{Message: "malformed status code " + strconv.Quote(code), Err: err}
	}
	return status, nil
}
