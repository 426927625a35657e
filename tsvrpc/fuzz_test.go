package tsvrpc

import (
	"testing"
)

// FuzzParseResponse checks the parser never panics and never claims more
// bytes than it was given.
// Run with: go test -fuzz='^FuzzParseResponse$' -fuzztime=60s ./tsvrpc
func FuzzParseResponse(f *testing.F) {
	f.Add([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	f.Add([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/tab-separated-values; colenc=B\r\nContent-Length: 14\r\n\r\ndmFsdWU=\tYQ==\r\n"))
	f.Add([]byte("HTTP/1.1 450 Logical Inconsistency\r\nContent-Type: text/tab-separated-values\r\nContent-Length: 16\r\n\r\nERROR\tno record\r\n"))
	f.Add([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/tab-separated-values; colenc=U\r\nContent-Length: 9\r\n\r\na%09b\tc\r\n"))
	f.Add([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
	f.Add([]byte("HTTP/1.1 200 OK\r\nContent-Length: -1\r\n\r\n"))
	f.Add([]byte("HTTP/1.1 2000 OK\r\n\r\n"))
	f.Add([]byte("HTTP/1.1"))
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, data []byte) {
		resp, n, err := ParseResponse(data, 1<<16)
		if n < 0 || n > len(data) {
			t.Fatalf("consumed %d of %d bytes", n, len(data))
		}
		if err == nil && n == 0 && resp != nil {
			t.Fatalf("response returned without consuming bytes")
		}
		if err != nil && n == 0 && !ShouldCloseConnection(err) {
			t.Fatalf("framing error must close the connection: %v", err)
		}
		if err != nil && n > 0 && ShouldCloseConnection(err) {
			t.Fatalf("field error after framing must keep the connection: %v", err)
		}
	})
}
