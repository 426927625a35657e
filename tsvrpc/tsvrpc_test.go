package tsvrpc

import (
	"bytes"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnEncodingRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("plain"),
		[]byte("tab\there"),
		[]byte("line\r\nbreak\n"),
		[]byte("spaces and + plus % percent = equals"),
		[]byte("日本語のキー"),
		{0x00, 0xFF, 0x80, '\t', '\n', 0x7F},
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for range 50 {
		b := make([]byte, rng.IntN(64))
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		inputs = append(inputs, b)
	}

	for _, enc := range []ColumnEncoding{Base64, URL} {
		t.Run(enc.String(), func(t *testing.T) {
			for _, in := range inputs {
				encoded := enc.Encode(in)
				assert.False(t, bytes.ContainsAny(encoded, "\t\r\n"), "encoded form must be TSV safe: %q", encoded)

				decoded, err := enc.Decode(encoded)
				require.NoError(t, err)
				assert.Equal(t, in, decoded)
			}
		})
	}
}

func TestColumnEncodingContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		expected    ColumnEncoding
		wantErr     bool
	}{
		{name: "raw", contentType: "text/tab-separated-values", expected: Raw},
		{name: "base64", contentType: "text/tab-separated-values; colenc=B", expected: Base64},
		{name: "url", contentType: "text/tab-separated-values; colenc=U", expected: URL},
		{name: "lowercase letter", contentType: "text/tab-separated-values; colenc=b", expected: Base64},
		{name: "no space", contentType: "text/tab-separated-values;colenc=U", expected: URL},
		{name: "empty", contentType: "", expected: Raw},
		{name: "other media type", contentType: "text/plain", wantErr: true},
		{name: "unknown colenc", contentType: "text/tab-separated-values; colenc=Q", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := EncodingForContentType(tt.contentType)
			if tt.wantErr {
				var encErr *EncodingError
				require.ErrorAs(t, err, &encErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, enc)
		})
	}

	for _, enc := range []ColumnEncoding{Base64, URL, Raw} {
		got, err := EncodingForContentType(enc.ContentType())
		require.NoError(t, err)
		assert.Equal(t, enc, got)
	}
}

func TestParseColumnEncoding(t *testing.T) {
	for name, expected := range map[string]ColumnEncoding{
		"":       Base64,
		"base64": Base64,
		"B":      Base64,
		"url":    URL,
		"U":      URL,
		"raw":    Raw,
	} {
		got, err := ParseColumnEncoding(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, got, name)
	}

	_, err := ParseColumnEncoding("gzip")
	assert.Error(t, err)
}

func TestEncodeFields(t *testing.T) {
	fields := []Field{
		{Name: []byte("key"), Value: []byte("a b")},
		{Name: []byte("value"), Value: []byte("x\ty")},
		{Name: []byte("xt"), Value: []byte("100")},
	}

	tests := []struct {
		name     string
		enc      ColumnEncoding
		expected string
	}{
		{
			name:     "raw",
			enc:      Raw,
			expected: "key\ta b\r\nvalue\tx\ty\r\nxt\t100\r\n",
		},
		{
			name:     "base64",
			enc:      Base64,
			expected: "a2V5\tYSBi\r\ndmFsdWU=\teAl5\r\neHQ=\tMTAw\r\n",
		},
		{
			name:     "url",
			enc:      URL,
			expected: "key\ta+b\r\nvalue\tx%09y\r\nxt\t100\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(EncodeFields(tt.enc, fields)))
		})
	}
}

func TestDecodeFields(t *testing.T) {
	tests := []struct {
		name     string
		enc      ColumnEncoding
		body     string
		expected []Field
	}{
		{
			name: "crlf lines",
			enc:  Raw,
			body: "num\t2\r\n_a\t1\r\n",
			expected: []Field{
				{Name: []byte("num"), Value: []byte("2")},
				{Name: []byte("_a"), Value: []byte("1")},
			},
		},
		{
			name: "lf lines without trailing newline",
			enc:  Raw,
			body: "a\t1\nb\t2",
			expected: []Field{
				{Name: []byte("a"), Value: []byte("1")},
				{Name: []byte("b"), Value: []byte("2")},
			},
		},
		{
			name: "tab-less line yields empty value",
			enc:  Raw,
			body: "flag\r\nk\tv\r\n",
			expected: []Field{
				{Name: []byte("flag"), Value: []byte{}},
				{Name: []byte("k"), Value: []byte("v")},
			},
		},
		{
			name: "value keeps later tabs",
			enc:  Raw,
			body: "k\tv1\tv2\n",
			expected: []Field{
				{Name: []byte("k"), Value: []byte("v1\tv2")},
			},
		},
		{
			name: "blank lines skipped",
			enc:  URL,
			body: "\r\nk%20x\tv%0A\r\n\r\n",
			expected: []Field{
				{Name: []byte("k x"), Value: []byte("v\n")},
			},
		},
		{
			name: "base64",
			enc:  Base64,
			body: "dmFsdWU=\teAl5\n",
			expected: []Field{
				{Name: []byte("value"), Value: []byte("x\ty")},
			},
		},
		{
			name:     "empty body",
			enc:      Base64,
			body:     "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := DecodeFields(tt.enc, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fields)
		})
	}
}

func TestDecodeFieldsInvalidBase64(t *testing.T) {
	_, err := DecodeFields(Base64, []byte("!!!\tAAAA\n"))
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.False(t, ShouldCloseConnection(err))
}

func TestFieldsRoundTrip(t *testing.T) {
	fields := []Field{
		{Name: []byte("_k\t1"), Value: []byte("v\r\n1")},
		{Name: []byte("_k\t1"), Value: []byte{0xFF, 0x00}},
		{Name: []byte("DB"), Value: []byte("casket.kch")},
	}

	for _, enc := range []ColumnEncoding{Base64, URL} {
		got, err := DecodeFields(enc, EncodeFields(enc, fields))
		require.NoError(t, err)
		assert.Equal(t, fields, got, enc.String())
	}
}

func TestWriteRequest(t *testing.T) {
	req := NewRequest("set", URL).
		AddString("key", "k").
		Add("value", []byte("a b")).
		AddInt("xt", -1700000000)

	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, "localhost:1978", req))

	body := "key\tk\r\nvalue\ta+b\r\nxt\t-1700000000\r\n"
	expected := "POST /rpc/set HTTP/1.1\r\n" +
		"Host: localhost:1978\r\n" +
		"Content-Type: text/tab-separated-values; colenc=U\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body
	assert.Equal(t, expected, buf.String())
}

func TestRequestBuilders(t *testing.T) {
	req := NewRequest("increment_double", Raw).
		AddFloat("num", 1.5).
		AddFlag("atomic").
		AddPrefixed([]byte("key"), []byte("v"))

	assert.Equal(t, "/rpc/increment_double", req.Path())
	assert.Equal(t, []Field{
		{Name: []byte("num"), Value: []byte("1.5")},
		{Name: []byte("atomic"), Value: []byte{}},
		{Name: []byte("_key"), Value: []byte("v")},
	}, req.Fields)
}

func buildResponse(status, contentType, body string) string {
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 " + status + "\r\n")
	sb.WriteString("Server: KyotoTycoon/0.9.56\r\n")
	if contentType != "" {
		sb.WriteString("Content-Type: " + contentType + "\r\n")
	}
	sb.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
	sb.WriteString(body)
	return sb.String()
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		status   int
		encoding ColumnEncoding
		fields   []Field
	}{
		{
			name:     "ok with base64 fields",
			raw:      buildResponse("200 OK", "text/tab-separated-values; colenc=B", "dmFsdWU=\tdg==\r\n"),
			status:   200,
			encoding: Base64,
			fields:   []Field{{Name: []byte("value"), Value: []byte("v")}},
		},
		{
			name:     "logical failure with raw error field",
			raw:      buildResponse("450 Logical Inconsistency", "text/tab-separated-values", "ERROR\tno record\n"),
			status:   450,
			encoding: Raw,
			fields:   []Field{{Name: []byte("ERROR"), Value: []byte("no record")}},
		},
		{
			name:     "response encoding differs from request",
			raw:      buildResponse("200 OK", "text/tab-separated-values; colenc=U", "num\t1\n_a%09b\t\n"),
			status:   200,
			encoding: URL,
			fields: []Field{
				{Name: []byte("num"), Value: []byte("1")},
				{Name: []byte("_a\tb"), Value: []byte{}},
			},
		},
		{
			name:     "empty body without content type",
			raw:      buildResponse("200 OK", "", ""),
			status:   200,
			encoding: Raw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, n, err := ParseResponse([]byte(tt.raw), 0)
			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, len(tt.raw), n)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.encoding, resp.Encoding)
			assert.Equal(t, tt.fields, resp.Fields)
		})
	}
}

func TestParseResponseIncremental(t *testing.T) {
	raw := buildResponse("200 OK", "text/tab-separated-values; colenc=B", "bnVt\tMw==\r\n")
	trailing := "HTTP/1.1 200 OK\r\n"
	stream := []byte(raw + trailing)

	for i := 0; i < len(raw); i++ {
		resp, n, err := ParseResponse(stream[:i], 0)
		require.NoError(t, err, "prefix %d", i)
		require.Nil(t, resp, "prefix %d", i)
		require.Zero(t, n)
	}

	resp, n, err := ParseResponse(stream, 0)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n, "must not consume the next response")

	num, err := resp.Int("num")
	require.NoError(t, err)
	assert.EqualValues(t, 3, num)
}

func TestParseResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "garbage status line", raw: "NOPE\r\n\r\n"},
		{name: "bad status code", raw: "HTTP/1.1 2x0 OK\r\nContent-Length: 0\r\n\r\n"},
		{name: "missing content length", raw: "HTTP/1.1 200 OK\r\n\r\n"},
		{name: "chunked", raw: "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n"},
		{name: "negative length", raw: "HTTP/1.1 200 OK\r\nContent-Length: -1\r\n\r\n"},
		{name: "body over limit", raw: "HTTP/1.1 200 OK\r\nContent-Length: 2000\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseResponse([]byte(tt.raw), 1024)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.True(t, ShouldCloseConnection(err))
		})
	}
}

func TestParseResponseBadFieldKeepsFrame(t *testing.T) {
	raw := buildResponse("200 OK", "text/tab-separated-values; colenc=B", "***\n")
	resp, n, err := ParseResponse([]byte(raw), 0)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, 200, resp.Status)
}

func TestParseResponseHeaderTooLarge(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Filler: " + strings.Repeat("a", MaxHeaderSize)
	_, _, err := ParseResponse([]byte(raw), 0)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestLooksLikeResponse(t *testing.T) {
	assert.True(t, LooksLikeResponse([]byte("H")))
	assert.True(t, LooksLikeResponse([]byte("HTTP/1.1 200")))
	assert.False(t, LooksLikeResponse([]byte{0xBA}))
	assert.False(t, LooksLikeResponse([]byte("HTTX")))
}

func TestResponseAccessors(t *testing.T) {
	resp := &Response{
		Status: 200,
		Fields: []Field{
			{Name: []byte("num"), Value: []byte("2")},
			{Name: []byte("_a"), Value: []byte("1")},
			{Name: []byte("_b"), Value: []byte("2")},
			{Name: []byte("value"), Value: []byte("1.25")},
		},
	}

	v, ok := resp.Value()
	require.True(t, ok)
	assert.Equal(t, []byte("1.25"), v)

	f, err := resp.Float("value")
	require.NoError(t, err)
	assert.Equal(t, 1.25, f)

	_, err = resp.Int("missing")
	assert.Error(t, err)

	assert.Equal(t, []Field{
		{Name: []byte("a"), Value: []byte("1")},
		{Name: []byte("b"), Value: []byte("2")},
	}, resp.Prefixed())

	assert.Equal(t, "2", resp.Map()["num"])
	assert.True(t, resp.IsOK())
	assert.False(t, resp.IsLogicalFailure())
}
