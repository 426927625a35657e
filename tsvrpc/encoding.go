package tsvrpc

import (
	"encoding/base64"
	"mime"
	"net/url"
	"strings"
)

// ColumnEncoding is the per-field transform applied to names and values so
// they survive tab and newline delimited transport.
type ColumnEncoding int

const (
	// Base64 encodes every field with standard base64. This is the default.
	Base64 ColumnEncoding = iota

	// URL percent-encodes every field.
	URL

	// Raw sends fields untouched. Names and values must not contain tab,
	// CR or LF bytes.
	Raw
)

// MediaType is the media type shared by all column encodings.
const MediaType = "text/tab-separated-values"

const (
	contentTypeRaw    = MediaType
	contentTypeBase64 = MediaType + "; colenc=B"
	contentTypeURL    = MediaType + "; colenc=U"
)

// ContentType returns the Content-Type header value declaring the encoding.
func (e ColumnEncoding) ContentType() string {
	switch e {
	case URL:
		return contentTypeURL
	case Raw:
		return contentTypeRaw
	default:
		return contentTypeBase64
	}
}

func (e ColumnEncoding) String() string {
	switch e {
	case Base64:
		return "base64"
	case URL:
		return "url"
	case Raw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseColumnEncoding maps a configuration name (base64, url, raw, or the
// wire letters B and U) to an encoding.
func ParseColumnEncoding(name string) (ColumnEncoding, error) {
	switch strings.ToLower(name) {
	case "", "base64", "b":
		return Base64, nil
	case "url", "u":
		return URL, nil
	case "raw", "none":
		return Raw, nil
	default:
		return Base64, &EncodingError{Message: "unknown column encoding " + name}
	}
}

// EncodingForContentType returns the encoding a Content-Type header declares.
// An empty header means Raw.
func EncodingForContentType(contentType string) (ColumnEncoding, error) {
	if contentType == "" {
		return Raw, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Raw, &EncodingError{Message: "invalid content type " + contentType, Err: err}
	}
	if mediaType != MediaType {
		return Raw, &EncodingError{Message: "unsupported content type " + contentType}
	}

	switch strings.ToUpper(params["colenc"]) {
	case "":
		return Raw, nil
	case "B":
		return Base64, nil
	case "U":
		return URL, nil
	default:
		return Raw, &EncodingError{Message: "unsupported column encoding in " + contentType}
	}
}

// AppendEncode appends the encoded form of field to dst.
func (e ColumnEncoding) AppendEncode(dst, field []byte) []byte {
	switch e {
	case Base64:
		return base64.StdEncoding.AppendEncode(dst, field)
	case URL:
		return append(dst, url.QueryEscape(string(field))...)
	default:
		return append(dst, field...)
	}
}

// Encode returns the encoded form of field.
func (e ColumnEncoding) Encode(field []byte) []byte {
	return e.AppendEncode(nil, field)
}

// Decode reverses Encode. The result never aliases field.
func (e ColumnEncoding) Decode(field []byte) ([]byte, error) {
	switch e {
	case Base64:
		out, err := base64.StdEncoding.AppendDecode(nil, field)
		if err != nil {
			// some servers strip the padding
			out, err = base64.RawStdEncoding.AppendDecode(nil, trimPadding(field))
		}
		if err != nil {
			return nil, &EncodingError{Message: "invalid base64 field", Err: err}
		}
		if out == nil {
			out = []byte{}
		}
		return out, nil
	case URL:
		s, err := url.QueryUnescape(string(field))
		if err != nil {
			return nil, &EncodingError{Message: "invalid url-encoded field", Err: err}
		}
		return []byte(s), nil
	default:
		out := make([]byte, len(field))
		copy(out, field)
		return out, nil
	}
}

func trimPadding(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == '=' {
		b = b[:len(b)-1]
	}
	return b
}
