package tsvrpc

import (
	"bytes"
	"strconv"
)

// Field is one named parameter of a TSV record. Names may repeat; order is
// significant.
type Field struct {
	Name  []byte
	Value []byte
}

// String returns "name=value" for diagnostics.
func (f Field) String() string {
	return string(f.Name) + "=" + strconv.Quote(string(f.Value))
}

// AppendFields appends one "name TAB value CRLF" line per field to dst, in
// order, applying enc to both halves.
func AppendFields(dst []byte, enc ColumnEncoding, fields []Field) []byte {
	for _, f := range fields {
		dst = enc.AppendEncode(dst, f.Name)
		dst = append(dst, '\t')
		dst = enc.AppendEncode(dst, f.Value)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

// EncodeFields returns the TSV body for fields.
func EncodeFields(enc ColumnEncoding, fields []Field) []byte {
	return AppendFields(nil, enc, fields)
}

// DecodeFields parses a TSV body: lines are split on LF (a trailing CR is
// dropped), each line on its first tab. A line without a tab yields a field
// with an empty value. Blank lines are skipped.
func DecodeFields(enc ColumnEncoding, body []byte) ([]Field, error) {
	var fields []Field

	for len(body) > 0 {
		var line []byte
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			line, body = body[:i], body[i+1:]
		} else {
			line, body = body, nil
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}

		rawName, rawValue, _ := bytes.Cut(line, []byte{'\t'})

		name, err := enc.Decode(rawName)
		if err != nil {
			return nil, err
		}
		value, err := enc.Decode(rawValue)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: name, Value: value})
	}

	return fields, nil
}
