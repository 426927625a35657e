package tsvrpc

import (
	"bytes"
	"strconv"
)

// HTTP status codes with a meaning of their own in TSV-RPC.
const (
	StatusOK = 200

	// StatusLogicalFailure means the procedure ran but its condition did not
	// hold: a cas mismatch, add on an existing key, replace or get on a
	// missing key, increment of a non-numeric value.
	StatusLogicalFailure = 450
)

// Response is one decoded TSV-RPC response.
type Response struct {
	Status int

	// Encoding is the column encoding the response declared.
	Encoding ColumnEncoding

	Fields []Field
}

// IsOK returns true for status 200.
func (r *Response) IsOK() bool {
	return r.Status == StatusOK
}

// IsLogicalFailure returns true for status 450.
func (r *Response) IsLogicalFailure() bool {
	return r.Status == StatusLogicalFailure
}

// Get returns the value of the first field called name.
func (r *Response) Get(name string) ([]byte, bool) {
	for _, f := range r.Fields {
		if string(f.Name) == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Value returns the "value" field.
func (r *Response) Value() ([]byte, bool) {
	return r.Get("value")
}

// Int parses the field called name as a decimal integer.
func (r *Response) Int(name string) (int64, error) {
	v, ok := r.Get(name)
	if !ok {
		return 0, &EncodingError{Message: "missing field " + name}
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, &EncodingError{Message: "field " + name + " is not an integer", Err: err}
	}
	return n, nil
}

// Float parses the field called name as a decimal floating point number.
func (r *Response) Float(name string) (float64, error) {
	v, ok := r.Get(name)
	if !ok {
		return 0, &EncodingError{Message: "missing field " + name}
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0, &EncodingError{Message: "field " + name + " is not a number", Err: err}
	}
	return f, nil
}

// Prefixed returns the fields whose name starts with '_', with the prefix
// removed, in response order. Bulk and script results are returned this way.
func (r *Response) Prefixed() []Field {
	var out []Field
	for _, f := range r.Fields {
		if name, ok := bytes.CutPrefix(f.Name, []byte{'_'}); ok {
			out = append(out, Field{Name: name, Value: f.Value})
		}
	}
	return out
}

// Map returns the fields as a string map. Later duplicates win.
func (r *Response) Map() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		m[string(f.Name)] = string(f.Value)
	}
	return m
}

// ErrorMessage returns the "ERROR" field the server attaches to failures.
func (r *Response) ErrorMessage() string {
	v, _ := r.Get("ERROR")
	return string(v)
}
