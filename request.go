package kt

import (
	"bytes"
	"slices"

	"github.com/pior/kt/binproto"
	"github.com/pior/kt/tsvrpc"
)

// Record is a key/value pair with its expiration and database index, as
// returned by bulk reads and scripts.
type Record = binproto.Record

// KeyValue is one entry of a bulk write or a script parameter.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Request is one call on the wire. Exactly one of Binary and Text is set.
type Request struct {
	Kind   Kind
	Binary *binproto.Request
	Text   *tsvrpc.Request
}

// IsBinary returns true when the request uses the binary protocol.
func (r *Request) IsBinary() bool {
	return r.Binary != nil
}

// Response is the decoded answer to a Request. Exactly one of Binary and Text
// is set, matching the request's protocol.
type Response struct {
	Binary *binproto.Response
	Text   *tsvrpc.Response
}

// IsBinary returns true when the response came from a binary frame.
func (r *Response) IsBinary() bool {
	return r.Binary != nil
}

// BulkResult is the outcome of GetBulk and PlayScript: a per-key lookup and a
// read-only view of every record returned.
type BulkResult struct {
	records []Record
}

func newBulkResult(records []Record) *BulkResult {
	return &BulkResult{records: records}
}

// Len returns the number of records.
func (r *BulkResult) Len() int {
	return len(r.records)
}

// Get returns the value stored under key.
func (r *BulkResult) Get(key []byte) ([]byte, bool) {
	rec, ok := r.Lookup(key)
	return rec.Value, ok
}

// Lookup returns the record stored under key.
func (r *BulkResult) Lookup(key []byte) (Record, bool) {
	for i := range r.records {
		if bytes.Equal(r.records[i].Key, key) {
			return r.records[i], true
		}
	}
	return Record{}, false
}

// Records returns a copy of all records in response order.
func (r *BulkResult) Records() []Record {
	return slices.Clone(r.records)
}

// Map returns the records as a string map keyed by record key.
func (r *BulkResult) Map() map[string][]byte {
	m := make(map[string][]byte, len(r.records))
	for i := range r.records {
		m[string(r.records[i].Key)] = r.records[i].Value
	}
	return m
}
