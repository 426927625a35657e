package binproto

// Record is the bulk transfer unit of the binary protocol.
type Record struct {
	// DBIndex selects the database on servers hosting several. Default 0.
	DBIndex uint16

	Key   []byte
	Value []byte

	// Expiration is the wire expiration value: positive for seconds from now,
	// negative for an absolute epoch in seconds, NoExpiration for none.
	// Only set_bulk requests and get_bulk responses carry it.
	Expiration int64
}

// Request represents one binary request frame.
// This is a low-level container; WriteRequest and AppendRequest do the
// serialization.
type Request struct {
	// Magic is the operation: MagicSetBulk, MagicGetBulk, MagicRemoveBulk or
	// MagicPlayScript.
	Magic byte

	// Records holds the bulk records, or the script parameters for
	// play_script (only Key and Value are sent for those).
	Records []Record

	// Procedure is the script procedure name (play_script only).
	Procedure string
}

// NewSetBulk creates a set_bulk request storing records.
func NewSetBulk(records ...Record) *Request {
	return &Request{Magic: MagicSetBulk, Records: records}
}

// NewGetBulk creates a get_bulk request for keys in database dbidx.
func NewGetBulk(dbidx uint16, keys ...[]byte) *Request {
	return &Request{Magic: MagicGetBulk, Records: keyRecords(dbidx, keys)}
}

// NewRemoveBulk creates a remove_bulk request for keys in database dbidx.
func NewRemoveBulk(dbidx uint16, keys ...[]byte) *Request {
	return &Request{Magic: MagicRemoveBulk, Records: keyRecords(dbidx, keys)}
}

// NewPlayScript creates a play_script request calling procedure with params.
func NewPlayScript(procedure string, params ...Record) *Request {
	return &Request{Magic: MagicPlayScript, Procedure: procedure, Records: params}
}

func keyRecords(dbidx uint16, keys [][]byte) []Record {
	records := make([]Record, len(keys))
	for i, key := range keys {
		records[i] = Record{DBIndex: dbidx, Key: key}
	}
	return records
}

// Size returns the exact number of bytes the encoded request occupies.
func (r *Request) Size() int {
	n := sizeHeader
	switch r.Magic {
	case MagicSetBulk:
		for i := range r.Records {
			n += sizeRecordHeader + len(r.Records[i].Key) + len(r.Records[i].Value)
		}
	case MagicGetBulk, MagicRemoveBulk:
		for i := range r.Records {
			n += sizeDBIdx + sizeLen + len(r.Records[i].Key)
		}
	case MagicPlayScript:
		// the script header carries nsiz and rnum after the flags
		n += sizeLen + len(r.Procedure)
		for i := range r.Records {
			n += sizeLen + sizeLen + len(r.Records[i].Key) + len(r.Records[i].Value)
		}
	}
	return n
}
