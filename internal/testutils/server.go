package testutils

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pior/kt/binproto"
	"github.com/pior/kt/tsvrpc"
)

// ScriptFunc implements a play_script procedure of the fake server. It returns
// the output records and false for a logical failure.
type ScriptFunc func(params []tsvrpc.Field) ([]tsvrpc.Field, bool)

type entry struct {
	value []byte
	xt    int64
}

// Server is an in-memory stand-in for a Kyoto Tycoon server speaking both
// the binary protocol and TSV-RPC on the same connection. Records never
// expire and counters are stored as decimal text.
type Server struct {
	// ChunkSize splits every response into writes of at most this many bytes.
	// Zero writes each response at once.
	ChunkSize int

	mu      sync.Mutex
	dbs     map[string]map[string]entry
	scripts map[string]ScriptFunc
	gate    chan struct{}

	binaryRequests atomic.Int64
	textRequests   atomic.Int64
}

// NewServer returns an empty server.
func NewServer() *Server {
	return &Server{
		dbs:     map[string]map[string]entry{},
		scripts: map[string]ScriptFunc{},
	}
}

// Pipe serves one end of an in-memory connection and returns the other.
func (s *Server) Pipe() net.Conn {
	client, server := net.Pipe()
	go s.Serve(server)
	return client
}

// Listen serves every connection accepted on ln until it is closed.
func (s *Server) Listen(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.Serve(conn)
	}
}

// Script registers a play_script procedure.
func (s *Server) Script(name string, fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = fn
}

// Pause holds back every response until Resume. Requests are still read.
func (s *Server) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate == nil {
		s.gate = make(chan struct{})
	}
}

// Resume releases the responses held since Pause.
func (s *Server) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Requests returns the number of binary and TSV-RPC requests served.
func (s *Server) Requests() (binaryCount, textCount int64) {
	return s.binaryRequests.Load(), s.textRequests.Load()
}

// Put stores a record directly in database db ("0" is the default database).
func (s *Server) Put(db, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db(db)[key] = entry{value: value, xt: binproto.NoExpiration}
}

// Lookup reads a record directly from database db.
func (s *Server) Lookup(db, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.db(db)[key]
	return e.value, ok
}

// Serve answers requests on conn until it fails or is closed.
func (s *Server) Serve(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	for {
		first, err := br.Peek(1)
		if err != nil {
			return
		}

		var resp []byte
		if first[0] >= 0x80 {
			s.binaryRequests.Add(1)
			resp, err = s.serveBinary(br)
		} else {
			s.textRequests.Add(1)
			resp, err = s.serveText(br)
		}
		if err != nil {
			return
		}

		s.waitGate()
		if err := s.write(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) waitGate() {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (s *Server) write(w io.Writer, data []byte) error {
	if s.ChunkSize <= 0 {
		_, err := w.Write(data)
		return err
	}
	for len(data) > 0 {
		n := min(s.ChunkSize, len(data))
		if _, err := w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (s *Server) db(name string) map[string]entry {
	if name == "" {
		name = "0"
	}
	db, ok := s.dbs[name]
	if !ok {
		db = map[string]entry{}
		s.dbs[name] = db
	}
	return db
}

// binary protocol

type binReader struct {
	r   *bufio.Reader
	err error
}

func (b *binReader) uint16() uint16 {
	var buf [2]byte
	b.read(buf[:])
	return binary.BigEndian.Uint16(buf[:])
}

func (b *binReader) uint32() uint32 {
	var buf [4]byte
	b.read(buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

func (b *binReader) int64() int64 {
	var buf [8]byte
	b.read(buf[:])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

func (b *binReader) bytes(n uint32) []byte {
	buf := make([]byte, n)
	b.read(buf)
	return buf
}

func (b *binReader) read(buf []byte) {
	if b.err == nil {
		_, b.err = io.ReadFull(b.r, buf)
	}
}

func (s *Server) serveBinary(r *bufio.Reader) ([]byte, error) {
	magic, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	br := &binReader{r: r}
	br.uint32() // flags

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []byte
	switch magic {
	case binproto.MagicSetBulk:
		count := br.uint32()
		for range count {
			dbidx := br.uint16()
			ksiz, vsiz := br.uint32(), br.uint32()
			xt := br.int64()
			key, value := br.bytes(ksiz), br.bytes(vsiz)
			if br.err == nil {
				s.db(strconv.Itoa(int(dbidx)))[string(key)] = entry{value: value, xt: xt}
			}
		}
		out = binary.BigEndian.AppendUint32([]byte{magic}, count)

	case binproto.MagicRemoveBulk:
		count := br.uint32()
		var hits uint32
		for range count {
			dbidx := br.uint16()
			key := br.bytes(br.uint32())
			db := s.db(strconv.Itoa(int(dbidx)))
			if _, ok := db[string(key)]; ok && br.err == nil {
				delete(db, string(key))
				hits++
			}
		}
		out = binary.BigEndian.AppendUint32([]byte{magic}, hits)

	case binproto.MagicGetBulk:
		count := br.uint32()
		var body []byte
		var hits uint32
		for range count {
			dbidx := br.uint16()
			key := br.bytes(br.uint32())
			e, ok := s.db(strconv.Itoa(int(dbidx)))[string(key)]
			if !ok {
				continue
			}
			hits++
			body = binary.BigEndian.AppendUint16(body, dbidx)
			body = binary.BigEndian.AppendUint32(body, uint32(len(key)))
			body = binary.BigEndian.AppendUint32(body, uint32(len(e.value)))
			body = binary.BigEndian.AppendUint64(body, uint64(e.xt))
			body = append(body, key...)
			body = append(body, e.value...)
		}
		out = binary.BigEndian.AppendUint32([]byte{magic}, hits)
		out = append(out, body...)

	case binproto.MagicPlayScript:
		nsiz, count := br.uint32(), br.uint32()
		name := br.bytes(nsiz)
		params := make([]tsvrpc.Field, 0, count)
		for range count {
			ksiz, vsiz := br.uint32(), br.uint32()
			params = append(params, tsvrpc.Field{Name: br.bytes(ksiz), Value: br.bytes(vsiz)})
		}
		fn, ok := s.scripts[string(name)]
		if !ok {
			out = []byte{binproto.MagicError}
			break
		}
		result, ok := fn(params)
		if !ok {
			out = []byte{binproto.MagicError}
			break
		}
		out = binary.BigEndian.AppendUint32([]byte{magic}, uint32(len(result)))
		for _, f := range result {
			out = binary.BigEndian.AppendUint32(out, uint32(len(f.Name)))
			out = binary.BigEndian.AppendUint32(out, uint32(len(f.Value)))
			out = append(out, f.Name...)
			out = append(out, f.Value...)
		}

	default:
		// the frame length is unknown, so the stream cannot continue
		return nil, fmt.Errorf("unsupported magic 0x%02X", magic)
	}

	if br.err != nil {
		return nil, br.err
	}
	return out, nil
}

// TSV-RPC

type textResult struct {
	status int
	fields []tsvrpc.Field
}

func ok(fields ...tsvrpc.Field) textResult {
	return textResult{status: http.StatusOK, fields: fields}
}

func failure(status int, msg string) textResult {
	return textResult{status: status, fields: []tsvrpc.Field{field("ERROR", msg)}}
}

func field(name, value string) tsvrpc.Field {
	return tsvrpc.Field{Name: []byte(name), Value: []byte(value)}
}

type params []tsvrpc.Field

func (p params) get(name string) ([]byte, bool) {
	for _, f := range p {
		if string(f.Name) == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (p params) str(name string) string {
	v, _ := p.get(name)
	return string(v)
}

func (p params) has(name string) bool {
	_, ok := p.get(name)
	return ok
}

func (p params) prefixed() []tsvrpc.Field {
	var out []tsvrpc.Field
	for _, f := range p {
		if name, ok := bytes.CutPrefix(f.Name, []byte{'_'}); ok {
			out = append(out, tsvrpc.Field{Name: name, Value: f.Value})
		}
	}
	return out
}

func (s *Server) serveText(r *bufio.Reader) ([]byte, error) {
	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}

	enc, err := tsvrpc.EncodingForContentType(req.Header.Get("Content-Type"))
	var result textResult
	if err != nil {
		enc = tsvrpc.Raw
		result = failure(http.StatusBadRequest, "unsupported content type")
	} else if fields, err := tsvrpc.DecodeFields(enc, body); err != nil {
		result = failure(http.StatusBadRequest, "invalid body")
	} else {
		procedure := strings.TrimPrefix(req.URL.Path, "/rpc/")
		result = s.call(procedure, params(fields))
	}

	out := tsvrpc.EncodeFields(enc, result.fields)
	reason := http.StatusText(result.status)
	if result.status == tsvrpc.StatusLogicalFailure {
		reason = "Logical Inconsistency"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", result.status, reason)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", enc.ContentType())
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(out))
	buf.Write(out)
	return buf.Bytes(), nil
}

func (s *Server) call(procedure string, p params) textResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db(p.str("DB"))
	xt := binproto.NoExpiration
	if v, ok := p.get("xt"); ok {
		xt, _ = strconv.ParseInt(string(v), 10, 64)
	}

	needKey := func() (string, bool) {
		key, ok := p.get("key")
		return string(key), ok
	}

	switch procedure {
	case "void", "synchronize", "vacuum":
		if procedure == "synchronize" && p.str("command") == "fail" {
			return failure(tsvrpc.StatusLogicalFailure, "postprocessing failed")
		}
		return ok()

	case "echo":
		return ok(p...)

	case "status":
		size := 0
		for _, e := range db {
			size += len(e.value)
		}
		return ok(field("count", strconv.Itoa(len(db))), field("size", strconv.Itoa(size)))

	case "report":
		return ok(field("db_total_count", strconv.Itoa(len(s.dbs))), field("conf_kt_version", "0.9.56"))

	case "clear":
		clear(db)
		return ok()

	case "get", "seize":
		key, has := needKey()
		if !has {
			return failure(http.StatusBadRequest, "invalid parameters")
		}
		e, found := db[key]
		if !found {
			return failure(tsvrpc.StatusLogicalFailure, "DB: 7: no record: no record")
		}
		if procedure == "seize" {
			delete(db, key)
		}
		return ok(field("value", string(e.value)), field("xt", strconv.FormatInt(e.xt, 10)))

	case "set", "add", "replace":
		key, has := needKey()
		value, hasValue := p.get("value")
		if !has || !hasValue {
			return failure(http.StatusBadRequest, "invalid parameters")
		}
		_, exists := db[key]
		if procedure == "add" && exists {
			return failure(tsvrpc.StatusLogicalFailure, "DB: 6: record duplication: record duplication")
		}
		if procedure == "replace" && !exists {
			return failure(tsvrpc.StatusLogicalFailure, "DB: 7: no record: no record")
		}
		db[key] = entry{value: value, xt: xt}
		return ok()

	case "remove":
		key, has := needKey()
		if !has {
			return failure(http.StatusBadRequest, "invalid parameters")
		}
		if _, found := db[key]; !found {
			return failure(tsvrpc.StatusLogicalFailure, "DB: 7: no record: no record")
		}
		delete(db, key)
		return ok()

	case "cas":
		key, has := needKey()
		if !has {
			return failure(http.StatusBadRequest, "invalid parameters")
		}
		e, exists := db[key]
		oval, hasOval := p.get("oval")
		if hasOval != exists || (exists && !bytes.Equal(e.value, oval)) {
			return failure(tsvrpc.StatusLogicalFailure, "DB: 8: logical inconsistency: status mismatch")
		}
		if nval, hasNval := p.get("nval"); hasNval {
			db[key] = entry{value: nval, xt: xt}
		} else {
			delete(db, key)
		}
		return ok()

	case "increment":
		key, has := needKey()
		num, err := strconv.ParseInt(p.str("num"), 10, 64)
		if !has || err != nil {
			return failure(http.StatusBadRequest, "invalid parameters")
		}
		orig, _ := strconv.ParseInt(p.str("orig"), 10, 64)
		current := orig
		if e, exists := db[key]; exists {
			if current, err = strconv.ParseInt(string(e.value), 10, 64); err != nil {
				return failure(tsvrpc.StatusLogicalFailure, "DB: 8: logical inconsistency: the existing record was not compatible")
			}
		}
		current += num
		db[key] = entry{value: []byte(strconv.FormatInt(current, 10)), xt: xt}
		return ok(field("num", strconv.FormatInt(current, 10)))

	case "increment_double":
		key, has := needKey()
		num, err := strconv.ParseFloat(p.str("num"), 64)
		if !has || err != nil {
			return failure(http.StatusBadRequest, "invalid parameters")
		}
		orig := 0.0
		switch o := p.str("orig"); o {
		case "set":
			orig = math.Inf(1)
		case "try":
			orig = math.Inf(-1)
		case "":
		default:
			orig, _ = strconv.ParseFloat(o, 64)
		}
		e, exists := db[key]
		var current float64
		switch {
		case !exists && math.IsInf(orig, -1):
			return failure(tsvrpc.StatusLogicalFailure, "DB: 7: no record: no record")
		case !exists && math.IsInf(orig, 1):
			current = num
		case !exists:
			current = orig + num
		default:
			existing, perr := strconv.ParseFloat(string(e.value), 64)
			switch {
			case perr == nil:
				current = existing + num
			case math.IsInf(orig, 1):
				current = num
			default:
				return failure(tsvrpc.StatusLogicalFailure, "DB: 8: logical inconsistency: the existing record was not compatible")
			}
		}
		value := strconv.FormatFloat(current, 'f', -1, 64)
		db[key] = entry{value: []byte(value), xt: xt}
		return ok(field("num", value))

	case "match_prefix", "match_regex":
		var match func(string) bool
		if procedure == "match_prefix" {
			prefix := p.str("prefix")
			match = func(k string) bool { return strings.HasPrefix(k, prefix) }
		} else {
			re, err := regexp.Compile(p.str("regex"))
			if err != nil {
				return failure(http.StatusBadRequest, "invalid regex")
			}
			match = re.MatchString
		}
		limit := int64(-1)
		if p.has("max") {
			limit, _ = strconv.ParseInt(p.str("max"), 10, 64)
		}
		keys := make([]string, 0, len(db))
		for k := range db {
			if match(k) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		if limit >= 0 && int64(len(keys)) > limit {
			keys = keys[:limit]
		}
		fields := make([]tsvrpc.Field, 0, len(keys)+1)
		fields = append(fields, field("num", strconv.Itoa(len(keys))))
		for i, k := range keys {
			fields = append(fields, field("_"+k, strconv.Itoa(i)))
		}
		return ok(fields...)

	case "get_bulk":
		fields := []tsvrpc.Field{}
		for _, f := range p.prefixed() {
			if e, found := db[string(f.Name)]; found {
				fields = append(fields, tsvrpc.Field{Name: tsvrpc.PrefixedName(f.Name), Value: e.value})
			}
		}
		return ok(append(fields, field("num", strconv.Itoa(len(fields))))...)

	case "set_bulk":
		records := p.prefixed()
		for _, f := range records {
			db[string(f.Name)] = entry{value: f.Value, xt: xt}
		}
		return ok(field("num", strconv.Itoa(len(records))))

	case "remove_bulk":
		removed := 0
		for _, f := range p.prefixed() {
			if _, found := db[string(f.Name)]; found {
				delete(db, string(f.Name))
				removed++
			}
		}
		return ok(field("num", strconv.Itoa(removed)))

	case "play_script":
		fn, found := s.scripts[p.str("name")]
		if !found {
			return failure(http.StatusBadRequest, "no such procedure")
		}
		out, success := fn(p.prefixed())
		if !success {
			return failure(tsvrpc.StatusLogicalFailure, "logical inconsistency")
		}
		fields := make([]tsvrpc.Field, len(out))
		for i, f := range out {
			fields[i] = tsvrpc.Field{Name: tsvrpc.PrefixedName(f.Name), Value: f.Value}
		}
		return ok(fields...)

	default:
		return failure(http.StatusNotImplemented, "not implemented")
	}
}
