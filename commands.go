package kt

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pior/kt/binproto"
	"github.com/pior/kt/tsvrpc"
)

// ErrScriptFailed is returned by PlayScript when the procedure reported a
// logical failure.
var ErrScriptFailed = errors.New("kt: script procedure failed")

// Origin values for IncrementDouble. OriginSet stores num when the record is
// missing or not numeric; OriginTry fails unless the record exists.
var (
	OriginSet = math.Inf(1)
	OriginTry = math.Inf(-1)
)

// Get returns the value stored under key. A missing key is not an error:
// found is false.
//
// Uses a one-record binary get_bulk.
func (c *Client) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if key == nil {
		return nil, false, c.usageError(KindGet, nil, "nil key")
	}

	if !c.useBinary(KindGet, false) {
		resp, err := c.callText(ctx, KindGet, key, c.textRequest(KindGet).Add("key", key))
		if err != nil {
			return nil, false, err
		}
		if resp.IsLogicalFailure() {
			c.stats.recordGet(false)
			return nil, false, nil
		}
		value, err := c.fieldValue(KindGet, key, resp)
		if err != nil {
			return nil, false, err
		}
		c.stats.recordGet(true)
		return value, true, nil
	}

	resp, err := c.callBinary(ctx, KindGet, key, binproto.NewGetBulk(c.dbidx, key))
	if err != nil {
		return nil, false, err
	}
	rec, found := resp.Lookup(key)
	c.stats.recordGet(found)
	return rec.Value, found, nil
}

// Set stores value under key.
//
// Uses a one-record binary set_bulk.
func (c *Client) Set(ctx context.Context, key, value []byte, xt Expiration) error {
	if err := c.checkKeyValue(KindSet, key, value); err != nil {
		return err
	}
	c.stats.recordSet()

	if !c.useBinary(KindSet, false) {
		req := c.textRequest(KindSet).Add("key", key).Add("value", value)
		addExpiration(req, xt)
		_, err := c.callTextOK(ctx, KindSet, key, req)
		return err
	}

	rec := binproto.Record{DBIndex: c.dbidx, Key: key, Value: value, Expiration: xt.binary()}
	_, err := c.callBinary(ctx, KindSet, key, binproto.NewSetBulk(rec))
	return err
}

// Remove deletes key. Returns false when the key did not exist.
//
// Uses a one-record binary remove_bulk.
func (c *Client) Remove(ctx context.Context, key []byte) (bool, error) {
	if key == nil {
		return false, c.usageError(KindRemove, nil, "nil key")
	}
	c.stats.recordRemove()

	if !c.useBinary(KindRemove, false) {
		resp, err := c.callText(ctx, KindRemove, key, c.textRequest(KindRemove).Add("key", key))
		if err != nil {
			return false, err
		}
		return resp.IsOK(), nil
	}

	resp, err := c.callBinary(ctx, KindRemove, key, binproto.NewRemoveBulk(c.dbidx, key))
	if err != nil {
		return false, err
	}
	return resp.Hits > 0, nil
}

// GetBulk returns the records found for keys. Missing keys are absent from
// the result.
//
// The binary protocol is used unless atomic is set: binary bulk operations
// are not atomic across keys.
func (c *Client) GetBulk(ctx context.Context, keys [][]byte, atomic bool) (*BulkResult, error) {
	if err := c.checkKeys(KindGetBulk, keys); err != nil {
		return nil, err
	}

	if !c.useBinary(KindGetBulk, atomic) {
		req := c.textRequest(KindGetBulk)
		if atomic {
			req.AddFlag("atomic")
		}
		for _, key := range keys {
			req.AddPrefixed(key, []byte{})
		}
		resp, err := c.callTextOK(ctx, KindGetBulk, nil, req)
		if err != nil {
			return nil, err
		}
		return newBulkResult(prefixedRecords(resp)), nil
	}

	resp, err := c.callBinary(ctx, KindGetBulk, nil, binproto.NewGetBulk(c.dbidx, keys...))
	if err != nil {
		return nil, err
	}
	return newBulkResult(resp.Records), nil
}

// SetBulk stores entries, all with expiration xt, and returns the number of
// records stored.
//
// The binary protocol is used unless atomic is set.
func (c *Client) SetBulk(ctx context.Context, entries []KeyValue, xt Expiration, atomic bool) (int64, error) {
	for _, e := range entries {
		if err := c.checkKeyValue(KindSetBulk, e.Key, e.Value); err != nil {
			return 0, err
		}
	}

	if !c.useBinary(KindSetBulk, atomic) {
		req := c.textRequest(KindSetBulk)
		addExpiration(req, xt)
		if atomic {
			req.AddFlag("atomic")
		}
		for _, e := range entries {
			req.AddPrefixed(e.Key, e.Value)
		}
		resp, err := c.callTextOK(ctx, KindSetBulk, nil, req)
		if err != nil {
			return 0, err
		}
		return c.fieldInt(KindSetBulk, nil, resp, "num")
	}

	records := make([]binproto.Record, len(entries))
	for i, e := range entries {
		records[i] = binproto.Record{DBIndex: c.dbidx, Key: e.Key, Value: e.Value, Expiration: xt.binary()}
	}
	resp, err := c.callBinary(ctx, KindSetBulk, nil, binproto.NewSetBulk(records...))
	if err != nil {
		return 0, err
	}
	return int64(resp.Hits), nil
}

// RemoveBulk deletes keys and returns the number of records removed.
//
// The binary protocol is used unless atomic is set.
func (c *Client) RemoveBulk(ctx context.Context, keys [][]byte, atomic bool) (int64, error) {
	if err := c.checkKeys(KindRemoveBulk, keys); err != nil {
		return 0, err
	}

	if !c.useBinary(KindRemoveBulk, atomic) {
		req := c.textRequest(KindRemoveBulk)
		if atomic {
			req.AddFlag("atomic")
		}
		for _, key := range keys {
			req.AddPrefixed(key, []byte{})
		}
		resp, err := c.callTextOK(ctx, KindRemoveBulk, nil, req)
		if err != nil {
			return 0, err
		}
		return c.fieldInt(KindRemoveBulk, nil, resp, "num")
	}

	resp, err := c.callBinary(ctx, KindRemoveBulk, nil, binproto.NewRemoveBulk(c.dbidx, keys...))
	if err != nil {
		return 0, err
	}
	return int64(resp.Hits), nil
}

// Increment adds num to the integer stored under key and returns the result.
// A missing record starts at orig. Fails with ErrNotNumeric when the existing
// value is not an integer.
func (c *Client) Increment(ctx context.Context, key []byte, num, orig int64, xt Expiration) (int64, error) {
	if key == nil {
		return 0, c.usageError(KindIncrement, nil, "nil key")
	}
	c.stats.recordIncrement()

	req := c.textRequest(KindIncrement).Add("key", key).AddInt("num", num).AddInt("orig", orig)
	addExpiration(req, xt)

	resp, err := c.callText(ctx, KindIncrement, key, req)
	if err != nil {
		return 0, err
	}
	if resp.IsLogicalFailure() {
		return 0, c.opError(KindIncrement, key, resp.Status, ErrNotNumeric)
	}
	return c.fieldInt(KindIncrement, key, resp, "num")
}

// IncrementDouble adds num to the decimal number stored under key and returns
// the result. A missing record starts at orig; OriginSet and OriginTry select
// the server's "set" and "try" modes, NaN leaves orig unset. Fails with
// ErrNotNumeric when the existing value is not a number.
func (c *Client) IncrementDouble(ctx context.Context, key []byte, num, orig float64, xt Expiration) (float64, error) {
	if key == nil {
		return 0, c.usageError(KindIncrementDouble, nil, "nil key")
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, c.usageError(KindIncrementDouble, key, "num must be finite")
	}
	c.stats.recordIncrement()

	req := c.textRequest(KindIncrementDouble).Add("key", key).AddFloat("num", num)
	switch {
	case math.IsInf(orig, 1):
		req.AddString("orig", "set")
	case math.IsInf(orig, -1):
		req.AddString("orig", "try")
	case !math.IsNaN(orig):
		req.AddFloat("orig", orig)
	}
	addExpiration(req, xt)

	resp, err := c.callText(ctx, KindIncrementDouble, key, req)
	if err != nil {
		return 0, err
	}
	if resp.IsLogicalFailure() {
		return 0, c.opError(KindIncrementDouble, key, resp.Status, ErrNotNumeric)
	}

	v, err := resp.Float("num")
	if err != nil {
		return 0, c.opError(KindIncrementDouble, key, resp.Status, err)
	}
	return v, nil
}

// CAS replaces the value of key with nval if it currently equals oval.
// A nil oval requires the record to be absent; a nil nval removes it.
// Returns false when the current value did not match.
func (c *Client) CAS(ctx context.Context, key, oval, nval []byte, xt Expiration) (bool, error) {
	if key == nil {
		return false, c.usageError(KindCAS, nil, "nil key")
	}
	c.stats.recordSet()

	req := c.textRequest(KindCAS).Add("key", key)
	if oval != nil {
		req.Add("oval", oval)
	}
	if nval != nil {
		req.Add("nval", nval)
	}
	addExpiration(req, xt)

	return c.conditional(ctx, KindCAS, key, req)
}

// Add stores value under key only if the key does not exist yet.
// Returns false when it already existed.
func (c *Client) Add(ctx context.Context, key, value []byte, xt Expiration) (bool, error) {
	return c.store(ctx, KindAdd, key, value, xt)
}

// Replace stores value under key only if the key already exists.
// Returns false when it did not.
func (c *Client) Replace(ctx context.Context, key, value []byte, xt Expiration) (bool, error) {
	return c.store(ctx, KindReplace, key, value, xt)
}

func (c *Client) store(ctx context.Context, kind Kind, key, value []byte, xt Expiration) (bool, error) {
	if err := c.checkKeyValue(kind, key, value); err != nil {
		return false, err
	}
	c.stats.recordSet()

	req := c.textRequest(kind).Add("key", key).Add("value", value)
	addExpiration(req, xt)

	return c.conditional(ctx, kind, key, req)
}

// conditional runs a request whose status 450 means "condition not met".
func (c *Client) conditional(ctx context.Context, kind Kind, key []byte, req *tsvrpc.Request) (bool, error) {
	resp, err := c.callText(ctx, kind, key, req)
	if err != nil {
		return false, err
	}
	if resp.IsLogicalFailure() {
		c.stats.recordUnmet()
		return false, nil
	}
	return true, nil
}

// Seize returns the value of key and removes the record in one step.
func (c *Client) Seize(ctx context.Context, key []byte) ([]byte, bool, error) {
	if key == nil {
		return nil, false, c.usageError(KindSeize, nil, "nil key")
	}

	resp, err := c.callText(ctx, KindSeize, key, c.textRequest(KindSeize).Add("key", key))
	if err != nil {
		return nil, false, err
	}
	if resp.IsLogicalFailure() {
		c.stats.recordGet(false)
		return nil, false, nil
	}
	value, err := c.fieldValue(KindSeize, key, resp)
	if err != nil {
		return nil, false, err
	}
	c.stats.recordGet(true)
	return value, true, nil
}

// Clear removes every record of the database.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.callTextOK(ctx, KindClear, nil, c.textRequest(KindClear))
	return err
}

// MatchPrefix returns the keys starting with prefix, at most max of them
// (max < 0 means no limit).
func (c *Client) MatchPrefix(ctx context.Context, prefix []byte, max int64) ([][]byte, error) {
	if prefix == nil {
		return nil, c.usageError(KindMatchPrefix, nil, "nil prefix")
	}
	return c.match(ctx, KindMatchPrefix, c.textRequest(KindMatchPrefix).Add("prefix", prefix), max)
}

// MatchRegex returns the keys matching regex, at most max of them
// (max < 0 means no limit).
func (c *Client) MatchRegex(ctx context.Context, regex string, max int64) ([][]byte, error) {
	return c.match(ctx, KindMatchRegex, c.textRequest(KindMatchRegex).AddString("regex", regex), max)
}

func (c *Client) match(ctx context.Context, kind Kind, req *tsvrpc.Request, max int64) ([][]byte, error) {
	if max >= 0 {
		req.AddInt("max", max)
	}

	resp, err := c.callTextOK(ctx, kind, nil, req)
	if err != nil {
		return nil, err
	}

	fields := resp.Prefixed()
	keys := make([][]byte, len(fields))
	for i, f := range fields {
		keys[i] = f.Name
	}
	return keys, nil
}

// PlayScript calls the server-side script procedure name with params and
// returns the records it produced. Uses TSV-RPC; see PlayScriptBinary for the
// binary frame.
func (c *Client) PlayScript(ctx context.Context, name string, params []KeyValue) (*BulkResult, error) {
	if err := c.checkScript(name, params); err != nil {
		return nil, err
	}

	req := c.textRequest(KindPlayScript).AddString("name", name)
	for _, p := range params {
		req.AddPrefixed(p.Key, p.Value)
	}

	resp, err := c.callText(ctx, KindPlayScript, nil, req)
	if err != nil {
		return nil, err
	}
	if resp.IsLogicalFailure() {
		return nil, c.opError(KindPlayScript, nil, resp.Status, scriptError(resp))
	}
	return newBulkResult(prefixedRecords(resp)), nil
}

// PlayScriptBinary is PlayScript over the binary protocol. The binary frame
// cannot tell a failed procedure from any other server error.
func (c *Client) PlayScriptBinary(ctx context.Context, name string, params []KeyValue) (*BulkResult, error) {
	if err := c.checkScript(name, params); err != nil {
		return nil, err
	}

	records := make([]binproto.Record, len(params))
	for i, p := range params {
		records[i] = binproto.Record{Key: p.Key, Value: p.Value}
	}

	resp, err := c.callBinary(ctx, KindPlayScript, nil, binproto.NewPlayScript(name, records...))
	if err != nil {
		return nil, err
	}
	return newBulkResult(resp.Records), nil
}

// Void does nothing on the server. It checks the connection round trip.
func (c *Client) Void(ctx context.Context) error {
	_, err := c.callTextOK(ctx, KindVoid, nil, c.textRequest(KindVoid))
	return err
}

// Synchronize flushes the database to storage, physically when hard is set,
// then runs the server-side postprocessing command if one is named.
// Fails with ErrPostprocessFailed when that command fails.
func (c *Client) Synchronize(ctx context.Context, hard bool, command string) error {
	req := c.textRequest(KindSynchronize)
	if hard {
		req.AddFlag("hard")
	}
	if command != "" {
		req.AddString("command", command)
	}

	resp, err := c.callText(ctx, KindSynchronize, nil, req)
	if err != nil {
		return err
	}
	if resp.IsLogicalFailure() {
		return c.opError(KindSynchronize, nil, resp.Status, ErrPostprocessFailed)
	}
	return nil
}

// Vacuum scans the database to reclaim expired records, step records at a
// time (0 means the whole database).
func (c *Client) Vacuum(ctx context.Context, step int64) error {
	if step < 0 {
		return c.usageError(KindVacuum, nil, "negative step")
	}
	_, err := c.callTextOK(ctx, KindVacuum, nil, c.textRequest(KindVacuum).AddInt("step", step))
	return err
}

// Status returns the database status fields (count, size, path...).
func (c *Client) Status(ctx context.Context) (map[string]string, error) {
	resp, err := c.callTextOK(ctx, KindStatus, nil, c.textRequest(KindStatus))
	if err != nil {
		return nil, err
	}
	return resp.Map(), nil
}

// Report returns the server report fields.
func (c *Client) Report(ctx context.Context) (map[string]string, error) {
	resp, err := c.callTextOK(ctx, KindReport, nil, c.textRequest(KindReport))
	if err != nil {
		return nil, err
	}
	return resp.Map(), nil
}

// Echo sends fields and returns what the server echoed back.
func (c *Client) Echo(ctx context.Context, fields []tsvrpc.Field) ([]tsvrpc.Field, error) {
	req := c.textRequest(KindEcho)
	for _, f := range fields {
		if f.Name == nil {
			return nil, c.usageError(KindEcho, nil, "nil field name")
		}
		req.Fields = append(req.Fields, f)
	}

	resp, err := c.callTextOK(ctx, KindEcho, nil, req)
	if err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// useBinary reports whether kind goes over the binary protocol. Single-key
// get, set and remove ride on their one-record bulk frames.
func (c *Client) useBinary(kind Kind, atomic bool) bool {
	if c.textOnly || atomic {
		return false
	}
	switch kind {
	case KindGet:
		kind = KindGetBulk
	case KindSet:
		kind = KindSetBulk
	case KindRemove:
		kind = KindRemoveBulk
	}
	return kind.BinarySupported()
}

// NewTextRequest returns a TSV-RPC request for kind that carries the
// client's database and column encoding. Add fields, then pass it to Submit.
func (c *Client) NewTextRequest(kind Kind) *Request {
	return &Request{Kind: kind, Text: c.textRequest(kind)}
}

// textRequest starts a TSV-RPC request carrying the selected database.
func (c *Client) textRequest(kind Kind) *tsvrpc.Request {
	req := tsvrpc.NewRequest(kind.Procedure(), c.encoding)
	if c.database != "" && kind != KindReport && kind != KindEcho {
		req.AddString("DB", c.database)
	}
	return req
}

func addExpiration(req *tsvrpc.Request, xt Expiration) {
	if xt.IsSet() {
		req.AddInt("xt", xt.Value())
	}
}

// callBinary runs a binary request. An error frame fails the call.
func (c *Client) callBinary(ctx context.Context, kind Kind, key []byte, req *binproto.Request) (*binproto.Response, error) {
	resp, err := c.Do(ctx, &Request{Kind: kind, Binary: req})
	if err != nil {
		return nil, c.opError(kind, key, 0, err)
	}
	if resp.Binary.IsError() {
		return nil, c.opError(kind, key, 0, ErrServerError)
	}
	return resp.Binary, nil
}

// callText runs a TSV-RPC request. Status 200 and 450 are returned for the
// caller to interpret; any other status fails the call.
func (c *Client) callText(ctx context.Context, kind Kind, key []byte, req *tsvrpc.Request) (*tsvrpc.Response, error) {
	resp, err := c.Do(ctx, &Request{Kind: kind, Text: req})
	if err != nil {
		return nil, c.opError(kind, key, 0, err)
	}
	switch resp.Text.Status {
	case tsvrpc.StatusOK, tsvrpc.StatusLogicalFailure:
		return resp.Text, nil
	default:
		return nil, c.opError(kind, key, resp.Text.Status, serverError(resp.Text))
	}
}

// callTextOK is callText for procedures where only status 200 is a success.
func (c *Client) callTextOK(ctx context.Context, kind Kind, key []byte, req *tsvrpc.Request) (*tsvrpc.Response, error) {
	resp, err := c.callText(ctx, kind, key, req)
	if err != nil {
		return nil, err
	}
	if !resp.IsOK() {
		return nil, c.opError(kind, key, resp.Status, serverError(resp))
	}
	return resp, nil
}

func (c *Client) fieldValue(kind Kind, key []byte, resp *tsvrpc.Response) ([]byte, error) {
	value, ok := resp.Value()
	if !ok {
		return nil, c.opError(kind, key, resp.Status, fmt.Errorf("%w: response has no value field", ErrServerError))
	}
	return value, nil
}

func (c *Client) fieldInt(kind Kind, key []byte, resp *tsvrpc.Response, name string) (int64, error) {
	n, err := resp.Int(name)
	if err != nil {
		return 0, c.opError(kind, key, resp.Status, err)
	}
	return n, nil
}

func (c *Client) checkKeyValue(kind Kind, key, value []byte) error {
	if key == nil {
		return c.usageError(kind, nil, "nil key")
	}
	if value == nil {
		return c.usageError(kind, key, "nil value")
	}
	return nil
}

func (c *Client) checkKeys(kind Kind, keys [][]byte) error {
	for _, key := range keys {
		if key == nil {
			return c.usageError(kind, nil, "nil key")
		}
	}
	return nil
}

func (c *Client) checkScript(name string, params []KeyValue) error {
	if name == "" {
		return c.usageError(KindPlayScript, nil, "empty procedure name")
	}
	for _, p := range params {
		if p.Key == nil || p.Value == nil {
			return c.usageError(KindPlayScript, nil, "nil parameter key or value")
		}
	}
	return nil
}

func (c *Client) usageError(kind Kind, key []byte, msg string) error {
	return c.opError(kind, key, 0, invalidArgument(msg))
}

func (c *Client) opError(kind Kind, key []byte, status int, err error) error {
	c.stats.recordError()
	return &OperationError{Op: kind.Procedure(), Key: key, Status: status, Err: err}
}

func serverError(resp *tsvrpc.Response) error {
	if msg := resp.ErrorMessage(); msg != "" {
		return fmt.Errorf("%w: %s", ErrServerError, msg)
	}
	return ErrServerError
}

func scriptError(resp *tsvrpc.Response) error {
	if msg := resp.ErrorMessage(); msg != "" {
		return fmt.Errorf("%w: %s", ErrScriptFailed, msg)
	}
	return ErrScriptFailed
}

// prefixedRecords turns the '_'-prefixed fields of a bulk or script response
// into records. TSV-RPC does not report expirations.
func prefixedRecords(resp *tsvrpc.Response) []Record {
	fields := resp.Prefixed()
	records := make([]Record, len(fields))
	for i, f := range fields {
		records[i] = Record{Key: f.Name, Value: f.Value}
	}
	return records
}
