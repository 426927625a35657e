package kt

import (
	"context"

	"github.com/pior/kt/tsvrpc"
)

// Querier is the operation surface of Client. Code that only issues calls
// should depend on it rather than on *Client.
type Querier interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Set(ctx context.Context, key, value []byte, xt Expiration) error
	Remove(ctx context.Context, key []byte) (bool, error)

	GetBulk(ctx context.Context, keys [][]byte, atomic bool) (*BulkResult, error)
	SetBulk(ctx context.Context, entries []KeyValue, xt Expiration, atomic bool) (int64, error)
	RemoveBulk(ctx context.Context, keys [][]byte, atomic bool) (int64, error)

	Increment(ctx context.Context, key []byte, num, orig int64, xt Expiration) (int64, error)
	IncrementDouble(ctx context.Context, key []byte, num, orig float64, xt Expiration) (float64, error)
	CAS(ctx context.Context, key, oval, nval []byte, xt Expiration) (bool, error)
	Add(ctx context.Context, key, value []byte, xt Expiration) (bool, error)
	Replace(ctx context.Context, key, value []byte, xt Expiration) (bool, error)
	Seize(ctx context.Context, key []byte) ([]byte, bool, error)

	Clear(ctx context.Context) error
	MatchPrefix(ctx context.Context, prefix []byte, max int64) ([][]byte, error)
	MatchRegex(ctx context.Context, regex string, max int64) ([][]byte, error)
	PlayScript(ctx context.Context, name string, params []KeyValue) (*BulkResult, error)
	PlayScriptBinary(ctx context.Context, name string, params []KeyValue) (*BulkResult, error)

	Void(ctx context.Context) error
	Synchronize(ctx context.Context, hard bool, command string) error
	Vacuum(ctx context.Context, step int64) error
	Status(ctx context.Context) (map[string]string, error)
	Report(ctx context.Context) (map[string]string, error)
	Echo(ctx context.Context, fields []tsvrpc.Field) ([]tsvrpc.Field, error)
}

var _ Querier = (*Client)(nil)
