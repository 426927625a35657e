package kt

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/kt/binproto"
)

func TestExpiration(t *testing.T) {
	deadline := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name   string
		build  func() (Expiration, error)
		value  int64
		binary int64
		str    string
	}{
		{"none", func() (Expiration, error) { return NoExpiration, nil }, 0, math.MaxInt64, "none"},
		{"ttl", func() (Expiration, error) { return After(30) }, 30, 30, "30"},
		{"zero ttl", func() (Expiration, error) { return After(0) }, 0, 0, "0"},
		{"duration", func() (Expiration, error) { return AfterDuration(90 * time.Second) }, 90, 90, "90"},
		{"sub-second duration", func() (Expiration, error) { return AfterDuration(1500 * time.Millisecond) }, 1, 1, "1"},
		{"absolute", func() (Expiration, error) { return At(1_700_000_000) }, -1_700_000_000, -1_700_000_000, "-1700000000"},
		{"time", func() (Expiration, error) { return AtTime(deadline) }, -1_700_000_000, -1_700_000_000, "-1700000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xt, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.value, xt.Value())
			assert.Equal(t, tt.binary, xt.binary())
			assert.Equal(t, tt.str, xt.String())
			assert.Equal(t, tt.name != "none", xt.IsSet())
		})
	}
}

func TestExpiration_RejectsNegative(t *testing.T) {
	_, err := After(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = At(-5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = AfterDuration(-time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind      Kind
		procedure string
		magic     byte
	}{
		{KindGet, "get", 0},
		{KindGetBulk, "get_bulk", binproto.MagicGetBulk},
		{KindSet, "set", 0},
		{KindSetBulk, "set_bulk", binproto.MagicSetBulk},
		{KindRemove, "remove", 0},
		{KindRemoveBulk, "remove_bulk", binproto.MagicRemoveBulk},
		{KindIncrement, "increment", 0},
		{KindIncrementDouble, "increment_double", 0},
		{KindCAS, "cas", 0},
		{KindClear, "clear", 0},
		{KindSeize, "seize", 0},
		{KindReplace, "replace", 0},
		{KindAdd, "add", 0},
		{KindMatchPrefix, "match_prefix", 0},
		{KindMatchRegex, "match_regex", 0},
		{KindPlayScript, "play_script", binproto.MagicPlayScript},
		{KindVoid, "void", 0},
		{KindSynchronize, "synchronize", 0},
		{KindVacuum, "vacuum", 0},
		{KindStatus, "status", 0},
		{KindReport, "report", 0},
		{KindEcho, "echo", 0},
	}

	require.Len(t, tests, len(kinds), "every kind is covered")

	for _, tt := range tests {
		t.Run(tt.procedure, func(t *testing.T) {
			assert.Equal(t, tt.procedure, tt.kind.Procedure())
			assert.Equal(t, tt.procedure, tt.kind.String())

			magic, ok := tt.kind.Magic()
			assert.Equal(t, tt.magic != 0, ok)
			assert.Equal(t, tt.magic, magic)
			assert.Equal(t, ok, tt.kind.BinarySupported())
		})
	}

	assert.Equal(t, "unknown", Kind(200).Procedure())
	assert.False(t, Kind(200).BinarySupported())
}

func TestUseBinary(t *testing.T) {
	binaryClient := &Client{}
	textClient := &Client{textOnly: true}

	tests := []struct {
		kind     Kind
		atomic   bool
		expected bool
	}{
		{KindGet, false, true},
		{KindSet, false, true},
		{KindRemove, false, true},
		{KindGetBulk, false, true},
		{KindGetBulk, true, false},
		{KindSetBulk, true, false},
		{KindPlayScript, false, true},
		{KindIncrement, false, false},
		{KindCAS, false, false},
		{KindVoid, false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, binaryClient.useBinary(tt.kind, tt.atomic), "%s atomic=%v", tt.kind, tt.atomic)
		assert.False(t, textClient.useBinary(tt.kind, tt.atomic), "%s in text-only mode", tt.kind)
	}
}

func TestBulkResult(t *testing.T) {
	result := newBulkResult([]Record{
		{Key: []byte("a"), Value: []byte("1"), Expiration: 10},
		{Key: []byte("b"), Value: []byte("2")},
	})

	assert.Equal(t, 2, result.Len())

	rec, ok := result.Lookup([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, int64(10), rec.Expiration)

	_, ok = result.Get([]byte("c"))
	assert.False(t, ok)

	records := result.Records()
	records[0].Key = []byte("changed")
	_, ok = result.Get([]byte("a"))
	assert.True(t, ok, "Records returns a copy")

	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, result.Map())
}

func TestOperationError(t *testing.T) {
	tests := []struct {
		name     string
		err      *OperationError
		expected string
	}{
		{"op only", &OperationError{Op: "void", Err: ErrServerError}, "kt: void failed: kt: server error"},
		{"with key", &OperationError{Op: "get", Key: []byte("k"), Err: ErrServerError}, `kt: get failed: key="k": kt: server error`},
		{"with status", &OperationError{Op: "increment", Key: []byte("n"), Status: 450, Err: ErrNotNumeric}, `kt: increment failed: key="n": status=450: kt: existing value is not numeric`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.True(t, errors.Is(tt.err, tt.err.Err))
		})
	}
}

func TestConnectionError(t *testing.T) {
	err := &ConnectionError{Op: "read", Err: errors.New("reset by peer")}

	assert.Equal(t, "kt: connection error during read: reset by peer", err.Error())
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.True(t, err.ShouldCloseConnection())
}
