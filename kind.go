package kt

import "github.com/pior/kt/binproto"

// Kind identifies an operation. Each kind has a TSV-RPC procedure name; the
// bulk kinds and PLAY_SCRIPT also have a binary frame.
type Kind uint8

const (
	KindGet Kind = iota
	KindGetBulk
	KindSet
	KindSetBulk
	KindRemove
	KindRemoveBulk
	KindIncrement
	KindIncrementDouble
	KindCAS
	KindClear
	KindSeize
	KindReplace
	KindAdd
	KindMatchPrefix
	KindMatchRegex
	KindPlayScript
	KindVoid
	KindSynchronize
	KindVacuum
	KindStatus
	KindReport
	KindEcho
)

var kinds = [...]struct {
	procedure string
	magic     byte // zero when no binary frame exists
}{
	KindGet:             {procedure: "get"},
	KindGetBulk:         {procedure: "get_bulk", magic: binproto.MagicGetBulk},
	KindSet:             {procedure: "set"},
	KindSetBulk:         {procedure: "set_bulk", magic: binproto.MagicSetBulk},
	KindRemove:          {procedure: "remove"},
	KindRemoveBulk:      {procedure: "remove_bulk", magic: binproto.MagicRemoveBulk},
	KindIncrement:       {procedure: "increment"},
	KindIncrementDouble: {procedure: "increment_double"},
	KindCAS:             {procedure: "cas"},
	KindClear:           {procedure: "clear"},
	KindSeize:           {procedure: "seize"},
	KindReplace:         {procedure: "replace"},
	KindAdd:             {procedure: "add"},
	KindMatchPrefix:     {procedure: "match_prefix"},
	KindMatchRegex:      {procedure: "match_regex"},
	KindPlayScript:      {procedure: "play_script", magic: binproto.MagicPlayScript},
	KindVoid:            {procedure: "void"},
	KindSynchronize:     {procedure: "synchronize"},
	KindVacuum:          {procedure: "vacuum"},
	KindStatus:          {procedure: "status"},
	KindReport:          {procedure: "report"},
	KindEcho:            {procedure: "echo"},
}

// Procedure returns the TSV-RPC procedure name, also used in error messages.
func (k Kind) Procedure() string {
	if int(k) < len(kinds) {
		return kinds[k].procedure
	}
	return "unknown"
}

func (k Kind) String() string {
	return k.Procedure()
}

// Magic returns the binary magic byte of the kind.
func (k Kind) Magic() (byte, bool) {
	if int(k) < len(kinds) && kinds[k].magic != 0 {
		return kinds[k].magic, true
	}
	return 0, false
}

// BinarySupported reports whether the binary protocol can express the kind.
func (k Kind) BinarySupported() bool {
	_, ok := k.Magic()
	return ok
}
