package crdt

// Origin tags a transaction with where its mutations came from. Undo
// managers only capture OriginLocal transactions; remote deltas are merged
// under OriginRemote and never become undoable.
type Origin string

const (
	// OriginLocal marks mutations made by this client. The default for
	// collection operations.
	OriginLocal Origin = "local"

	// OriginRemote marks deltas merged from another replica.
	OriginRemote Origin = "remote"

	// OriginUndo marks mutations replayed by an undo/redo manager.
	OriginUndo Origin = "undo-redo"
)

// OpKind identifies a single mutation within a transaction.
type OpKind string

const (
	OpInsert   OpKind = "insert"
	OpDelete   OpKind = "delete"
	OpSet      OpKind = "set"
	OpDelField OpKind = "delfield"
	OpMapSet   OpKind = "mapset"
	OpMapDel   OpKind = "mapdel"
)

// Op is one mutation inside a committed transaction. Ops carry enough
// information to be shipped to another replica (Stamp/Actor for LWW
// resolution) and to be inverted by an undo manager (Prev* fields).
//
// Prev* fields are populated for local consumers only and are not part of
// the replication contract.
type Op struct {
	Kind OpKind `json:"kind"`

	// Seq and Elem address a sequence element; Map and Key address a map
	// entry. Exactly one addressing style is set per op.
	Seq  string `json:"seq,omitempty"`
	Elem string `json:"elem,omitempty"`
	Map  string `json:"map,omitempty"`
	Key  string `json:"key,omitempty"`

	// Index is the insertion position for OpInsert and the position the
	// element held for OpDelete.
	Index int `json:"index,omitempty"`

	Field string `json:"field,omitempty"`
	Value Value  `json:"value,omitempty"`

	// Record holds the full field set for OpInsert, and the removed
	// record for OpDelete so the deletion can be inverted.
	Record map[string]Value `json:"record,omitempty"`

	// Plain carries the payload for legacy non-map elements.
	Plain   Value `json:"plain,omitempty"`
	IsPlain bool  `json:"isPlain,omitempty"`

	Stamp int64  `json:"stamp,omitempty"`
	Actor string `json:"actor,omitempty"`

	// PrevValue is the overwritten value for OpSet/OpMapSet/OpDelField.
	// HasPrev is false when the field did not exist before.
	PrevValue Value `json:"-"`
	HasPrev   bool  `json:"-"`

	// Exact prior state for transaction rollback.
	prevElem *element
	prevReg  *register
}

// TxnEvent is delivered to document subscribers once per committed
// transaction, carrying the coalesced op list.
type TxnEvent struct {
	Origin Origin
	Ops    []Op
}

// Touches reports whether the event mutated the named sequence.
func (e TxnEvent) Touches(seq string) bool {
	for _, op := range e.Ops {
		if op.Seq == seq {
			return true
		}
	}
	return false
}

type logEntry struct {
	origin Origin
	op     Op
}
