package collection

import "github.com/sorrow233/flowsync/internal/crdt"

type applyState int

const (
	applyNone applyState = iota
	applyUndo
	applyRedo
)

// undoManager keeps per-sequence undo and redo stacks of inverse
// transaction deltas. Only OriginLocal transactions are captured; remote
// deltas never enter the stacks and are never undone. Deltas replayed by
// Undo/Redo run under OriginUndo and are routed onto the opposite stack.
type undoManager struct {
	col      *Collection
	undo     [][]crdt.Op
	redo     [][]crdt.Op
	applying applyState
}

func newUndoManager(c *Collection) *undoManager {
	return &undoManager{col: c}
}

// capture is called (under the collection lock) for every transaction
// touching the bound sequence.
func (u *undoManager) capture(e crdt.TxnEvent) {
	switch e.Origin {
	case crdt.OriginLocal:
		inv := invertOps(e.Ops, u.col.name)
		if len(inv) == 0 {
			return
		}
		u.undo = append(u.undo, inv)
		u.redo = nil
	case crdt.OriginUndo:
		inv := invertOps(e.Ops, u.col.name)
		if len(inv) == 0 {
			return
		}
		switch u.applying {
		case applyUndo:
			u.redo = append(u.redo, inv)
		case applyRedo:
			u.undo = append(u.undo, inv)
		}
	}
}

func (u *undoManager) undoOnce() {
	u.col.mu.Lock()
	if len(u.undo) == 0 {
		u.col.mu.Unlock()
		return
	}
	delta := u.undo[len(u.undo)-1]
	u.undo = u.undo[:len(u.undo)-1]
	u.applying = applyUndo
	u.col.mu.Unlock()

	u.apply(delta)

	u.col.mu.Lock()
	u.applying = applyNone
	u.col.mu.Unlock()
}

func (u *undoManager) redoOnce() {
	u.col.mu.Lock()
	if len(u.redo) == 0 {
		u.col.mu.Unlock()
		return
	}
	delta := u.redo[len(u.redo)-1]
	u.redo = u.redo[:len(u.redo)-1]
	u.applying = applyRedo
	u.col.mu.Unlock()

	u.apply(delta)

	u.col.mu.Lock()
	u.applying = applyNone
	u.col.mu.Unlock()
}

// apply replays one inverse delta. Reinserts come back under fresh
// element ids (the old ones are tombstoned on every replica that saw the
// delete), so stacked ops still referencing an old id are rewritten to
// the replacement afterwards.
func (u *undoManager) apply(delta []crdt.Op) {
	remap := make(map[string]string)
	_ = u.col.doc.Transact(crdt.OriginUndo, func(tx *crdt.Txn) error {
		for _, op := range delta {
			if id, ok := remap[op.Elem]; ok {
				op.Elem = id
			}
			applied := tx.Apply(op)
			if op.Kind == crdt.OpInsert && applied.Elem != op.Elem {
				remap[op.Elem] = applied.Elem
			}
		}
		return nil
	})
	if len(remap) == 0 {
		return
	}

	u.col.mu.Lock()
	rewriteElems(u.undo, remap)
	rewriteElems(u.redo, remap)
	u.col.mu.Unlock()
}

func rewriteElems(stack [][]crdt.Op, remap map[string]string) {
	for _, delta := range stack {
		for i := range delta {
			if id, ok := remap[delta[i].Elem]; ok {
				delta[i].Elem = id
			}
		}
	}
}

// invertOps builds the inverse delta for one transaction, restricted to
// the given sequence, in reverse application order.
func invertOps(ops []crdt.Op, seq string) []crdt.Op {
	var out []crdt.Op
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if op.Seq != seq {
			continue
		}
		switch op.Kind {
		case crdt.OpInsert:
			out = append(out, crdt.Op{Kind: crdt.OpDelete, Seq: seq, Elem: op.Elem})
		case crdt.OpDelete:
			out = append(out, crdt.Op{
				Kind:    crdt.OpInsert,
				Seq:     seq,
				Elem:    op.Elem,
				Index:   op.Index,
				Record:  op.Record,
				Plain:   op.Plain,
				IsPlain: op.IsPlain,
			})
		case crdt.OpSet:
			if op.HasPrev {
				out = append(out, crdt.Op{
					Kind:  crdt.OpSet,
					Seq:   seq,
					Elem:  op.Elem,
					Field: op.Field,
					Value: op.PrevValue,
				})
			} else {
				out = append(out, crdt.Op{
					Kind:  crdt.OpDelField,
					Seq:   seq,
					Elem:  op.Elem,
					Field: op.Field,
				})
			}
		case crdt.OpDelField:
			out = append(out, crdt.Op{
				Kind:  crdt.OpSet,
				Seq:   seq,
				Elem:  op.Elem,
				Field: op.Field,
				Value: op.PrevValue,
			})
		}
	}
	return out
}
