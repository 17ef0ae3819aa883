package crdt

import (
	"encoding/json"
	"fmt"
)

// Update is the wire form of a batch of ops shipped between replicas.
type Update struct {
	DocID string `json:"docId"`
	Actor string `json:"actor"`
	Ops   []Op   `json:"ops"`
}

// EncodeUpdateSince serializes every locally-originated op appended to the
// log at or after cursor. Returns the encoded update (nil when there is
// nothing new) and the cursor to pass next time.
func (d *Doc) EncodeUpdateSince(cursor int) ([]byte, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(d.log) {
		return nil, len(d.log), nil
	}

	var ops []Op
	for _, entry := range d.log[cursor:] {
		if entry.origin == OriginRemote {
			continue
		}
		ops = append(ops, entry.op)
	}
	next := len(d.log)
	if len(ops) == 0 {
		return nil, next, nil
	}

	raw, err := json.Marshal(Update{DocID: d.id, Actor: d.actor, Ops: ops})
	if err != nil {
		return nil, cursor, fmt.Errorf("encode update: %w", err)
	}
	return raw, next, nil
}

// ApplyUpdate merges an encoded update from another replica under
// OriginRemote. Inserts are deduplicated by element id, deletes are
// idempotent, and field sets resolve by (stamp, actor) last-writer-wins.
// The merge is commutative for field sets, so replicas applying each
// other's updates in any interleaving converge.
func (d *Doc) ApplyUpdate(raw []byte) error {
	var upd Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}
	return d.Transact(OriginRemote, func(tx *Txn) error {
		for _, op := range upd.Ops {
			tx.applyRemote(op)
		}
		return nil
	})
}

// applyRemote merges one remote op into the document state, recording it
// on the transaction only when it actually changed something.
func (t *Txn) applyRemote(op Op) {
	d := t.doc
	d.clock.Observe(op.Stamp)

	switch op.Kind {
	case OpInsert:
		s := d.seq(op.Seq)
		if s.seen[op.Elem] {
			return
		}
		index := clampIndex(op.Index, len(s.elems))
		var e *element
		if op.IsPlain {
			e = &element{
				id:    op.Elem,
				plain: &register{val: normalizeValue(op.Plain), stamp: op.Stamp, actor: op.Actor},
			}
		} else {
			e = &element{
				id:     op.Elem,
				isMap:  true,
				fields: make(map[string]*register, len(op.Record)),
			}
			for k, v := range op.Record {
				e.fields[k] = &register{val: normalizeValue(v), stamp: op.Stamp, actor: op.Actor}
			}
		}
		s.elems = append(s.elems, nil)
		copy(s.elems[index+1:], s.elems[index:])
		s.elems[index] = e
		s.seen[op.Elem] = true
		t.ops = append(t.ops, op)

	case OpDelete:
		s := d.seq(op.Seq)
		s.seen[op.Elem] = true
		i := s.indexOf(op.Elem)
		if i < 0 {
			return
		}
		op.Index = i
		s.elems = append(s.elems[:i], s.elems[i+1:]...)
		t.ops = append(t.ops, op)

	case OpSet:
		s := d.seq(op.Seq)
		i := s.indexOf(op.Elem)
		if i < 0 || !s.elems[i].isMap {
			return
		}
		e := s.elems[i]
		if old, ok := e.fields[op.Field]; ok && !old.wins(op.Stamp, op.Actor) {
			return
		}
		e.fields[op.Field] = &register{val: normalizeValue(op.Value), stamp: op.Stamp, actor: op.Actor}
		t.ops = append(t.ops, op)

	case OpDelField:
		s := d.seq(op.Seq)
		i := s.indexOf(op.Elem)
		if i < 0 || !s.elems[i].isMap {
			return
		}
		e := s.elems[i]
		old, ok := e.fields[op.Field]
		if !ok || !old.wins(op.Stamp, op.Actor) {
			return
		}
		delete(e.fields, op.Field)
		t.ops = append(t.ops, op)

	case OpMapSet:
		m := d.mapc(op.Map)
		if old, ok := m.entries[op.Key]; ok && !old.wins(op.Stamp, op.Actor) {
			return
		}
		m.entries[op.Key] = &register{val: normalizeValue(op.Value), stamp: op.Stamp, actor: op.Actor}
		t.ops = append(t.ops, op)

	case OpMapDel:
		m := d.mapc(op.Map)
		old, ok := m.entries[op.Key]
		if !ok || !old.wins(op.Stamp, op.Actor) {
			return
		}
		delete(m.entries, op.Key)
		t.ops = append(t.ops, op)
	}
}
