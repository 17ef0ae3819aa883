package crdt

import "github.com/google/uuid"

// Txn stages mutations for one transaction. It is only valid inside the
// Transact callback that produced it; the document lock is held for the
// whole callback, so methods do no locking of their own.
type Txn struct {
	doc    *Doc
	origin Origin
	ops    []Op
	closed bool
}

func (t *Txn) check() {
	if t.closed {
		panic("crdt: Txn used outside its Transact callback")
	}
}

func newElemID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func clampIndex(i, length int) int {
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

// Len returns the current length of a sequence as seen by this transaction.
func (t *Txn) Len(seq string) int {
	t.check()
	return len(t.doc.seq(seq).elems)
}

// InsertRecord inserts a map-typed record at index (clamped to the valid
// range). Fields are copied one by one into fresh LWW registers so later
// partial updates merge at field granularity. Returns the element id.
func (t *Txn) InsertRecord(seq string, index int, fields map[string]Value) string {
	t.check()
	elemID := newElemID()
	s := t.doc.seq(seq)
	index = clampIndex(index, len(s.elems))

	e := &element{
		id:     elemID,
		isMap:  true,
		fields: make(map[string]*register, len(fields)),
	}
	rec := make(map[string]Value, len(fields))
	stamp := t.doc.clock.Tick()
	for k, v := range fields {
		nv := normalizeValue(v)
		e.fields[k] = &register{val: copyValue(nv), stamp: stamp, actor: t.doc.actor}
		rec[k] = copyValue(nv)
	}

	s.elems = append(s.elems, nil)
	copy(s.elems[index+1:], s.elems[index:])
	s.elems[index] = e
	s.seen[elemID] = true

	t.ops = append(t.ops, Op{
		Kind:   OpInsert,
		Seq:    seq,
		Elem:   elemID,
		Index:  index,
		Record: rec,
		Stamp:  stamp,
		Actor:  t.doc.actor,
	})
	return elemID
}

// InsertPlain inserts a legacy whole-value element. Only remote updates
// from older clients and their undo inverses take this path; local writes
// always normalize into map-typed records.
func (t *Txn) InsertPlain(seq string, index int, v Value) string {
	t.check()
	elemID := newElemID()
	s := t.doc.seq(seq)
	index = clampIndex(index, len(s.elems))

	nv := normalizeValue(v)
	stamp := t.doc.clock.Tick()
	e := &element{
		id:    elemID,
		plain: &register{val: copyValue(nv), stamp: stamp, actor: t.doc.actor},
	}

	s.elems = append(s.elems, nil)
	copy(s.elems[index+1:], s.elems[index:])
	s.elems[index] = e
	s.seen[elemID] = true

	t.ops = append(t.ops, Op{
		Kind:    OpInsert,
		Seq:     seq,
		Elem:    elemID,
		Index:   index,
		Plain:   copyValue(nv),
		IsPlain: true,
		Stamp:   stamp,
		Actor:   t.doc.actor,
	})
	return elemID
}

func (s *seqState) indexOf(elemID string) int {
	for i, e := range s.elems {
		if e.id == elemID {
			return i
		}
	}
	return -1
}

func (s *seqState) findByField(field string, want Value) (elemID string, index int, isMap bool, ok bool) {
	for i, e := range s.elems {
		if e.isMap {
			if reg, exists := e.fields[field]; exists && valueEqual(reg.val, want) {
				return e.id, i, true, true
			}
			continue
		}
		if m, mok := e.plain.val.(map[string]Value); mok {
			if v, exists := m[field]; exists && valueEqual(v, want) {
				return e.id, i, false, true
			}
		}
	}
	return "", -1, false, false
}

// FindByField locates the first element whose field equals want, as seen
// by this transaction. Scanning inside the transaction keeps the returned
// index valid for the mutations that follow it.
func (t *Txn) FindByField(seq, field string, want Value) (elemID string, index int, isMap bool, ok bool) {
	t.check()
	return t.doc.seq(seq).findByField(field, want)
}

// RecordAt returns a deep copy of the record at index i, as seen by this
// transaction. ok is false when the index is out of range or the element
// is a non-map legacy value.
func (t *Txn) RecordAt(seq string, i int) (map[string]Value, bool) {
	t.check()
	s := t.doc.seq(seq)
	if i < 0 || i >= len(s.elems) {
		return nil, false
	}
	return s.elems[i].snapshot()
}

// DeleteAt removes the element at index. No-op when out of range.
func (t *Txn) DeleteAt(seq string, index int) {
	t.check()
	s := t.doc.seq(seq)
	if index < 0 || index >= len(s.elems) {
		return
	}
	t.deleteElem(s, seq, index)
}

// DeleteElem removes the element with the given id. Returns false when no
// live element matches.
func (t *Txn) DeleteElem(seq, elemID string) bool {
	t.check()
	s := t.doc.seq(seq)
	i := s.indexOf(elemID)
	if i < 0 {
		return false
	}
	t.deleteElem(s, seq, i)
	return true
}

func (t *Txn) deleteElem(s *seqState, seq string, index int) {
	e := s.elems[index]
	s.elems = append(s.elems[:index], s.elems[index+1:]...)

	op := Op{
		Kind:     OpDelete,
		Seq:      seq,
		Elem:     e.id,
		Index:    index,
		prevElem: e,
	}
	if rec, ok := e.snapshot(); ok {
		op.Record = rec
	}
	if !e.isMap {
		op.Plain = copyValue(e.plain.val)
		op.IsPlain = true
	}
	t.ops = append(t.ops, op)
}

// ClearSeq deletes every element of the sequence, recording one delete op
// per element so the clear replicates and inverts like any other mutation.
func (t *Txn) ClearSeq(seq string) {
	t.check()
	s := t.doc.seq(seq)
	for len(s.elems) > 0 {
		t.deleteElem(s, seq, len(s.elems)-1)
	}
}

// SetField writes one field of a map-typed element. No-op when the element
// is missing or is a legacy plain value (callers fall back to
// delete+reinsert for those).
func (t *Txn) SetField(seq, elemID, field string, v Value) {
	t.check()
	s := t.doc.seq(seq)
	i := s.indexOf(elemID)
	if i < 0 || !s.elems[i].isMap {
		return
	}
	e := s.elems[i]
	nv := normalizeValue(v)
	stamp := t.doc.clock.Tick()

	op := Op{
		Kind:  OpSet,
		Seq:   seq,
		Elem:  elemID,
		Field: field,
		Value: copyValue(nv),
		Stamp: stamp,
		Actor: t.doc.actor,
	}
	if old, ok := e.fields[field]; ok {
		op.PrevValue = copyValue(old.val)
		op.HasPrev = true
		op.prevReg = old
	}
	e.fields[field] = &register{val: copyValue(nv), stamp: stamp, actor: t.doc.actor}
	t.ops = append(t.ops, op)
}

// DeleteField removes a field from a map-typed element. Exists for undo of
// partial updates that introduced a new field.
func (t *Txn) DeleteField(seq, elemID, field string) {
	t.check()
	s := t.doc.seq(seq)
	i := s.indexOf(elemID)
	if i < 0 || !s.elems[i].isMap {
		return
	}
	e := s.elems[i]
	old, ok := e.fields[field]
	if !ok {
		return
	}
	delete(e.fields, field)
	t.ops = append(t.ops, Op{
		Kind:      OpDelField,
		Seq:       seq,
		Elem:      elemID,
		Field:     field,
		Stamp:     t.doc.clock.Tick(),
		Actor:     t.doc.actor,
		PrevValue: copyValue(old.val),
		HasPrev:   true,
		prevReg:   old,
	})
}

// SetMapKey writes one entry of a named map.
func (t *Txn) SetMapKey(name, key string, v Value) {
	t.check()
	m := t.doc.mapc(name)
	nv := normalizeValue(v)
	stamp := t.doc.clock.Tick()

	op := Op{
		Kind:  OpMapSet,
		Map:   name,
		Key:   key,
		Value: copyValue(nv),
		Stamp: stamp,
		Actor: t.doc.actor,
	}
	if old, ok := m.entries[key]; ok {
		op.PrevValue = copyValue(old.val)
		op.HasPrev = true
		op.prevReg = old
	}
	m.entries[key] = &register{val: copyValue(nv), stamp: stamp, actor: t.doc.actor}
	t.ops = append(t.ops, op)
}

// DeleteMapKey removes one entry of a named map. No-op when absent.
func (t *Txn) DeleteMapKey(name, key string) {
	t.check()
	m := t.doc.mapc(name)
	old, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	t.ops = append(t.ops, Op{
		Kind:      OpMapDel,
		Map:       name,
		Key:       key,
		Stamp:     t.doc.clock.Tick(),
		Actor:     t.doc.actor,
		PrevValue: copyValue(old.val),
		HasPrev:   true,
		prevReg:   old,
	})
}

// Apply replays a previously captured op and returns the op as applied.
// Used by undo managers to apply inverse deltas. Insert replay allocates a
// fresh element id: replicas that merged the original insert and its
// delete hold the old id in their tombstone set and would drop a reinsert
// carrying it. Callers must remap any stacked op that still references the
// old id to the returned one.
func (t *Txn) Apply(op Op) Op {
	switch op.Kind {
	case OpInsert:
		if op.IsPlain {
			op.Elem = t.InsertPlain(op.Seq, op.Index, op.Plain)
			return op
		}
		op.Elem = t.InsertRecord(op.Seq, op.Index, op.Record)
	case OpDelete:
		t.DeleteElem(op.Seq, op.Elem)
	case OpSet:
		t.SetField(op.Seq, op.Elem, op.Field, op.Value)
	case OpDelField:
		t.DeleteField(op.Seq, op.Elem, op.Field)
	case OpMapSet:
		t.SetMapKey(op.Map, op.Key, op.Value)
	case OpMapDel:
		t.DeleteMapKey(op.Map, op.Key)
	}
	return op
}

// rollback undoes every staged op in reverse order, restoring the exact
// prior registers. Called with the document lock held.
func (t *Txn) rollback() {
	t.closed = true
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		switch op.Kind {
		case OpInsert:
			s := t.doc.seq(op.Seq)
			if j := s.indexOf(op.Elem); j >= 0 {
				s.elems = append(s.elems[:j], s.elems[j+1:]...)
			}
			delete(s.seen, op.Elem)
		case OpDelete:
			s := t.doc.seq(op.Seq)
			index := clampIndex(op.Index, len(s.elems))
			s.elems = append(s.elems, nil)
			copy(s.elems[index+1:], s.elems[index:])
			s.elems[index] = op.prevElem
		case OpSet, OpDelField:
			s := t.doc.seq(op.Seq)
			if j := s.indexOf(op.Elem); j >= 0 {
				if op.prevReg != nil {
					s.elems[j].fields[op.Field] = op.prevReg
				} else {
					delete(s.elems[j].fields, op.Field)
				}
			}
		case OpMapSet, OpMapDel:
			m := t.doc.mapc(op.Map)
			if op.prevReg != nil {
				m.entries[op.Key] = op.prevReg
			} else {
				delete(m.entries, op.Key)
			}
		}
	}
	t.ops = nil
}
