// Package collection provides the typed CRUD façade over one CRDT
// sequence, with a per-collection undo/redo manager scoped to local
// mutations.
package collection

import (
	"sync"

	"github.com/sorrow233/flowsync/internal/crdt"
)

// Record is a plain snapshot of one sequence entry.
type Record = map[string]crdt.Value

// Collection binds a document sequence to add/update/remove/list
// semantics. Records participating in Update/Remove must carry a unique
// "id" field; uniqueness is a caller invariant, and duplicates make those
// operations target only the first match in scan order.
type Collection struct {
	doc  *crdt.Doc
	name string

	mu       sync.Mutex
	subs     []snapshotSub
	nextSub  int
	docToken int
	undo     *undoManager
}

type snapshotSub struct {
	id int
	fn func([]Record)
}

// Open binds a collection to the named sequence of doc. The undo/redo
// scope is created when the first subscriber attaches and destroyed (with
// its stacks) when the last one detaches.
func Open(doc *crdt.Doc, name string) *Collection {
	return &Collection{doc: doc, name: name}
}

// Name returns the bound sequence name.
func (c *Collection) Name() string { return c.name }

// List returns a deep, plain snapshot of the sequence in current order.
func (c *Collection) List() []Record {
	return c.doc.SeqRecords(c.name)
}

// Add inserts a record at the head of the sequence inside a local
// transaction. Fields are copied one by one into a map-typed CRDT record
// so later partial updates merge at field granularity.
func (c *Collection) Add(rec Record) {
	_ = c.doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		tx.InsertRecord(c.name, 0, rec)
		return nil
	})
}

// Update applies partial fields to the first record whose "id" field
// equals id. Each field is set individually so concurrent edits to other
// fields of the same record survive a merge. Legacy non-map values fall
// back to delete+reinsert at the same index. Silent no-op when no record
// matches.
func (c *Collection) Update(id string, partial Record) {
	_ = c.doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		// Scan inside the transaction so a concurrent remote merge cannot
		// shift the index between the lookup and the writes.
		elemID, index, isMap, ok := tx.FindByField(c.name, "id", id)
		if !ok {
			return nil
		}

		if isMap {
			for field, v := range partial {
				tx.SetField(c.name, elemID, field, v)
			}
			return nil
		}

		// Legacy plain value: replace whole record at the same index,
		// normalizing into the map representation while at it.
		old, _ := tx.RecordAt(c.name, index)
		merged := make(Record, len(old)+len(partial))
		for k, v := range old {
			merged[k] = v
		}
		for k, v := range partial {
			merged[k] = v
		}
		tx.DeleteAt(c.name, index)
		tx.InsertRecord(c.name, index, merged)
		return nil
	})
}

// Remove deletes the first record whose "id" field equals id, inside a
// transaction. Silent no-op when no record matches.
func (c *Collection) Remove(id string) {
	elemID, _, _, ok := c.doc.FindByField(c.name, "id", id)
	if !ok {
		return
	}
	_ = c.doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		tx.DeleteElem(c.name, elemID)
		return nil
	})
}

// Subscribe attaches a listener that receives a fresh snapshot after every
// transaction touching this sequence. The first subscriber activates the
// undo/redo scope.
func (c *Collection) Subscribe(fn func([]Record)) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subs) == 0 {
		c.undo = newUndoManager(c)
		c.docToken = c.doc.Subscribe(c.onDocEvent)
	}
	c.nextSub++
	c.subs = append(c.subs, snapshotSub{id: c.nextSub, fn: fn})
	return c.nextSub
}

// Unsubscribe detaches a listener. When the last one detaches the undo
// scope is destroyed and its stacks cleared.
func (c *Collection) Unsubscribe(token int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.subs {
		if s.id == token {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	if len(c.subs) == 0 && c.docToken != 0 {
		c.doc.Unsubscribe(c.docToken)
		c.docToken = 0
		c.undo = nil
	}
}

func (c *Collection) onDocEvent(e crdt.TxnEvent) {
	if !e.Touches(c.name) {
		return
	}

	c.mu.Lock()
	if c.undo != nil {
		c.undo.capture(e)
	}
	subs := append([]snapshotSub(nil), c.subs...)
	c.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	snap := c.List()
	for _, s := range subs {
		s.fn(snap)
	}
}

// Undo reverts the most recent local-origin transaction affecting this
// sequence. No-op when the undo stack is empty or no subscriber is
// attached.
func (c *Collection) Undo() {
	c.mu.Lock()
	u := c.undo
	c.mu.Unlock()
	if u != nil {
		u.undoOnce()
	}
}

// Redo replays the most recently undone transaction. No-op when the redo
// stack is empty.
func (c *Collection) Redo() {
	c.mu.Lock()
	u := c.undo
	c.mu.Unlock()
	if u != nil {
		u.redoOnce()
	}
}

// CanUndo reports whether an undoable local transaction is on the stack.
func (c *Collection) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undo != nil && len(c.undo.undo) > 0
}

// CanRedo reports whether an undone transaction can be replayed.
func (c *Collection) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undo != nil && len(c.undo.redo) > 0
}
