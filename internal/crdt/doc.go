// Package crdt implements the conflict-free replicated document backing
// the synchronized collection store.
//
// A Doc owns named sequences (insertion-ordered lists of records) and named
// maps (key-value). All mutation happens inside a Transact boundary tagged
// with an Origin; subscribers observe exactly one TxnEvent per committed
// transaction. Field writes are last-writer-wins registers stamped with a
// (lamport, actor) pair, so concurrent writes to different fields of the
// same record both survive a merge, and same-field conflicts resolve
// deterministically.
package crdt

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// register is a single LWW cell.
type register struct {
	val   Value
	stamp int64
	actor string
}

// wins reports whether a write stamped (stamp, actor) should replace r.
// Greater stamp wins; equal stamps tie-break on actor id so every replica
// picks the same winner.
func (r *register) wins(stamp int64, actor string) bool {
	if stamp != r.stamp {
		return stamp > r.stamp
	}
	return actor > r.actor
}

// element is one entry in a sequence. Map-typed elements hold a register
// per field so partial updates merge at field granularity. Plain elements
// exist only for data written by older clients and merge whole-value.
type element struct {
	id     string
	isMap  bool
	fields map[string]*register
	plain  *register
}

type seqState struct {
	elems []*element
	// seen records every element id ever inserted, including deleted
	// ones, so redelivered remote inserts are dropped.
	seen map[string]bool
}

type mapState struct {
	entries map[string]*register
}

type subscriber struct {
	id int
	fn func(TxnEvent)
}

// Doc is one CRDT document.
//
// The zero value is not usable; construct with NewDoc. All exported
// methods are safe for concurrent use: a mutex guards state so the remote
// channel goroutine can merge updates while the owner goroutine mutates.
type Doc struct {
	mu      sync.Mutex
	id      string
	actor   string
	clock   *Clock
	seqs    map[string]*seqState
	maps    map[string]*mapState
	subs    []subscriber
	nextSub int
	log     []logEntry
	inTxn   bool
}

// NewDoc creates an empty document. actor identifies this replica for LWW
// tie-breaking; pass an empty string to get a random UUIDv7 actor.
func NewDoc(id, actor string) *Doc {
	if actor == "" {
		actor = uuid.Must(uuid.NewV7()).String()
	}
	return &Doc{
		id:    id,
		actor: actor,
		clock: NewClock(),
		seqs:  make(map[string]*seqState),
		maps:  make(map[string]*mapState),
	}
}

// ID returns the document identifier.
func (d *Doc) ID() string { return d.id }

// Actor returns this replica's actor id.
func (d *Doc) Actor() string { return d.actor }

// Subscribe registers a deep-change listener fired once per committed
// transaction. Returns a token for Unsubscribe. Listeners run on the
// committing goroutine, after the document lock is released, in
// subscription order.
func (d *Doc) Subscribe(fn func(TxnEvent)) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSub++
	d.subs = append(d.subs, subscriber{id: d.nextSub, fn: fn})
	return d.nextSub
}

// Unsubscribe removes a listener by token. Unknown tokens are ignored.
func (d *Doc) Unsubscribe(token int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == token {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// seq returns the named sequence, creating it lazily. Callers hold d.mu.
func (d *Doc) seq(name string) *seqState {
	s, ok := d.seqs[name]
	if !ok {
		s = &seqState{seen: make(map[string]bool)}
		d.seqs[name] = s
	}
	return s
}

// mapc returns the named map, creating it lazily. Callers hold d.mu.
func (d *Doc) mapc(name string) *mapState {
	m, ok := d.maps[name]
	if !ok {
		m = &mapState{entries: make(map[string]*register)}
		d.maps[name] = m
	}
	return m
}

func (e *element) snapshot() (map[string]Value, bool) {
	if e.isMap {
		out := make(map[string]Value, len(e.fields))
		for k, reg := range e.fields {
			out[k] = copyValue(reg.val)
		}
		return out, true
	}
	if m, ok := e.plain.val.(map[string]Value); ok {
		return copyRecord(m), true
	}
	return nil, false
}

// SeqLen returns the number of elements in the named sequence.
func (d *Doc) SeqLen(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seq(name).elems)
}

// SeqRecords returns a deep plain snapshot of the sequence in order.
// Legacy plain elements whose payload is not map-shaped are omitted.
func (d *Doc) SeqRecords(name string) []map[string]Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.seq(name)
	out := make([]map[string]Value, 0, len(s.elems))
	for _, e := range s.elems {
		if rec, ok := e.snapshot(); ok {
			out = append(out, rec)
		}
	}
	return out
}

// RecordAt returns a deep copy of the record at index i. ok is false when
// the index is out of range or the element is a non-map legacy value.
func (d *Doc) RecordAt(name string, i int) (map[string]Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.seq(name)
	if i < 0 || i >= len(s.elems) {
		return nil, false
	}
	return s.elems[i].snapshot()
}

// FindByField locates the first element whose field equals want, in scan
// order. isMap is false for legacy plain elements.
func (d *Doc) FindByField(name, field string, want Value) (elemID string, index int, isMap bool, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq(name).findByField(field, want)
}

// SeqNames returns the name of every instantiated sequence, sorted.
func (d *Doc) SeqNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.seqs))
	for name := range d.seqs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MapNames returns the name of every instantiated map, sorted.
func (d *Doc) MapNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.maps))
	for name := range d.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MapSnapshot returns a deep copy of the named map.
func (d *Doc) MapSnapshot(name string) map[string]Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.mapc(name)
	out := make(map[string]Value, len(m.entries))
	for k, reg := range m.entries {
		out[k] = copyValue(reg.val)
	}
	return out
}

// MapGet returns one entry of the named map.
func (d *Doc) MapGet(name, key string) (Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reg, ok := d.mapc(name).entries[key]
	if !ok {
		return nil, false
	}
	return copyValue(reg.val), true
}

// IsEmpty reports whether every named sequence has zero elements.
func (d *Doc) IsEmpty(names ...string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range names {
		if len(d.seq(name).elems) > 0 {
			return false
		}
	}
	return true
}

// Transact runs fn inside a transaction boundary tagged with origin.
// All mutations made through the Txn are coalesced into one TxnEvent.
// If fn returns an error the staged mutations are rolled back and no
// event is delivered. Nested transactions panic.
func (d *Doc) Transact(origin Origin, fn func(*Txn) error) error {
	d.mu.Lock()
	if d.inTxn {
		d.mu.Unlock()
		panic("crdt: nested transaction")
	}
	d.inTxn = true
	tx := &Txn{doc: d, origin: origin}

	err := fn(tx)
	d.inTxn = false

	if err != nil {
		tx.rollback()
		d.mu.Unlock()
		return err
	}
	tx.closed = true

	var subs []subscriber
	var event TxnEvent
	if len(tx.ops) > 0 {
		for _, op := range tx.ops {
			d.log = append(d.log, logEntry{origin: origin, op: op})
		}
		event = TxnEvent{Origin: origin, Ops: tx.ops}
		subs = append(subs, d.subs...)
	}
	d.mu.Unlock()

	for _, s := range subs {
		s.fn(event)
	}
	return nil
}
