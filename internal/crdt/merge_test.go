package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shipAll encodes everything past the cursor on src and applies it to dst,
// returning the advanced cursor.
func shipAll(t *testing.T, src, dst *Doc, cursor int) int {
	t.Helper()
	raw, next, err := src.EncodeUpdateSince(cursor)
	require.NoError(t, err)
	if raw != nil {
		require.NoError(t, dst.ApplyUpdate(raw))
	}
	return next
}

func TestMerge_ConcurrentFieldEditsBothSurvive(t *testing.T) {
	a := NewDoc("doc-1", "actor-a")
	b := NewDoc("doc-1", "actor-b")

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.InsertRecord("commands", 0, map[string]Value{"id": "x", "a": "1", "b": "1"})
		return nil
	}))
	aCur := shipAll(t, a, b, 0)
	bCur := len(b.log)

	// Concurrent edits to different fields of the same record.
	elemA, _, _, _ := a.FindByField("commands", "id", "x")
	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.SetField("commands", elemA, "a", "2")
		return nil
	}))
	elemB, _, _, _ := b.FindByField("commands", "id", "x")
	require.NoError(t, b.Transact(OriginLocal, func(tx *Txn) error {
		tx.SetField("commands", elemB, "b", "2")
		return nil
	}))

	shipAll(t, a, b, aCur)
	shipAll(t, b, a, bCur)

	want := map[string]Value{"id": "x", "a": "2", "b": "2"}
	assert.Equal(t, []map[string]Value{want}, a.SeqRecords("commands"))
	assert.Equal(t, []map[string]Value{want}, b.SeqRecords("commands"))
}

func TestMerge_SameFieldDeterministicTieBreak(t *testing.T) {
	a := NewDoc("doc-1", "actor-a")
	b := NewDoc("doc-1", "actor-b")

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.InsertRecord("commands", 0, map[string]Value{"id": "x", "title": "orig"})
		return nil
	}))
	aCur := shipAll(t, a, b, 0)
	bCur := len(b.log)

	// Same-stamp concurrent writes to one field: higher actor id wins on
	// both replicas.
	elemA, _, _, _ := a.FindByField("commands", "id", "x")
	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.SetField("commands", elemA, "title", "from-a")
		return nil
	}))
	elemB, _, _, _ := b.FindByField("commands", "id", "x")
	require.NoError(t, b.Transact(OriginLocal, func(tx *Txn) error {
		tx.SetField("commands", elemB, "title", "from-b")
		return nil
	}))

	shipAll(t, a, b, aCur)
	shipAll(t, b, a, bCur)

	aRecs := a.SeqRecords("commands")
	bRecs := b.SeqRecords("commands")
	assert.Equal(t, aRecs, bRecs, "replicas must converge")
	assert.Equal(t, "from-b", aRecs[0]["title"], "actor-b wins the equal-stamp tie")
}

func TestMerge_InsertRedeliveryIsIdempotent(t *testing.T) {
	a := NewDoc("doc-1", "actor-a")
	b := NewDoc("doc-1", "actor-b")

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.InsertRecord("commands", 0, map[string]Value{"id": "c1"})
		return nil
	}))

	raw, _, err := a.EncodeUpdateSince(0)
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(raw))
	require.NoError(t, b.ApplyUpdate(raw))

	assert.Equal(t, 1, b.SeqLen("commands"))
}

func TestMerge_DeleteWinsOverRedeliveredInsert(t *testing.T) {
	a := NewDoc("doc-1", "actor-a")
	b := NewDoc("doc-1", "actor-b")

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.InsertRecord("commands", 0, map[string]Value{"id": "c1"})
		return nil
	}))
	cur := shipAll(t, a, b, 0)

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.DeleteAt("commands", 0)
		return nil
	}))
	shipAll(t, a, b, cur)
	assert.Equal(t, 0, b.SeqLen("commands"))

	// Replaying the original insert after its delete must not resurrect.
	raw, _, err := a.EncodeUpdateSince(0)
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(raw))
	assert.Equal(t, 0, b.SeqLen("commands"))
}

func TestMerge_UndoneDeleteReachesRemote(t *testing.T) {
	a := NewDoc("doc-1", "actor-a")
	b := NewDoc("doc-1", "actor-b")

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.InsertRecord("commands", 0, map[string]Value{"id": "c1", "title": "Deploy"})
		return nil
	}))
	elem, _, _, ok := a.FindByField("commands", "id", "c1")
	require.True(t, ok)
	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.DeleteElem("commands", elem)
		return nil
	}))

	// Replay the inverse insert the way an undo stack would. The deleted
	// element id is tombstoned on every replica that merged the delete, so
	// the reinsert must come back under a fresh one.
	require.NoError(t, a.Transact(OriginUndo, func(tx *Txn) error {
		applied := tx.Apply(Op{
			Kind:   OpInsert,
			Seq:    "commands",
			Elem:   elem,
			Index:  0,
			Record: map[string]Value{"id": "c1", "title": "Deploy"},
		})
		assert.NotEqual(t, elem, applied.Elem)
		return nil
	}))

	// B merges the full history, insert then delete then reinsert.
	shipAll(t, a, b, 0)
	recs := b.SeqRecords("commands")
	require.Len(t, recs, 1, "the restored record must survive on the remote replica")
	assert.Equal(t, "Deploy", recs[0]["title"])
	assert.Equal(t, a.SeqRecords("commands"), recs)
}

func TestMerge_RemoteEventsTagged(t *testing.T) {
	a := NewDoc("doc-1", "actor-a")
	b := NewDoc("doc-1", "actor-b")

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.InsertRecord("commands", 0, map[string]Value{"id": "c1"})
		return nil
	}))

	var origins []Origin
	b.Subscribe(func(e TxnEvent) { origins = append(origins, e.Origin) })

	shipAll(t, a, b, 0)
	require.Len(t, origins, 1)
	assert.Equal(t, OriginRemote, origins[0])
}

func TestMerge_NoopUpdateDoesNotNotify(t *testing.T) {
	a := NewDoc("doc-1", "actor-a")
	b := NewDoc("doc-1", "actor-b")

	require.NoError(t, a.Transact(OriginLocal, func(tx *Txn) error {
		tx.InsertRecord("commands", 0, map[string]Value{"id": "c1"})
		return nil
	}))
	raw, _, err := a.EncodeUpdateSince(0)
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(raw))

	notified := 0
	b.Subscribe(func(TxnEvent) { notified++ })
	require.NoError(t, b.ApplyUpdate(raw))
	assert.Equal(t, 0, notified, "fully deduplicated update must not notify")
}

func TestClock_ObserveAdvances(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Tick())
	c.Observe(10)
	assert.Equal(t, int64(11), c.Tick())
	c.Observe(5)
	assert.Equal(t, int64(12), c.Tick(), "older stamps must not rewind the clock")
}
