package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorrow233/flowsync/internal/crdt"
)

func TestGetOrCreate_CachesByDocumentID(t *testing.T) {
	reg := New()
	defer reg.Close()

	a := reg.GetOrCreate("doc-1", "owner-a", nil)
	b := reg.GetOrCreate("doc-1", "owner-a", nil)
	assert.Same(t, a, b)

	c := reg.GetOrCreate("doc-2", "owner-a", nil)
	assert.NotSame(t, a, c)
	assert.Equal(t, "doc-2", c.Doc().ID())
}

func TestGetOrCreate_SeedsOnlyOnFirstConstruction(t *testing.T) {
	reg := New()
	defer reg.Close()

	seed := Seed{"commands": {{"id": "s1", "title": "seeded"}}}
	h := reg.GetOrCreate("doc-1", "owner-a", seed)
	require.Len(t, h.Doc().SeqRecords("commands"), 1)

	again := reg.GetOrCreate("doc-1", "owner-a", Seed{"commands": {{"id": "s2"}}})
	assert.Same(t, h, again)
	assert.Len(t, h.Doc().SeqRecords("commands"), 1, "seed never re-applies to an existing handle")
}

func TestGetOrCreate_OwnerRebindKeepsCRDTState(t *testing.T) {
	reg := New()
	defer reg.Close()

	h := reg.GetOrCreate("doc-1", "owner-a", nil)
	require.NoError(t, h.Doc().Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		tx.InsertRecord("commands", 0, map[string]crdt.Value{"id": "c1"})
		return nil
	}))

	rebound := reg.GetOrCreate("doc-1", "owner-b", nil)
	assert.Same(t, h, rebound)
	assert.Equal(t, "owner-b", rebound.Owner())
	assert.Len(t, rebound.Doc().SeqRecords("commands"), 1, "rebinding never discards document state")
}

func TestHandle_StaysDisconnectedWithoutRemoteURL(t *testing.T) {
	reg := New()
	defer reg.Close()

	h := reg.GetOrCreate("doc-1", "owner-a", nil)
	assert.Equal(t, StatusDisconnected, h.Status())

	var got []Status
	token := h.SubscribeStatus(func(s Status) { got = append(got, s) })
	defer h.UnsubscribeStatus(token)
	assert.Equal(t, []Status{StatusDisconnected}, got, "subscription delivers the current status immediately")

	// Fully functional offline.
	require.NoError(t, h.Doc().Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		tx.InsertRecord("commands", 0, map[string]crdt.Value{"id": "c1"})
		return nil
	}))
	assert.Len(t, h.Doc().SeqRecords("commands"), 1)
}

func TestHandle_PendingOpsCountsLocalTransactionsOnly(t *testing.T) {
	reg := New()
	defer reg.Close()
	h := reg.GetOrCreate("doc-1", "owner-a", nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, h.Doc().Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
			tx.InsertRecord("commands", 0, map[string]crdt.Value{"id": "c"})
			return nil
		}))
	}
	assert.Equal(t, 2, h.PendingOps())

	other := crdt.NewDoc("doc-1", "actor-other")
	require.NoError(t, other.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		tx.InsertRecord("commands", 0, map[string]crdt.Value{"id": "r1"})
		return nil
	}))
	raw, _, err := other.EncodeUpdateSince(0)
	require.NoError(t, err)
	require.NoError(t, h.Doc().ApplyUpdate(raw))

	assert.Equal(t, 2, h.PendingOps(), "merged remote updates are not pending")
}

func TestEvict_DropsAndClosesHandle(t *testing.T) {
	reg := New()
	defer reg.Close()

	h := reg.GetOrCreate("doc-1", "owner-a", nil)
	require.NotNil(t, reg.Get("doc-1"))

	reg.Evict("doc-1")
	assert.Nil(t, reg.Get("doc-1"))

	// A later GetOrCreate builds a fresh document.
	fresh := reg.GetOrCreate("doc-1", "owner-a", nil)
	assert.NotSame(t, h, fresh)

	reg.Evict("never-created")
}

func TestHandle_ConnectsAndExchangesUpdates(t *testing.T) {
	remote := crdt.NewDoc("doc-1", "actor-remote")
	require.NoError(t, remote.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		tx.InsertRecord("commands", 0, map[string]crdt.Value{"id": "r1"})
		return nil
	}))
	push, _, err := remote.EncodeUpdateSince(0)
	require.NoError(t, err)

	received := make(chan []byte, 8)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, push); err != nil {
			return
		}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- raw
		}
	}))
	defer srv.Close()

	reg := New(WithRemoteURL("ws" + strings.TrimPrefix(srv.URL, "http")))
	defer reg.Close()
	h := reg.GetOrCreate("doc-1", "owner-a", nil)

	require.Eventually(t, func() bool {
		return len(h.Doc().SeqRecords("commands")) == 1
	}, 2*time.Second, 10*time.Millisecond, "server push lands in the document")

	require.NoError(t, h.Doc().Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		tx.InsertRecord("commands", 0, map[string]crdt.Value{"id": "l1"})
		return nil
	}))

	select {
	case raw := <-received:
		var upd crdt.Update
		require.NoError(t, json.Unmarshal(raw, &upd))
		assert.Equal(t, "doc-1", upd.DocID)
		require.NotEmpty(t, upd.Ops)
	case <-time.After(2 * time.Second):
		t.Fatal("local transaction was never flushed to the server")
	}

	assert.Eventually(t, func() bool { return h.PendingOps() == 0 },
		2*time.Second, 10*time.Millisecond, "pending counter drains on flush")
}
