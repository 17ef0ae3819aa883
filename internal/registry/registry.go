// Package registry caches CRDT documents by id and maintains each
// document's best-effort remote channel. The registry is an explicit,
// injected object owned by the composition root; tests instantiate
// isolated registries instead of sharing process state.
package registry

import (
	"log/slog"
	"sync"

	"github.com/sorrow233/flowsync/internal/crdt"
)

// Registry caches one Handle per document id.
type Registry struct {
	remoteURL string

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithRemoteURL sets the websocket endpoint for remote sync. An empty URL
// keeps every document fully local; handles stay disconnected.
func WithRemoteURL(url string) Option {
	return func(r *Registry) { r.remoteURL = url }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{handles: make(map[string]*Handle)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed is initial content applied once, keyed by sequence name.
type Seed map[string][]map[string]crdt.Value

// GetOrCreate returns the cached handle for documentID, constructing it on
// first use. seed is applied only when the handle is constructed and the
// document is empty. When the handle already exists under a different
// owner, ownership is rebound in place and the remote channel reconnects
// without discarding CRDT state.
func (r *Registry) GetOrCreate(documentID, owner string, seed Seed) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[documentID]; ok {
		h.rebind(owner)
		return h
	}

	doc := crdt.NewDoc(documentID, "")
	if len(seed) > 0 && isEmptyFor(doc, seed) {
		applySeed(doc, seed)
	}

	h := newHandle(doc, owner, r.remoteURL)
	r.handles[documentID] = h
	slog.Debug("document handle created", "doc", documentID, "owner", owner)
	return h
}

// Get returns the cached handle, or nil when absent.
func (r *Registry) Get(documentID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[documentID]
}

// Evict closes the handle and drops it from the cache.
func (r *Registry) Evict(documentID string) {
	r.mu.Lock()
	h, ok := r.handles[documentID]
	delete(r.handles, documentID)
	r.mu.Unlock()
	if ok {
		h.Close()
	}
}

// Close closes every cached handle.
func (r *Registry) Close() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[string]*Handle)
	r.closed = true
	r.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}

func isEmptyFor(doc *crdt.Doc, seed Seed) bool {
	names := make([]string, 0, len(seed))
	for name := range seed {
		names = append(names, name)
	}
	return doc.IsEmpty(names...)
}

func applySeed(doc *crdt.Doc, seed Seed) {
	_ = doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		for name, recs := range seed {
			for _, rec := range recs {
				tx.InsertRecord(name, tx.Len(name), rec)
			}
		}
		return nil
	})
}
