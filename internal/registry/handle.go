package registry

import (
	"sync"

	"github.com/sorrow233/flowsync/internal/crdt"
)

// Status is the remote channel state of one handle.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handle is one cached document plus its remote channel. Local operation
// is fully functional offline; the channel only ever changes Status,
// never fails a caller.
type Handle struct {
	doc *crdt.Doc

	mu         sync.Mutex
	owner      string
	status     Status
	statusSubs map[int]func(Status)
	nextSub    int
	pending    int
	cursor     int
	conn       closer
	closed     bool

	docToken int
	notify   chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// closer is the slice of the websocket connection the handle needs for
// bouncing; the concrete type lives in remote.go.
type closer interface {
	Close() error
}

func newHandle(doc *crdt.Doc, owner, remoteURL string) *Handle {
	h := &Handle{
		doc:        doc,
		owner:      owner,
		status:     StatusDisconnected,
		statusSubs: make(map[int]func(Status)),
		notify:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	h.docToken = doc.Subscribe(h.onDocEvent)

	if remoteURL == "" {
		close(h.done)
		return h
	}
	go h.runRemote(remoteURL)
	return h
}

// Doc returns the underlying document.
func (h *Handle) Doc() *crdt.Doc { return h.doc }

// Owner returns the current owner hint.
func (h *Handle) Owner() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner
}

// Status returns the current remote channel state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// SubscribeStatus registers a status listener and delivers the current
// status immediately. Returns a token for UnsubscribeStatus.
func (h *Handle) SubscribeStatus(fn func(Status)) int {
	h.mu.Lock()
	h.nextSub++
	token := h.nextSub
	h.statusSubs[token] = fn
	current := h.status
	h.mu.Unlock()

	fn(current)
	return token
}

// UnsubscribeStatus removes a status listener. Unknown tokens are ignored.
func (h *Handle) UnsubscribeStatus(token int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.statusSubs, token)
}

// PendingOps reports how many local transactions await delivery to the
// remote. Drains when the channel flushes.
func (h *Handle) PendingOps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// Close detaches from the document and tears down the remote channel.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conn := h.conn
	h.mu.Unlock()

	h.doc.Unsubscribe(h.docToken)
	close(h.stop)
	if conn != nil {
		conn.Close()
	}
	<-h.done
}

// rebind moves ownership and bounces the remote channel so it
// reauthenticates as the new owner. CRDT state is untouched.
func (h *Handle) rebind(owner string) {
	h.mu.Lock()
	if h.owner == owner {
		h.mu.Unlock()
		return
	}
	h.owner = owner
	conn := h.conn
	h.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (h *Handle) onDocEvent(e crdt.TxnEvent) {
	if e.Origin == crdt.OriginRemote {
		return
	}
	h.mu.Lock()
	h.pending++
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	if h.status == s {
		h.mu.Unlock()
		return
	}
	h.status = s
	subs := make([]func(Status), 0, len(h.statusSubs))
	for _, fn := range h.statusSubs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
