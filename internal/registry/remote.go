package registry

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout = 10 * time.Second
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
)

// runRemote maintains the websocket channel for the handle's lifetime.
// Dial and read failures are logged and surface only as status
// transitions; the document keeps working offline throughout.
func (h *Handle) runRemote(url string) {
	defer close(h.done)
	defer h.setStatus(StatusDisconnected)

	backoff := minBackoff
	for {
		select {
		case <-h.stop:
			return
		default:
		}

		h.setStatus(StatusConnecting)
		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			slog.Debug("remote dial failed", "doc", h.doc.ID(), "error", err)
			h.setStatus(StatusDisconnected)
			select {
			case <-h.stop:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.conn = conn
		h.mu.Unlock()

		h.setStatus(StatusConnected)
		h.serveConn(conn)

		h.mu.Lock()
		h.conn = nil
		h.mu.Unlock()
		conn.Close()
		h.setStatus(StatusDisconnected)
	}
}

// serveConn runs the read loop on the calling goroutine and a write pump
// on a second one, so the connection has exactly one writer.
func (h *Handle) serveConn(conn *websocket.Conn) {
	readDone := make(chan struct{})

	go func() {
		h.flush(conn)
		for {
			select {
			case <-h.stop:
				return
			case <-readDone:
				return
			case <-h.notify:
				h.flush(conn)
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("remote channel closed", "doc", h.doc.ID(), "error", err)
			close(readDone)
			return
		}
		if err := h.doc.ApplyUpdate(raw); err != nil {
			slog.Warn("remote update rejected", "doc", h.doc.ID(), "error", err)
		}
	}
}

// flush ships local ops accumulated since the cursor and drains the
// pending counter. Delivery is fire-and-forget until the sync protocol
// grows acknowledgements.
func (h *Handle) flush(conn *websocket.Conn) {
	h.mu.Lock()
	cursor := h.cursor
	h.mu.Unlock()

	raw, next, err := h.doc.EncodeUpdateSince(cursor)
	if err != nil {
		slog.Warn("encode update failed", "doc", h.doc.ID(), "error", err)
		return
	}
	if raw != nil {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			slog.Debug("remote write failed", "doc", h.doc.ID(), "error", err)
			return
		}
	}

	h.mu.Lock()
	h.cursor = next
	h.pending = 0
	h.mu.Unlock()
}
