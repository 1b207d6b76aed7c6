package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaakkos/auditwatch/internal/auditlog"
)

// handleStream mirrors the audit log store over a websocket. Each connection
// owns one bridge, active for exactly the lifetime of the connection. Every
// delivered snapshot becomes one JSON text frame. Frames are full snapshots,
// so when the client reads too slowly the oldest queued frame is discarded
// and the client still ends on the store's latest state.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		writeError(w, http.StatusServiceUnavailable, "dashboard is shutting down")
		return
	}
	// Runs last: Close returns only after the bridge below is deactivated.
	defer h.active.Done()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Printf("Stream: upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan []byte, h.streamQueue)
	b := auditlog.NewBridge(h.store, func(snap auditlog.Snapshot) {
		data, err := json.Marshal(snap)
		if err != nil {
			h.logger.Printf("Stream: encode snapshot: %v", err)
			return
		}
		h.enqueue(frames, data)
	}, h.logger)

	if err := b.Activate(); err != nil {
		h.logger.Printf("Stream: activate: %v", err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "store unavailable")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
		return
	}
	defer func() {
		if err := b.Deactivate(); err != nil {
			h.logger.Printf("Stream: deactivate: %v", err)
		}
	}()

	h.streams.Add(1)
	defer h.streams.Add(-1)

	// The stream is server-to-client only; reading surfaces the client's
	// close and answers its pings.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
			return
		case data := <-frames:
			ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				// a websocket write deadline cannot be recovered
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// enqueue adds data to frames, discarding the oldest queued frame while the
// queue is full. Deliveries of one bridge are serialized, so its render is the
// only producer; the writer loop may drain concurrently.
func (h *Handler) enqueue(frames chan []byte, data []byte) {
	for {
		select {
		case frames <- data:
			return
		default:
		}
		select {
		case <-frames:
			h.dropped.Add(1)
		default:
		}
	}
}
