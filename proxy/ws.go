package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gridfill/stream"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	// Local-only proxy; browsers on other origins have no business here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvent is one stream frame serialized for WebSocket consumers.
type wsEvent struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

// handleEventsWS mirrors the SSE feed over a WebSocket connection: same
// backfilled frames, same graceful end at group-inactive.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	body, err := s.client.OpenEvents(r.Context(), groupID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	src := stream.NewSource(body, s.client, s.log)
	defer src.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "group_id", groupID, "err", err)
		return
	}
	defer conn.Close()

	// Drain the consumer side so close frames are noticed; any read error
	// means the consumer went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Read upstream frames on their own goroutine so a consumer disconnect
	// is never stuck behind a blocked src.Next; the deferred src.Close
	// unblocks the reader once the handler returns.
	frames := make(chan stream.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			ev, err := src.Next(r.Context())
			if err != nil {
				errs <- err
				return
			}
			select {
			case frames <- ev:
			case <-gone:
				return
			case <-r.Context().Done():
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, open := <-frames:
			if !open {
				err := <-errs
				if err != io.EOF && r.Context().Err() == nil {
					s.log.Warn("upstream stream ended abnormally", "group_id", groupID, "err", err)
				}
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}

			data := json.RawMessage(ev.Data)
			if !json.Valid(data) {
				// Non-JSON payloads are forwarded as a JSON string.
				quoted, _ := json.Marshal(string(ev.Data))
				data = quoted
			}
			if err := conn.WriteJSON(wsEvent{Type: ev.Type, ID: ev.ID, Data: data}); err != nil {
				// Consumer disconnected; further writes would be no-ops anyway.
				return
			}
		}
	}
}
