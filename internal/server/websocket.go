package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server only binds loopback.
		return true
	},
}

// handleWebSocket serves the bidirectional control channel: clients
// push zoom level, cursor position, and start/stop requests, and
// receive status, transform, and completion events as JSON. A client
// that sends a preview request additionally receives the recording's
// container bytes as binary messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, events := s.controller.Subscribe()
	defer s.controller.Unsubscribe(subID)
	previewID := "ws-" + subID
	defer s.controller.Broadcaster().Unsubscribe(previewID)

	// All writes go through one goroutine: gorilla connections allow
	// a single concurrent writer. Replies from the read loop join the
	// controller's events on a local channel, and the preview byte
	// stream arrives on a channel handed over when requested. A nil
	// media channel blocks its select case until then.
	replies := make(chan Event, 8)
	mediaCh := make(chan (<-chan []byte), 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var media <-chan []byte
		for {
			select {
			case ev, open := <-events:
				if !open {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case ev := <-replies:
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case media = <-mediaCh:
			case chunk, open := <-media:
				if !open {
					media = nil
					continue
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			}
		}
	}()

	reply := func(ev Event) {
		select {
		case replies <- ev:
		default:
		}
	}

	s.logger.Debug("WebSocket client connected", "id", subID)
	previewing := false
	for {
		var msg struct {
			Type  string  `json:"type"`
			Level float64 `json:"level"`
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", "id", subID, "error", err)
			}
			break
		}

		switch msg.Type {
		case "zoom":
			s.controller.Tracker().SetLevel(msg.Level)
		case "cursor":
			s.controller.Tracker().SetCursor(msg.X, msg.Y)
		case "start":
			if _, err := s.controller.StartRecording(context.Background()); err != nil {
				reply(Event{Type: "failed", Reason: err.Error()})
			}
		case "stop":
			if _, err := s.controller.StopRecording(); err != nil {
				reply(Event{Type: "failed", Reason: err.Error()})
			}
		case "status":
			st := s.controller.Status()
			reply(Event{Type: "status", State: st.State, ElapsedSeconds: st.ElapsedSeconds})
		case "preview":
			if !previewing {
				previewing = true
				mediaCh <- s.controller.Broadcaster().Subscribe(previewID, 64)
			}
		}
	}

	s.controller.Unsubscribe(subID)
	<-done
}
