package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/telebridge/notifier"
)

const (
	// eventBuffer bounds the per-client queue; a stalled client drops
	// events instead of stalling the ingestion path
	eventBuffer = 256

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway serves a local dashboard; origin enforcement is left to
	// the deployment's reverse proxy
	CheckOrigin: func(*http.Request) bool { return true },
}

var streamedKinds = []notifier.Kind{
	notifier.KindNewSample,
	notifier.KindEntityAdded,
	notifier.KindEntityRemoved,
	notifier.KindFilterAdded,
	notifier.KindFilterRemoved,
	notifier.KindParameterChanged,
}

// handleEvents upgrades the connection and streams every bridge event as a
// JSON frame until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan notifier.Event, eventBuffer)
	forward := func(e notifier.Event) {
		select {
		case events <- e:
		default:
			// Client queue full; the live stream outranks completeness
		}
	}

	subs := make([]notifier.SubscriptionID, 0, len(streamedKinds))
	for _, kind := range streamedKinds {
		subs = append(subs, s.bridge.Subscribe(kind, forward))
	}
	defer func() {
		for _, id := range subs {
			s.bridge.Unsubscribe(id)
		}
	}()

	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// Reader goroutine: consume control frames, signal close
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
