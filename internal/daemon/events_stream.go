package daemon

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mediarepo/internal/events"
	"mediarepo/internal/logging"
)

const (
	eventWriteWait    = 10 * time.Second
	eventPongWait     = 60 * time.Second
	eventPingInterval = 25 * time.Second
	eventBuffer       = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents streams lifecycle events as JSON text frames. An optional
// ?job=<id> restricts the stream to one job. Delivery is best effort: a
// client that falls behind misses events.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobFilter := r.URL.Query().Get("job")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ch, cancel := s.daemon.deps.Bus.Subscribe(eventBuffer)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopping"))
			return
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !matchesJob(evt, jobFilter) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

func matchesJob(evt events.Event, jobID string) bool {
	return jobID == "" || evt.JobID == jobID
}
