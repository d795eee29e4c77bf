package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pvieira/imsgd/internal/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds loopback; origin checks add nothing there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// wsEvent is the wire form of one bus event, stamped with a fresh ID
// per delivery.
type wsEvent struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// handleEvents streams bus events over a WebSocket. The optional "prefix"
// query parameter narrows the stream ("message.", "group.", ...); empty
// receives everything. A client that stops reading loses events rather
// than stalling the daemon.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	prefix := r.URL.Query().Get("prefix")
	events, unsub := s.bus.Subscribe(prefix, 256)
	defer unsub()

	s.logger.Info("event stream opened",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("prefix", prefix))

	// Reads only serve to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case evt := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(toWSEvent(evt)); err != nil {
				s.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			s.logger.Info("event stream closed",
				zap.String("remote", conn.RemoteAddr().String()))
			return
		case <-r.Context().Done():
			return
		}
	}
}

func toWSEvent(evt bus.Event) wsEvent {
	return wsEvent{
		ID:        uuid.NewString(),
		Topic:     evt.Topic,
		Timestamp: evt.Timestamp,
		Payload:   evt.Payload,
	}
}
