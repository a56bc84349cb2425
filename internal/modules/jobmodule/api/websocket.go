package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mantonx/remuxer/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamEvents handles GET /api/v1/events/ws
// Events after ?since=N are replayed first, then live events follow. The
// stream accepts the same filters as ListEvents.
func (h *APIHandler) StreamEvents(c *gin.Context) {
	since, err := intQuery(c, "since", -1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter := eventFilter(c)

	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	bus := h.service.Events()
	sub := bus.Subscribe(filter)
	defer bus.Unsubscribe(sub.ID)

	logger := h.logger.With("client_id", clientID)
	logger.Debug("event stream opened", "since", since)
	defer func() {
		logger.Debug("event stream closed", "dropped", sub.Dropped())
	}()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	var lastSeq int64
	if since >= 0 {
		for _, e := range bus.Since(int64(since), filter) {
			if err := writeEvent(conn, e); err != nil {
				return
			}
			lastSeq = e.Seq
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			// Already sent during the replay.
			if e.Seq <= lastSeq {
				continue
			}
			if err := writeEvent(conn, e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// readPump discards client messages and signals when the peer goes away.
func (h *APIHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}
