package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const socketWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

type realtimeEventPayload struct {
	Type      string   `json:"type"`
	EntryIDs  []string `json:"entryIds,omitempty"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source"`
}

func newRealtimeEventPayload(eventType string, entryIDs []string, at time.Time) realtimeEventPayload {
	return realtimeEventPayload{
		Type:      eventType,
		EntryIDs:  entryIDs,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Source:    realtimeSourceBackend,
	}
}

func (h *httpHandler) handleEntryStream(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			payload := newRealtimeEventPayload(message.EventType, message.EntryIDs, message.Timestamp)
			if !sendServerSentEvent(c, message.EventType, payload) {
				h.logger.Debug("event stream closed", zap.String("user_id", userID), zap.String("errors", c.Errors.String()))
				return
			}
		case tick := <-ticker.C:
			if !sendServerSentEvent(c, realtimeEventHeartbeat, newRealtimeEventPayload(realtimeEventHeartbeat, nil, tick)) {
				return
			}
		}
	}
}

// sendServerSentEvent renders one event through gin's SSE renderer and flushes
// it. It reports false once rendering failed and the context was aborted.
func sendServerSentEvent(c *gin.Context, eventType string, payload realtimeEventPayload) bool {
	c.SSEvent(eventType, payload)
	if c.IsAborted() {
		return false
	}
	c.Writer.Flush()
	return true
}

func (h *httpHandler) handleEntrySocket(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	defer conn.Close()

	// the read loop only detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			payload := newRealtimeEventPayload(message.EventType, message.EntryIDs, message.Timestamp)
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if err := conn.WriteJSON(payload); err != nil {
				h.logger.Debug("websocket closed", zap.String("user_id", userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(socketWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
