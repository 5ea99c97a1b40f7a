package documents

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"voterlist-backend/internal/events"
	"voterlist-backend/internal/shared/server/middleware"
	"voterlist-backend/internal/shared/telemetry"
)

// newUpgrader accepts browser handshakes only from allowedOrigins. Requests
// without an Origin header come from non-browser clients and are let through.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := middleware.OriginMatcher(allowedOrigins)
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed(origin)
		},
	}
}

// serveEvents upgrades the request and pushes broker events as JSON frames
// until the client disconnects.
func serveEvents(c *gin.Context, upgrader *websocket.Upgrader, broker *events.Broker, pingEvery time.Duration) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		telemetry.Info("documents.stream_rejected", map[string]any{
			"origin": c.GetHeader("Origin"),
			"error":  err.Error(),
		})
		return
	}
	defer conn.Close()

	ch, cancel := broker.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
