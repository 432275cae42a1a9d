package events

import (
	"net/http"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamHandler upgrades to a websocket and streams the caller's account events
// as JSON text frames until either side goes away.
func (h *Hub) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.IdentityFrom(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.FromGin(c).Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		events, cancel := h.Subscribe(id.AccountID)
		defer cancel()

		// Reader: only needed to observe close frames and keep pongs flowing.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case <-c.Request.Context().Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case e, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(e); err != nil {
					return
				}
			}
		}
	}
}
