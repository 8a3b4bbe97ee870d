// Realtime HTTP handler.
//
// GET /ws upgrades to a WebSocket and streams the caller's change events
// (see realtime.Event) as JSON text frames. Clients refetch the affected
// queries on each event. The connection is receive-only; inbound frames are
// read just to observe pongs and closure.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsBuffer     = 64
)

// Subscriber attaches a live event stream to a user.
type Subscriber interface {
	Subscribe(userID string, buf int) *realtime.Subscription
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The bearer token is the credential; origin checks are left to CORS.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Events godoc
// @ID          events
// @Summary     Stream change events over a WebSocket
// @Description Authenticate with the Authorization header or the access_token query parameter.
// @Tags        Realtime
// @Security    BearerAuth
// @Param       access_token  query  string  false  "Bearer token for browsers"
// @Success     101
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /ws [get]
func (h *Handlers) Events(c *gin.Context) {
	if h.svc.Realtime == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "realtime is disabled")
		return
	}
	uid := userID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	sub := h.svc.Realtime.Subscribe(uid, wsBuffer)
	sessionClosed := middleware.WSSessionOpened()
	lg := middleware.LoggerFrom(c)
	lg.Debug().Msg("websocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		sessionClosed()
		_ = conn.Close()
		lg.Debug().Msg("websocket closed")
	}()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case payload, open := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			middleware.WSEventSent()
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
