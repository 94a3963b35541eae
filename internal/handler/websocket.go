package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hookbin/hookbin/internal/metrics"
	"github.com/hookbin/hookbin/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard authenticates with the signed cookie, not origin.
		return true
	},
}

// WebSocket upgrades a dashboard connection and registers it for capture
// events under the caller's session slug. Unauthenticated upgrades are
// closed immediately with a policy-violation code.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	slug, authenticated := h.Signer.Resolve(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	if !authenticated {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	c := ws.NewConn(conn)
	h.Registry.Add(slug, c)
	metrics.WSConnections.Inc()

	defer func() {
		h.Registry.Remove(slug, c)
		c.Close()
		metrics.WSConnections.Dec()
	}()

	// The read loop only exists to observe close/error signals; clients
	// never send application messages.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.Log.Warn().Err(err).Str("session", slug).Msg("websocket closed")
			}
			return
		}
	}
}
