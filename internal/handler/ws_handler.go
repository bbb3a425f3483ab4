package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/banditlab/internal/auth"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	maxMsgSize  = 4096
	sendBufSize = 256
)

// Run streams are read-only and gated by the token, not by origin, so
// dashboards served from anywhere may attach.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WSHandler streams run progress events over WebSocket.
type WSHandler struct {
	hub    *Hub
	jwtMgr *auth.JWTManager
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr}
}

// ServeWS handles GET /api/v1/ws. The token comes from ?token= because
// browsers cannot set headers on upgrade; each ?run= is subscribed before
// the first frame is sent, and ?run=* follows every run.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	claims, status, msg := h.authorize(q.Get("token"))
	if claims == nil {
		writeError(w, status, msg)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &WSConn{conn: conn, client: claims.Subject, send: make(chan []byte, sendBufSize)}
	h.hub.Register(c)
	runs := q["run"]
	for _, id := range runs {
		if id != "" {
			h.hub.Subscribe(c, id)
		}
	}
	c.send <- helloFrame(c.client, runs)

	go h.stream(c)
	go h.listen(c)

	log.Info().Str("client", c.client).Strs("runs", runs).Int("total", h.hub.ConnectionCount()).
		Msg("Run stream opened")
}

func (h *WSHandler) authorize(token string) (*auth.Claims, int, string) {
	if token == "" {
		return nil, http.StatusUnauthorized, "missing token parameter"
	}
	claims, err := h.jwtMgr.ValidateToken(token)
	if err != nil {
		return nil, http.StatusUnauthorized, "invalid or expired token"
	}
	if !claims.HasScope(auth.ScopeRead) {
		return nil, http.StatusForbidden, "insufficient scope"
	}
	return claims, 0, ""
}

// helloFrame confirms the stream is live and echoes the initial
// subscriptions. RunID is set only when exactly one run was requested.
func helloFrame(client string, runs []string) []byte {
	ev := WSEvent{Type: "connected", Data: map[string]any{"client": client, "runs": runs}}
	if len(runs) == 1 {
		ev.RunID = runs[0]
	}
	frame, _ := json.Marshal(ev)
	return frame
}

// listen applies subscribe and unsubscribe commands until the client goes
// away, then detaches it from the hub.
func (h *WSHandler) listen(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("client", c.client).Msg("Run stream closed")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.client).Msg("Run stream dropped")
			}
			return
		}
		var msg ClientMessage
		if json.Unmarshal(data, &msg) == nil {
			h.apply(c, msg)
		}
	}
}

func (h *WSHandler) apply(c *WSConn, msg ClientMessage) {
	if msg.RunID == "" {
		return
	}
	switch msg.Action {
	case "subscribe":
		h.hub.Subscribe(c, msg.RunID)
	case "unsubscribe":
		h.hub.Unsubscribe(c, msg.RunID)
	}
}

// stream writes one text frame per event and pings on an idle connection.
// A closed send channel means the hub dropped the client.
func (h *WSHandler) stream(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
