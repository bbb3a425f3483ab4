package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// AllRuns is the subscription key that receives events for every run.
const AllRuns = "*"

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
	Data  any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	RunID  string `json:"run_id"`
}

// WSConn wraps a WebSocket connection with its client name and send buffer.
type WSConn struct {
	conn   *websocket.Conn
	client string
	send   chan []byte
}

// Hub manages WebSocket connections and run subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	runs        map[string]map[*WSConn]bool // runID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		runs:        make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connections[c] {
		return
	}
	delete(h.connections, c)
	for runID, conns := range h.runs {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.runs, runID)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a run channel, or to every run for AllRuns.
func (h *Hub) Subscribe(c *WSConn, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runs[runID] == nil {
		h.runs[runID] = make(map[*WSConn]bool)
	}
	h.runs[runID][c] = true
}

// Unsubscribe removes a connection from a run channel.
func (h *Hub) Unsubscribe(c *WSConn, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.runs[runID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.runs, runID)
		}
	}
}

// BroadcastToRun sends an event to connections subscribed to the run or to
// AllRuns. A connection subscribed to both receives it once.
func (h *Hub) BroadcastToRun(runID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*WSConn]bool)
	for _, key := range []string{runID, AllRuns} {
		for c := range h.runs[key] {
			if sent[c] {
				continue
			}
			sent[c] = true
			select {
			case c.send <- data:
			default:
				log.Warn().Str("client", c.client).Str("runId", runID).Msg("Dropping WebSocket message, buffer full")
			}
		}
	}
}

// BroadcastRunEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastRunEvent(runID string, eventType string, data any) {
	h.BroadcastToRun(runID, WSEvent{
		Type:  eventType,
		RunID: runID,
		Data:  data,
	})
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// RunSubscriberCount returns the number of connections subscribed to a run key.
func (h *Hub) RunSubscriberCount(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runs[runID])
}
