package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const defaultWriteTimeout = 5 * time.Second

// connection is a single live WebSocket client. It owns its own
// lifecycle (ctx/cancel) independent of the manager. There are no
// per-channel subscriptions: every connection receives every broadcast.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// ConnectionManager tracks every live WebSocket client and broadcasts
// tracer/engine events to all of them. Unlike the teacher's
// ConnectionManager, there's no per-channel PG LISTEN/NOTIFY to
// multiplex: a village has exactly one event stream, so every
// connection gets every broadcast and filters client-side.
type ConnectionManager struct {
	mu           sync.RWMutex
	connections  map[string]*connection
	writeTimeout time.Duration
}

// NewConnectionManager creates a ConnectionManager with the given
// per-message write timeout (defaultWriteTimeout if zero).
func NewConnectionManager(writeTimeout time.Duration) *ConnectionManager {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &ConnectionManager{connections: make(map[string]*connection), writeTimeout: writeTimeout}
}

// HandleConnection manages one WebSocket client's lifecycle. Blocks
// until the connection closes, reading and discarding any client
// messages (the village stream is server push only).
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.NewString(), conn: conn, ctx: ctx, cancel: cancel}

	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.connections, c.id)
		m.mu.Unlock()
		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	m.sendJSON(c, map[string]string{"type": "connection.established", "connection_id": c.id})

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends v, marshaled as JSON, to every connected client.
func (m *ConnectionManager) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("connections: failed to marshal broadcast", "error", err)
		return
	}

	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.sendRaw(c, data); err != nil {
			slog.Warn("connections: failed to send to client", "connection_id", c.id, "error", err)
		}
	}
}

// ActiveConnections returns the number of currently connected clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("connections: failed to marshal message", "connection_id", c.id, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("connections: failed to send message", "connection_id", c.id, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
