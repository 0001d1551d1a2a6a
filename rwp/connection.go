package rwp

import (
	"sync"
	"sync/atomic"
	"time"
)

// SendFunc delivers an encoded frame to a connection's transport.
type SendFunc func(f *Frame) error

// Connection represents an authenticated protocol connection.
type Connection struct {
	// ID uniquely identifies this connection (also the session ID).
	ID string

	// Identity is the authenticated caller.
	Identity *Identity

	// WorkerID is the worker bound to this connection, if any. Offer
	// events for this worker are pushed here.
	WorkerID string

	// Codec is the negotiated wire format.
	Codec Codec

	// ConnectedAt records when the connection was established.
	ConnectedAt time.Time

	lastActivity atomic.Value // time.Time
	send         SendFunc
}

// NewConnection creates a connection with the given send sink.
func NewConnection(id string, ident *Identity, workerID string, codec Codec, send SendFunc) *Connection {
	c := &Connection{
		ID:          id,
		Identity:    ident,
		WorkerID:    workerID,
		Codec:       codec,
		ConnectedAt: time.Now().UTC(),
		send:        send,
	}
	c.lastActivity.Store(c.ConnectedAt)
	return c
}

// Touch updates the last-activity timestamp.
func (c *Connection) Touch() {
	c.lastActivity.Store(time.Now().UTC())
}

// LastActivity returns when the connection last saw traffic.
func (c *Connection) LastActivity() time.Time {
	return c.lastActivity.Load().(time.Time)
}

// Send pushes a frame to the connection's transport.
func (c *Connection) Send(f *Frame) error {
	return c.send(f)
}

// ConnectionManager tracks active connections and indexes them by their
// bound worker so offer events can be routed.
type ConnectionManager struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	byWorker map[string]map[string]*Connection
}

// NewConnectionManager creates an empty connection manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		conns:    make(map[string]*Connection),
		byWorker: make(map[string]map[string]*Connection),
	}
}

// Add registers a connection.
func (m *ConnectionManager) Add(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID] = c
	if c.WorkerID != "" {
		set, ok := m.byWorker[c.WorkerID]
		if !ok {
			set = make(map[string]*Connection)
			m.byWorker[c.WorkerID] = set
		}
		set[c.ID] = c
	}
}

// Remove drops a connection.
func (m *ConnectionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return
	}
	delete(m.conns, id)
	if c.WorkerID != "" {
		set := m.byWorker[c.WorkerID]
		delete(set, id)
		if len(set) == 0 {
			delete(m.byWorker, c.WorkerID)
		}
	}
}

// Get returns a connection by ID.
func (m *ConnectionManager) Get(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

// ForWorker returns the connections bound to a worker.
func (m *ConnectionManager) ForWorker(workerID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byWorker[workerID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the number of active connections.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// All returns a snapshot of every active connection.
func (m *ConnectionManager) All() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}
