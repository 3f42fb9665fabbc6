package websocket

import (
	"sync"
)

// Registry tracks live connections by id and by user
// ARCHITECTURAL DISCOVERY: Pure connection bookkeeping; topic membership
// lives in the hub. One lecturer may hold several connections (phone and
// laptop), so nothing is replaced on register.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection           // connection ID -> Connection
	byUser      map[int64]map[string]*Connection // userID -> connection ID -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		byUser:      make(map[int64]map[string]*Connection),
	}
}

// RegisterConnection adds a connection
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn

	userConns, exists := r.byUser[conn.UserID()]
	if !exists {
		userConns = make(map[string]*Connection)
		r.byUser[conn.UserID()] = userConns
	}
	userConns[conn.ID()] = conn
	return nil
}

// UnregisterConnection removes a connection; unknown connections are ignored
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connections[conn.ID()] != conn {
		return
	}
	delete(r.connections, conn.ID())

	// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
	if userConns, exists := r.byUser[conn.UserID()]; exists {
		delete(userConns, conn.ID())
		if len(userConns) == 0 {
			delete(r.byUser, conn.UserID())
		}
	}
}

// GetConnection looks a connection up by id
func (r *Registry) GetConnection(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[id]
	return conn, exists
}

// GetUserConnections returns every live connection of a user
func (r *Registry) GetUserConnections(userID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.byUser[userID]))
	for _, conn := range r.byUser[userID] {
		conns = append(conns, conn)
	}
	return conns
}

// CloseAll closes every registered connection; their handlers unregister them
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return len(conns)
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"connected_users":   len(r.byUser),
	}
}
