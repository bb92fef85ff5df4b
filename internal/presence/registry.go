package presence

import (
	"sort"
	"sync"

	"lyink/relay-service/internal/events"
)

// Conn is one live connection. The websocket layer implements it; tests use
// in-memory stubs.
type Conn interface {
	ID() string
	Send(env events.Envelope) error
}

// Registry maps user ids to their live connections. A user may hold several
// connections at once (multiple tabs or devices); closing one must not evict
// the others. The registry is constructed once per process and injected into
// whatever needs to push.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]string          // connID -> userID
	userConns map[string]map[string]Conn // userID -> connID -> Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]string),
		userConns: make(map[string]map[string]Conn),
	}
}

// Register binds a connection to a user and broadcasts the refreshed online
// set. An empty user id is a no-op: identity may arrive later via an explicit
// join, at which point Register is called again and the last writer wins.
func (r *Registry) Register(userID string, conn Conn) {
	if userID == "" || conn == nil {
		return
	}

	r.mu.Lock()
	if prev, ok := r.conns[conn.ID()]; ok && prev != userID {
		// Connection re-joined as a different user; drop the old binding.
		r.removeLocked(conn.ID())
	}
	r.conns[conn.ID()] = userID
	if _, ok := r.userConns[userID]; !ok {
		r.userConns[userID] = make(map[string]Conn)
	}
	r.userConns[userID][conn.ID()] = conn
	r.mu.Unlock()

	r.broadcastOnline()
}

// Unregister removes a single connection. Registering the same user twice on
// one connection then unregistering once still clears it: the binding is
// keyed by connection id, so the overwrite is idempotent.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	_, existed := r.conns[connID]
	if existed {
		r.removeLocked(connID)
	}
	r.mu.Unlock()

	if existed {
		r.broadcastOnline()
	}
}

func (r *Registry) removeLocked(connID string) {
	userID, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if conns, ok := r.userConns[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, userID)
		}
	}
}

// EmitToUser delivers an event to every live connection of a user. A user
// with no connection is normal, reported as false, never an error.
func (r *Registry) EmitToUser(userID string, env events.Envelope) bool {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.userConns[userID]))
	for _, conn := range r.userConns[userID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	if len(conns) == 0 {
		return false
	}
	for _, conn := range conns {
		conn.Send(env)
	}
	return true
}

// BroadcastAll delivers an event to every live connection.
func (r *Registry) BroadcastAll(env events.Envelope) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, userConns := range r.userConns {
		for _, conn := range userConns {
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Send(env)
	}
}

// Online returns the sorted set of user ids with at least one connection.
func (r *Registry) Online() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.userConns))
	for userID := range r.userConns {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

func (r *Registry) broadcastOnline() {
	r.BroadcastAll(events.OnlineUsersEvent(r.Online()))
}
