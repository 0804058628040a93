package presence

import (
	"log/slog"
	"sync"

	v1 "vicinity/shared/contracts/presence/v1"
)

// SessionRegistry maps client identifiers to their live connection handles.
//
// Concurrency guarantees:
// - Register/Remove are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type SessionRegistry struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Client
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry(log *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		log:      log,
		sessions: make(map[string]*Client),
	}
}

// Register inserts or replaces the session for client.UUID and returns the
// displaced client, if any. At most one session per identifier can exist at
// any instant; the caller owns closing the displaced handle.
func (r *SessionRegistry) Register(client *Client) *Client {
	if r == nil || client == nil || client.UUID == "" {
		return nil
	}

	r.mu.Lock()
	prior := r.sessions[client.UUID]
	r.sessions[client.UUID] = client
	r.mu.Unlock()

	if prior != nil {
		r.log.Info("registry.session.replace", "uuid", client.UUID, "old_conn", prior.ConnID, "new_conn", client.ConnID)
	} else {
		r.log.Info("registry.session.register", "uuid", client.UUID, "conn_id", client.ConnID)
	}
	return prior
}

// Remove evicts the session for uuid and reports whether an entry was
// actually removed. Absent entries are a no-op, not an error.
//
// When owner is non-nil only that handle is evicted: if the uuid has since
// been replaced by a newer connection, the newer session stays put and Remove
// reports false.
func (r *SessionRegistry) Remove(uuid string, owner *Client) bool {
	if r == nil || uuid == "" {
		return false
	}

	r.mu.Lock()
	cur, ok := r.sessions[uuid]
	if ok && (owner == nil || cur == owner) {
		delete(r.sessions, uuid)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.log.Info("registry.session.remove", "uuid", uuid)
	}
	return ok
}

// Lookup returns the live client for uuid. Absence is a normal, non-fatal
// case: the client may have disconnected between computation and delivery.
func (r *SessionRegistry) Lookup(uuid string) (*Client, bool) {
	if r == nil || uuid == "" {
		return nil, false
	}

	r.mu.RLock()
	c, ok := r.sessions[uuid]
	r.mu.RUnlock()
	return c, ok
}

// Identifiers returns a point-in-time snapshot of all registered uuids.
func (r *SessionRegistry) Identifiers() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	out := make([]string, 0, len(r.sessions))
	for uuid := range r.sessions {
		out = append(out, uuid)
	}
	r.mu.RUnlock()
	return out
}

// Len reports the number of registered sessions.
func (r *SessionRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	n := len(r.sessions)
	r.mu.RUnlock()
	return n
}

// Broadcast fanouts an envelope to all sessions except exceptUUID.
// Non-blocking: if a member queue is full or the client is shutting down,
// the envelope is dropped for that member.
func (r *SessionRegistry) Broadcast(env v1.Envelope, exceptUUID string) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for uuid, c := range r.sessions {
		if c == nil || uuid == exceptUUID {
			continue
		}

		select {
		case <-c.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case c.Send <- env:
		default:
			// Drop rather than block the whole fanout.
		}
	}
}
