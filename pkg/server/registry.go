package server

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Registry maps handles to connections. A single mutex guards every
// structural operation; listings are snapshots, so callers may remove
// connections while iterating them.
type Registry struct {
	mu       sync.Mutex
	conns    map[int]*Connection
	loginSeq atomic.Uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int]*Connection),
	}
}

// Insert registers a new connection for fd and returns it
func (r *Registry) Insert(fd int, remoteAddr string) *Connection {
	conn := newConnection(fd, remoteAddr)

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[fd]; ok {
		debugLog.Printf("Registry: fd %d replaced stale session %s", fd, old.ID)
	}
	r.conns[fd] = conn
	return conn
}

// Remove deletes fd from the registry. It reports whether fd was present;
// removing an absent handle is a no-op.
func (r *Registry) Remove(fd int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[fd]; !ok {
		return false
	}
	delete(r.conns, fd)
	return true
}

// Get returns the connection registered for fd
func (r *Registry) Get(fd int) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[fd]
	return conn, ok
}

// GetByUsername resolves a username to a handle by linear scan. Usernames are
// not unique; the most recent login with that name wins.
func (r *Registry) GetByUsername(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := -1
	var bestSeq uint64
	for fd, conn := range r.conns {
		username, seq := conn.login()
		if username != name || seq == 0 {
			continue
		}
		if found == -1 || seq > bestSeq {
			found, bestSeq = fd, seq
		}
	}
	return found, found != -1
}

// SetUsername records a login on conn
func (r *Registry) SetUsername(conn *Connection, name string) {
	conn.setUsername(name, r.loginSeq.Add(1))
}

// ListHandles returns a sorted snapshot of all registered handles
func (r *Registry) ListHandles() []int {
	r.mu.Lock()
	fds := make([]int, 0, len(r.conns))
	for fd := range r.conns {
		fds = append(fds, fd)
	}
	r.mu.Unlock()

	slices.Sort(fds)
	return fds
}

// ListTimedOut returns handles whose last activity is older than threshold
func (r *Registry) ListTimedOut(threshold time.Duration) []int {
	now := time.Now()

	r.mu.Lock()
	var fds []int
	for fd, conn := range r.conns {
		if now.Sub(conn.LastActivity()) > threshold {
			fds = append(fds, fd)
		}
	}
	r.mu.Unlock()

	slices.Sort(fds)
	return fds
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
