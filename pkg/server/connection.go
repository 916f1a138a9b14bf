package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var errConnectionClosed = errors.New("connection closed")

// ConnectionState is the lifecycle stage of a connection
type ConnectionState int32

const (
	StateAccepted      ConnectionState = iota // registered, no username yet
	StateAuthenticated                        // username set by a login frame
	StateClosing                              // teardown in progress
)

func (s ConnectionState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Connection is the state of one accepted socket. The Registry owns it;
// workers and the heartbeat monitor only hold shared pointers, so a worker may
// keep using a Connection the reactor has already torn down. Every use of the
// fd goes through withFD, which fails once the connection is closed.
type Connection struct {
	ID         string // session ID for logs; fds are reused by the kernel
	RemoteAddr string
	fd         int

	mu       sync.RWMutex // Protects username and loginSeq
	username string
	loginSeq uint64

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanoseconds

	// recvBuf accumulates unread bytes. Only the reactor goroutine touches it.
	recvBuf []byte

	writeMu  sync.Mutex   // Serializes whole frames onto the socket
	fdMu     sync.RWMutex // Held for reading while the fd is in use
	closed   bool
	writable chan struct{}
	done     chan struct{}
}

func newConnection(fd int, remoteAddr string) *Connection {
	c := &Connection{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		fd:         fd,
		writable:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	c.Touch()
	return c
}

// FD returns the connection's handle
func (c *Connection) FD() int {
	return c.fd
}

// Username returns the name recorded by the last login, or ""
func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) setUsername(name string, seq uint64) {
	c.mu.Lock()
	c.username = name
	c.loginSeq = seq
	c.mu.Unlock()

	c.state.CompareAndSwap(int32(StateAccepted), int32(StateAuthenticated))
}

func (c *Connection) login() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username, c.loginSeq
}

// State returns the current lifecycle stage
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// LastActivity returns the time of the last heartbeat (or the accept)
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Touch records activity now
func (c *Connection) Touch() {
	c.touchAt(time.Now())
}

func (c *Connection) touchAt(t time.Time) {
	c.lastActivity.Store(t.UnixNano())
}

// beginClose moves the connection to StateClosing. Only the first caller gets true.
func (c *Connection) beginClose() bool {
	for {
		cur := c.state.Load()
		if ConnectionState(cur) == StateClosing {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateClosing)) {
			return true
		}
	}
}

// Done is closed when teardown starts
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// withFD runs fn with the live fd. The fd cannot be closed (and so cannot be
// reused by the kernel for another socket) while fn runs.
func (c *Connection) withFD(fn func(fd int) error) error {
	c.fdMu.RLock()
	defer c.fdMu.RUnlock()

	if c.closed {
		return errConnectionClosed
	}
	return fn(c.fd)
}

// shutdown wakes anyone waiting on the connection, waits for in-flight fd
// users to finish, then hands the fd to release exactly once.
func (c *Connection) shutdown(release func(fd int)) {
	c.fdMu.Lock()
	defer c.fdMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	release(c.fd)
}

// notifyWritable wakes a writer parked on a full send buffer
func (c *Connection) notifyWritable() {
	select {
	case c.writable <- struct{}{}:
	default:
	}
}

// waitWritable blocks until the reactor reports the socket writable or the
// connection is torn down
func (c *Connection) waitWritable() error {
	select {
	case <-c.writable:
		return nil
	case <-c.done:
		return errConnectionClosed
	}
}
