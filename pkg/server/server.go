//go:build linux

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aeolun/epollchat/pkg/protocol"
)

// maxIdleRecvBuf is how many read buffers' worth of capacity an empty
// receive buffer may keep
const maxIdleRecvBuf = 16

// Server is the chat server. One goroutine runs the epoll loop and performs
// every accept and read; decoded frames are handed to the worker pool; a
// heartbeat monitor evicts silent connections.
type Server struct {
	config   ServerConfig
	registry *Registry
	pool     *WorkerPool
	poller   *poller
	files    FileStore
	metrics  *Metrics

	listenFD int
	addr     string
	scratch  []byte // read buffer, event loop only

	// lifecycleMu makes registry and epoll updates for one fd a single unit
	lifecycleMu sync.Mutex

	metricsServer *http.Server
	shutdown      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(config ServerConfig) (*Server, error) {
	if config.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count %d", config.Workers)
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	if config.HeartbeatInterval <= 0 || config.HeartbeatTimeout <= 0 {
		return nil, errors.New("heartbeat interval and timeout must be positive")
	}

	return &Server{
		config:   config,
		registry: NewRegistry(),
		files:    NewDiskStore(config.StorageRoot),
		metrics:  NewMetrics(),
		listenFD: -1,
		shutdown: make(chan struct{}),
	}, nil
}

// SetFileStore replaces the store used for file requests. Call before Start.
func (s *Server) SetFileStore(store FileStore) {
	s.files = store
}

// Registry returns the connection registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server's metrics
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound listen address once started
func (s *Server) Addr() string {
	return s.addr
}

// Start binds the listening socket and starts the event loop, the heartbeat
// monitor and the worker pool
func (s *Server) Start() error {
	p, err := newPoller()
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	fd, err := createListener(s.config.ListenAddress, s.config.TCPPort)
	if err != nil {
		p.Close()
		return fmt.Errorf("failed to listen on %s:%d: %w", s.config.ListenAddress, s.config.TCPPort, err)
	}

	if err := p.Add(fd); err != nil {
		unix.Close(fd)
		p.Close()
		return fmt.Errorf("failed to watch listener: %w", err)
	}

	addr, err := localAddr(fd)
	if err != nil {
		addr = fmt.Sprintf("%s:%d", s.config.ListenAddress, s.config.TCPPort)
	}

	s.poller = p
	s.listenFD = fd
	s.addr = addr
	s.scratch = make([]byte, s.config.ReadBufferSize)
	s.pool = NewWorkerPool(s.config.Workers)

	logListenBacklog(addr)
	log.Printf("Worker pool started with %d workers", s.pool.Size())

	s.startMetricsServer()

	s.wg.Add(3)
	go s.eventLoop()
	go s.heartbeatLoop()
	go s.monitorListenOverflows()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.shutdown)
		if s.poller == nil {
			return
		}

		s.poller.Wake()
		s.wg.Wait()

		// Tear connections down before draining the pool so that workers
		// parked on a full send buffer are released
		for _, fd := range s.registry.ListHandles() {
			if conn, ok := s.registry.Get(fd); ok {
				s.closeConnection(conn, "shutdown")
			}
		}
		s.pool.Close()

		if s.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			s.metricsServer.Shutdown(ctx)
			cancel()
		}

		if cerr := unix.Close(s.listenFD); cerr != nil {
			err = fmt.Errorf("failed to close listener: %w", cerr)
		}
		if cerr := s.poller.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close poller: %w", cerr)
		}
	})
	return err
}

func (s *Server) startMetricsServer() {
	if s.config.MetricsPort <= 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.MetricsPort),
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics endpoint on http://localhost:%d/metrics", s.config.MetricsPort)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorLog.Printf("Metrics server error: %v", err)
		}
	}()
}

// eventLoop waits for readiness and services the ready fds
func (s *Server) eventLoop() {
	defer s.wg.Done()

	log.Printf("Event loop starting...")
	events := make([]unix.EpollEvent, maxEvents)

	for {
		n, err := s.poller.Wait(events)
		if err != nil {
			errorLog.Printf("Event loop: %v", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case s.listenFD:
				s.acceptConnection()
			case s.poller.wakeFD:
				s.poller.drainWake()
			default:
				s.handleEvent(fd, events[i].Events)
			}
		}

		select {
		case <-s.shutdown:
			log.Printf("Event loop stopped")
			return
		default:
		}
	}
}

// acceptConnection accepts one connection. The listener is level-triggered,
// so further pending connections fire again on the next wait.
func (s *Server) acceptConnection() {
	fd, remote, err := acceptConn(s.listenFD)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
			return
		}
		errorLog.Printf("Accept error: %v", err)
		return
	}

	conn, err := s.registerConnection(fd, remote)
	if err != nil {
		errorLog.Printf("Failed to register fd %d: %v", fd, err)
		unix.Close(fd)
		return
	}

	log.Printf("New connection from %s (fd %d, session %s)", remote, fd, conn.ID)
}

// registerConnection inserts fd into the registry and the poller as one unit
func (s *Server) registerConnection(fd int, remote string) (*Connection, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	conn := s.registry.Insert(fd, remote)
	if err := s.poller.Add(fd); err != nil {
		s.registry.Remove(fd)
		return nil, err
	}

	s.metrics.RecordConnectionAccepted()
	s.metrics.RecordActiveConnections(s.registry.Len())
	return conn, nil
}

// closeConnection tears conn down: unregister from epoll, close the fd,
// remove from the registry. It is the only teardown path, used by the event
// loop, the heartbeat monitor and Stop. Only the first call for a connection
// does anything; it reports whether this call closed it.
func (s *Server) closeConnection(conn *Connection, reason string) bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if current, ok := s.registry.Get(conn.fd); !ok || current != conn {
		return false
	}
	if !conn.beginClose() {
		return false
	}

	conn.shutdown(func(fd int) {
		if err := s.poller.Remove(fd); err != nil {
			debugLog.Printf("fd %d: %v", fd, err)
		}
		if err := unix.Close(fd); err != nil {
			debugLog.Printf("fd %d: close: %v", fd, err)
		}
	})
	s.registry.Remove(conn.fd)

	s.metrics.RecordConnectionClosed(reason)
	s.metrics.RecordActiveConnections(s.registry.Len())
	debugLog.Printf("Closed fd %d (session %s): %s", conn.fd, conn.ID, reason)
	return true
}

// handleEvent services readiness on a client fd
func (s *Server) handleEvent(fd int, events uint32) {
	conn, ok := s.registry.Get(fd)
	if !ok {
		return
	}

	if events&unix.EPOLLOUT != 0 {
		conn.withFD(s.poller.UnwatchWrite)
		conn.notifyWritable()
	}

	if events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		s.readConnection(conn)
	}
}

// readConnection performs one non-blocking read and submits every complete
// frame now buffered
func (s *Server) readConnection(conn *Connection) {
	var n int
	err := conn.withFD(func(fd int) error {
		var err error
		n, err = unix.Read(fd, s.scratch)
		return err
	})

	switch {
	case errors.Is(err, errConnectionClosed):
		return
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return
	case err != nil:
		log.Printf("Read error on fd %d (session %s): %v", conn.fd, conn.ID, err)
		s.closeConnection(conn, "read error")
		return
	case n == 0:
		log.Printf("Client disconnected (fd %d, session %s)", conn.fd, conn.ID)
		s.closeConnection(conn, "peer closed")
		return
	}

	conn.recvBuf = append(conn.recvBuf, s.scratch[:n]...)
	s.drainFrames(conn)
}

// drainFrames decodes frames from the receive buffer until none is complete.
// Frames are submitted in arrival order, one task each.
func (s *Server) drainFrames(conn *Connection) {
	offset := 0
	for {
		frame, n, err := protocol.DecodeOne(conn.recvBuf[offset:])
		if errors.Is(err, protocol.ErrNeedMoreData) {
			break
		}
		if err != nil {
			errorLog.Printf("Invalid packet length from fd %d (session %s): %v", conn.fd, conn.ID, err)
			s.metrics.RecordProtocolError()
			s.closeConnection(conn, "protocol error")
			return
		}
		offset += n

		debugLog.Printf("fd %d ← RECV: Type=0x%02X (%s) PayloadLen=%d", conn.fd, frame.Type, protocol.TypeName(frame.Type), len(frame.Payload))
		s.metrics.RecordFrameReceived(frame.Type)
		s.submit(conn, frame)
	}

	if offset > 0 {
		remaining := copy(conn.recvBuf, conn.recvBuf[offset:])
		conn.recvBuf = conn.recvBuf[:remaining]

		// Let a buffer grown by one large frame go
		if remaining == 0 && cap(conn.recvBuf) > maxIdleRecvBuf*s.config.ReadBufferSize {
			conn.recvBuf = nil
		}
	}
}

// submit queues one frame for dispatch
func (s *Server) submit(conn *Connection, frame protocol.Frame) {
	if _, err := s.pool.Submit(func() { s.dispatch(conn, frame) }); err != nil {
		debugLog.Printf("fd %d: dropping %s: %v", conn.fd, protocol.TypeName(frame.Type), err)
		return
	}
	s.metrics.RecordQueuedTasks(s.pool.Pending())
}
