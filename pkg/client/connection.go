package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/epollchat/pkg/protocol"
)

const (
	defaultTCPPort           = "8080"
	defaultHeartbeatInterval = 5 * time.Second
	dialTimeout              = 5 * time.Second
)

// DisconnectedNotice is the last line delivered on Messages before it closes
const DisconnectedNotice = "Disconnected from server."

var ErrNotConnected = errors.New("not connected")

// Connection is a client connection to the chat server. Server text is
// delivered as display lines on Messages; FILE_DATA bodies are streamed to
// the download directory.
type Connection struct {
	addr string
	conn net.Conn
	mu   sync.Mutex // Protects conn, pendingFile, downloadDir

	pendingFile string
	downloadDir string

	heartbeatInterval time.Duration

	outgoing chan *protocol.Frame
	messages chan string

	// Traffic counters (bytes on the wire)
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	logger *log.Logger

	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConnection creates a client for addr. A missing port defaults to 8080.
func NewConnection(addr string) (*Connection, error) {
	address, err := parseServerAddress(addr)
	if err != nil {
		return nil, err
	}

	return &Connection{
		addr:              address,
		downloadDir:       ".",
		heartbeatInterval: defaultHeartbeatInterval,
		outgoing:          make(chan *protocol.Frame, 100),
		messages:          make(chan string, 100),
		shutdown:          make(chan struct{}),
	}, nil
}

// SetLogger sets a logger for debugging connection events
func (c *Connection) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetDownloadDir sets where requested files are saved
func (c *Connection) SetDownloadDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloadDir = dir
}

// SetHeartbeatInterval changes the heartbeat period. Call before Connect.
func (c *Connection) SetHeartbeatInterval(d time.Duration) {
	c.heartbeatInterval = d
}

// logf logs a message if a logger is set
func (c *Connection) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Connect dials the server and starts the reader, writer and heartbeat loops
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.mu.Unlock()

	c.logf("Connecting to %s...", c.addr)
	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		c.logf("Connection failed: %v", err)
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logf("Connected successfully to %s", c.addr)

	c.wg.Add(3)
	go c.readLoop(conn)
	go c.writeLoop(conn)
	go c.heartbeatLoop()

	return nil
}

// Close shuts down the connection permanently
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.shutdown)

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()

		c.wg.Wait()
	})
}

// Messages returns display lines from the server. The channel is closed after
// DisconnectedNotice.
func (c *Connection) Messages() <-chan string {
	return c.messages
}

// GetAddress returns the server address
func (c *Connection) GetAddress() string {
	return c.addr
}

// GetBytesSent returns the total bytes sent
func (c *Connection) GetBytesSent() uint64 {
	return c.bytesSent.Load()
}

// GetBytesReceived returns the total bytes received
func (c *Connection) GetBytesReceived() uint64 {
	return c.bytesReceived.Load()
}

// Send queues a frame for the writer
func (c *Connection) Send(frame *protocol.Frame) error {
	select {
	case <-c.shutdown:
		return ErrNotConnected
	default:
	}

	select {
	case c.outgoing <- frame:
		return nil
	case <-c.shutdown:
		return ErrNotConnected
	default:
		return errors.New("outgoing queue full")
	}
}

// Login announces username to the server
func (c *Connection) Login(username string) error {
	return c.Send(&protocol.Frame{Type: protocol.TypeLogin, Payload: (&protocol.LoginMessage{Username: username}).Encode()})
}

// SendPublic sends a message to everyone else
func (c *Connection) SendPublic(content string) error {
	return c.Send(&protocol.Frame{Type: protocol.TypeChatPublic, Payload: (&protocol.ChatMessage{Content: content}).Encode()})
}

// SendPrivate sends a message to one user
func (c *Connection) SendPrivate(target, content string) error {
	return c.Send(&protocol.Frame{Type: protocol.TypeChatPrivate, Payload: (&protocol.ChatMessage{Target: target, Content: content}).Encode()})
}

// RequestFile asks the server for a file. The next FILE_DATA frame is saved
// under the file's base name in the download directory.
func (c *Connection) RequestFile(filename string) error {
	c.mu.Lock()
	c.pendingFile = filename
	c.mu.Unlock()

	return c.Send(&protocol.Frame{Type: protocol.TypeFileRequest, Payload: (&protocol.FileRequestMessage{Filename: filename}).Encode()})
}

// SendHeartbeat tells the server the client is alive
func (c *Connection) SendHeartbeat() error {
	return c.Send(&protocol.Frame{Type: protocol.TypeHeartbeat})
}

// deliver hands a display line to the consumer unless shutting down
func (c *Connection) deliver(line string) {
	select {
	case c.messages <- line:
	case <-c.shutdown:
	}
}

// readLoop reads frames until the connection fails, then reports the
// disconnect and closes Messages
func (c *Connection) readLoop(conn net.Conn) {
	defer c.wg.Done()
	defer close(c.messages)

	reader := bufio.NewReader(&countingReader{r: conn, counter: &c.bytesReceived})

	for {
		header, err := protocol.ReadHeader(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logf("Connection closed by server (EOF)")
			} else {
				c.logf("Read error: %v", err)
			}
			c.deliver(DisconnectedNotice)
			return
		}

		c.logf("← RECV: Type=0x%02X (%s) PayloadLen=%d", header.Type, protocol.TypeName(header.Type), header.PayloadLen())

		if header.Type == protocol.TypeFileData {
			line, err := c.saveFile(reader, header.PayloadLen())
			if err != nil {
				c.logf("File download failed: %v", err)
				c.deliver(DisconnectedNotice)
				return
			}
			if line != "" {
				c.deliver(line)
			}
			continue
		}

		payload := make([]byte, header.PayloadLen())
		if _, err := io.ReadFull(reader, payload); err != nil {
			c.logf("Read error: %v", err)
			c.deliver(DisconnectedNotice)
			return
		}
		if len(payload) > 0 {
			c.deliver(string(payload))
		}
	}
}

// saveFile streams size bytes of FILE_DATA body from r into the pending
// download. Without a pending request, or when the file cannot be created,
// the body is discarded so the stream stays in sync. The returned error is
// only set when reading from r fails.
func (c *Connection) saveFile(r io.Reader, size int64) (string, error) {
	c.mu.Lock()
	name := c.pendingFile
	dir := c.downloadDir
	c.pendingFile = ""
	c.mu.Unlock()

	if name == "" {
		_, err := io.CopyN(io.Discard, r, size)
		return "", err
	}

	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		c.logf("Failed to create %s: %v", path, err)
		if _, err := io.CopyN(io.Discard, r, size); err != nil {
			return "", err
		}
		return fmt.Sprintf("[Error: Could not save file %s]", name), nil
	}

	_, copyErr := io.CopyN(f, r, size)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(path)
		return "", copyErr
	}
	if closeErr != nil {
		return fmt.Sprintf("[Error: Could not save file %s]", name), nil
	}

	c.logf("Saved %d bytes to %s", size, path)
	return fmt.Sprintf("[File saved to %s]", path), nil
}

// writeLoop writes queued frames in order
func (c *Connection) writeLoop(conn net.Conn) {
	defer c.wg.Done()

	writer := &countingWriter{w: conn, counter: &c.bytesSent}
	for {
		select {
		case <-c.shutdown:
			return
		case frame := <-c.outgoing:
			if err := protocol.EncodeFrame(writer, frame); err != nil {
				c.logf("Write error: %v", err)
				conn.Close()
				return
			}
			c.logf("→ SEND: Type=0x%02X (%s) PayloadLen=%d", frame.Type, protocol.TypeName(frame.Type), len(frame.Payload))
		}
	}
}

// heartbeatLoop sends a heartbeat every interval
func (c *Connection) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			if err := c.SendHeartbeat(); err != nil {
				c.logf("Heartbeat not sent: %v", err)
			}
		}
	}
}

// countingReader wraps an io.Reader and counts bytes read
type countingReader struct {
	r       io.Reader
	counter *atomic.Uint64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.counter.Add(uint64(n))
	}
	return n, err
}

// countingWriter wraps an io.Writer and counts bytes written
type countingWriter struct {
	w       io.Writer
	counter *atomic.Uint64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.counter.Add(uint64(n))
	}
	return n, err
}

// parseServerAddress normalizes host[:port], with an optional tcp:// prefix
func parseServerAddress(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "tcp://")
	if trimmed == "" {
		return "", errors.New("server address is empty")
	}
	if strings.Contains(trimmed, "://") {
		return "", fmt.Errorf("unsupported scheme in %q", raw)
	}

	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		// No port given
		host, port = trimmed, defaultTCPPort
	}
	if host == "" {
		return "", fmt.Errorf("invalid server address %q", raw)
	}
	return net.JoinHostPort(host, port), nil
}
