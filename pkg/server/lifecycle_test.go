//go:build linux

package server

import (
	"bytes"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/aeolun/epollchat/pkg/protocol"
)

// waitForConnection returns the single registered connection
func waitForConnection(t *testing.T, srv *Server) *Connection {
	t.Helper()

	require.Eventually(t, func() bool { return srv.Registry().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	handles := srv.Registry().ListHandles()
	require.Len(t, handles, 1)
	conn, ok := srv.Registry().Get(handles[0])
	require.True(t, ok)
	return conn
}

func TestCloseConnectionRunsOnce(t *testing.T) {
	srv, addr := startTestServer(t, nil)

	for round := 0; round < 20; round++ {
		client := connectTCPClient(t, addr)
		conn := waitForConnection(t, srv)
		fd := conn.FD()

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			start   = make(chan struct{})
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if srv.closeConnection(conn, "test") {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), winners.Load(), "round %d", round)

		_, ok := srv.Registry().Get(fd)
		assert.False(t, ok, "fd %d still registered", fd)
		assert.Equal(t, 0, srv.Registry().Len())
		assert.Error(t, unix.EpollCtl(srv.poller.epfd, unix.EPOLL_CTL_DEL, fd, nil), "fd %d still in epoll", fd)

		assert.False(t, srv.closeConnection(conn, "test"), "second close is a no-op")
		expectClosed(t, client)
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writes
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPublicChatIsLogged(t *testing.T) {
	out := &lockedBuffer{}
	log.SetOutput(out)
	t.Cleanup(func() { log.SetOutput(io.Discard) })

	_, addr := startTestServer(t, nil)
	alice := loginClient(t, addr, "alice")
	bob := loginClient(t, addr, "bob")

	sendProtocolMessage(t, alice, protocol.TypeChatPublic, chatBody("", "hello"))
	expectMessage(t, bob, protocol.TypeChatPublic, "[alice]: hello")

	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Public chat: [alice]: hello"))
	}, time.Second, 10*time.Millisecond)
}

// newDrainServer builds a server with only what drainFrames needs
func newDrainServer(t *testing.T) *Server {
	t.Helper()

	srv, err := NewServer(DefaultConfig())
	require.NoError(t, err)
	srv.pool = NewWorkerPool(1)
	t.Cleanup(srv.pool.Close)
	return srv
}

func TestDrainFramesReleasesLargeBuffer(t *testing.T) {
	srv := newDrainServer(t)
	conn := newConnection(-1, "peer")

	frame, err := protocol.EncodeMessage(protocol.TypeHeartbeat, nil)
	require.NoError(t, err)

	conn.recvBuf = make([]byte, 0, 1<<20)
	conn.recvBuf = append(conn.recvBuf, frame...)
	srv.drainFrames(conn)

	assert.Nil(t, conn.recvBuf, "empty oversized buffer is dropped")
}

func TestDrainFramesKeepsPartialFrame(t *testing.T) {
	srv := newDrainServer(t)
	conn := newConnection(-1, "peer")

	frame, err := protocol.EncodeMessage(protocol.TypeHeartbeat, nil)
	require.NoError(t, err)

	conn.recvBuf = make([]byte, 0, 1<<20)
	conn.recvBuf = append(conn.recvBuf, frame...)
	conn.recvBuf = append(conn.recvBuf, frame[:5]...)
	srv.drainFrames(conn)

	assert.Equal(t, frame[:5], conn.recvBuf)
}

func TestDrainFramesKeepsSmallBuffer(t *testing.T) {
	srv := newDrainServer(t)
	conn := newConnection(-1, "peer")

	frame, err := protocol.EncodeMessage(protocol.TypeHeartbeat, nil)
	require.NoError(t, err)

	conn.recvBuf = append(make([]byte, 0, 64), frame...)
	srv.drainFrames(conn)

	assert.NotNil(t, conn.recvBuf)
	assert.Empty(t, conn.recvBuf)
	assert.Equal(t, 64, cap(conn.recvBuf))
}
