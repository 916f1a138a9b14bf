//go:build linux

package client

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/epollchat/pkg/server"
)

func startServer(t *testing.T, configure func(*server.ServerConfig)) *server.Server {
	t.Helper()
	log.SetOutput(io.Discard)

	cfg := server.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1"
	cfg.TCPPort = 0
	cfg.StorageRoot = t.TempDir()
	if configure != nil {
		configure(&cfg)
	}

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func connectClient(t *testing.T, addr, name string) *Connection {
	t.Helper()

	c, err := NewConnection(addr)
	require.NoError(t, err)
	c.SetDownloadDir(t.TempDir())
	require.NoError(t, c.Connect())
	t.Cleanup(c.Close)

	require.NoError(t, c.Login(name))
	assert.Equal(t, "Welcome "+name, nextLine(t, c))
	return c
}

func nextLine(t *testing.T, c *Connection) string {
	t.Helper()

	select {
	case line, ok := <-c.Messages():
		require.True(t, ok, "messages closed")
		return line
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message")
		return ""
	}
}

func TestClientChat(t *testing.T) {
	srv := startServer(t, nil)

	alice := connectClient(t, srv.Addr(), "alice")
	bob := connectClient(t, srv.Addr(), "bob")

	require.NoError(t, alice.SendPublic("hello all"))
	assert.Equal(t, "[alice]: hello all", nextLine(t, bob))

	require.NoError(t, bob.SendPrivate("alice", "hi back"))
	assert.Equal(t, "[Private from bob]: hi back", nextLine(t, alice))

	require.NoError(t, bob.SendPrivate("carol", "?"))
	assert.Equal(t, "User not found: carol", nextLine(t, bob))

	assert.Positive(t, alice.GetBytesSent())
	assert.Positive(t, bob.GetBytesReceived())
}

func TestClientDownload(t *testing.T) {
	var root string
	srv := startServer(t, func(cfg *server.ServerConfig) { root = cfg.StorageRoot })

	content := make([]byte, 300_000)
	for i := range content {
		content[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), content, 0644))

	c := connectClient(t, srv.Addr(), "alice")
	require.NoError(t, c.RequestFile("big.bin"))

	path := filepath.Join(c.downloadDir, "big.bin")
	assert.Equal(t, "[File saved to "+path+"]", nextLine(t, c))

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, saved)

	// The stream is still in sync after the file
	require.NoError(t, c.Login("alice2"))
	assert.Equal(t, "Welcome alice2", nextLine(t, c))
}

func TestClientHeartbeatKeepsConnectionAlive(t *testing.T) {
	srv := startServer(t, func(cfg *server.ServerConfig) {
		cfg.HeartbeatTimeout = 300 * time.Millisecond
		cfg.HeartbeatInterval = 50 * time.Millisecond
	})

	c, err := NewConnection(srv.Addr())
	require.NoError(t, err)
	c.SetHeartbeatInterval(50 * time.Millisecond)
	require.NoError(t, c.Connect())
	t.Cleanup(c.Close)

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, 1, srv.Registry().Len())
}

func TestClientReportsDisconnect(t *testing.T) {
	srv := startServer(t, func(cfg *server.ServerConfig) {
		cfg.HeartbeatTimeout = 200 * time.Millisecond
		cfg.HeartbeatInterval = 50 * time.Millisecond
	})

	c, err := NewConnection(srv.Addr())
	require.NoError(t, err)
	c.SetHeartbeatInterval(time.Hour) // never heartbeat, get evicted
	require.NoError(t, c.Connect())
	t.Cleanup(c.Close)

	assert.Equal(t, DisconnectedNotice, nextLine(t, c))

	select {
	case _, ok := <-c.Messages():
		assert.False(t, ok, "messages channel closed after the notice")
	case <-time.After(time.Second):
		t.Fatal("messages channel not closed")
	}
}
