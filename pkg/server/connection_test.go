package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionShutdownReleasesOnce(t *testing.T) {
	conn := newConnection(42, "peer")

	var released []int
	conn.shutdown(func(fd int) { released = append(released, fd) })
	conn.shutdown(func(fd int) { released = append(released, fd) })

	assert.Equal(t, []int{42}, released)

	err := conn.withFD(func(fd int) error {
		t.Fatal("fd used after shutdown")
		return nil
	})
	assert.ErrorIs(t, err, errConnectionClosed)

	select {
	case <-conn.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestConnectionShutdownWaitsForFDUsers(t *testing.T) {
	conn := newConnection(3, "peer")

	inUse := make(chan struct{})
	finish := make(chan struct{})
	go conn.withFD(func(fd int) error {
		close(inUse)
		<-finish
		return nil
	})
	<-inUse

	released := make(chan struct{})
	go conn.shutdown(func(fd int) { close(released) })

	select {
	case <-released:
		t.Fatal("fd released while in use")
	case <-time.After(50 * time.Millisecond):
	}

	close(finish)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("fd never released")
	}
}

func TestConnectionWaitWritable(t *testing.T) {
	conn := newConnection(3, "peer")

	// A wakeup before the wait is not lost
	conn.notifyWritable()
	conn.notifyWritable()
	require.NoError(t, conn.waitWritable())

	errs := make(chan error, 1)
	go func() { errs <- conn.waitWritable() }()

	conn.shutdown(func(int) {})
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, errConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by shutdown")
	}
}

func TestConnectionStateTransitions(t *testing.T) {
	conn := newConnection(1, "peer")
	assert.Equal(t, StateAccepted, conn.State())
	assert.Equal(t, "accepted", conn.State().String())

	conn.setUsername("alice", 1)
	assert.Equal(t, StateAuthenticated, conn.State())

	assert.True(t, conn.beginClose())
	assert.False(t, conn.beginClose())
	assert.Equal(t, StateClosing, conn.State())

	// A late login does not reopen a closing connection
	conn.setUsername("bob", 2)
	assert.Equal(t, StateClosing, conn.State())
}
