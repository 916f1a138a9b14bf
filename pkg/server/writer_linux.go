//go:build linux

package server

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/aeolun/epollchat/pkg/protocol"
)

// sendFrame writes one complete frame to conn. Frames from concurrent workers
// never interleave on the same socket.
func (s *Server) sendFrame(conn *Connection, msgType int32, payload []byte) error {
	data, err := protocol.EncodeMessage(msgType, payload)
	if err != nil {
		return err
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	if err := s.writeLocked(conn, data); err != nil {
		return fmt.Errorf("send %s to fd %d: %w", protocol.TypeName(msgType), conn.fd, err)
	}

	debugLog.Printf("fd %d → SEND: Type=0x%02X (%s) PayloadLen=%d", conn.fd, msgType, protocol.TypeName(msgType), len(payload))
	s.metrics.RecordFrameSent(msgType)
	return nil
}

// writeLocked writes all of data. On a full send buffer it parks until
// the event loop reports the socket writable. Caller holds conn.writeMu.
func (s *Server) writeLocked(conn *Connection, data []byte) error {
	for len(data) > 0 {
		var n int
		err := conn.withFD(func(fd int) error {
			var err error
			n, err = unix.Write(fd, data)
			return err
		})
		if n > 0 {
			data = data[n:]
		}

		switch {
		case err == nil:
			if n == 0 {
				return io.ErrShortWrite
			}
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := s.awaitWritable(conn); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// awaitWritable arms EPOLLOUT for conn and blocks until it fires or the
// connection closes
func (s *Server) awaitWritable(conn *Connection) error {
	if err := conn.withFD(s.poller.WatchWrite); err != nil {
		return err
	}
	return conn.waitWritable()
}
