//go:build linux

package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/sys/unix"

	"github.com/aeolun/epollchat/pkg/protocol"
)

// maxSendfileChunk bounds a single sendfile call
const maxSendfileChunk = 1 << 30

// sendFile streams a stored file to conn as one FILE_DATA frame. The header
// goes out with write, the body with sendfile, both under the connection's
// write lock so no other frame can land inside the file bytes. Failures are
// logged by the caller and the requester is not notified.
func (s *Server) sendFile(conn *Connection, name string) error {
	f, size, err := s.files.Open(name)
	if err != nil {
		s.metrics.RecordFileTransfer("open_failed", 0)
		return fmt.Errorf("failed to open file %q: %w", name, err)
	}
	defer f.Close()

	header, err := protocol.EncodeHeader(protocol.TypeFileData, size)
	if err != nil {
		s.metrics.RecordFileTransfer("too_large", 0)
		return fmt.Errorf("file %q (%d bytes): %w", name, size, err)
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	if err := s.writeLocked(conn, header); err != nil {
		s.metrics.RecordFileTransfer("failed", 0)
		return fmt.Errorf("failed to send FILE_DATA header: %w", err)
	}
	s.metrics.RecordFrameSent(protocol.TypeFileData)

	log.Printf("Starting zero-copy transfer of %s (%d bytes) to fd %d", name, size, conn.fd)
	sent, err := s.streamFile(conn, f, size)
	if err != nil {
		s.metrics.RecordFileTransfer("failed", sent)
		return fmt.Errorf("sendfile %q stopped after %d/%d bytes: %w", name, sent, size, err)
	}

	s.metrics.RecordFileTransfer("ok", sent)
	log.Printf("File transfer complete: %s", name)
	return nil
}

// streamFile copies size bytes of f to the socket with sendfile and returns
// how many were sent
func (s *Server) streamFile(conn *Connection, f *os.File, size int64) (int64, error) {
	srcFD := int(f.Fd())

	var offset int64
	for offset < size {
		var n int
		err := conn.withFD(func(fd int) error {
			var err error
			n, err = unix.Sendfile(fd, srcFD, &offset, int(min(size-offset, maxSendfileChunk)))
			return err
		})

		switch {
		case err == nil:
			if n == 0 {
				// File shrank after it was opened
				return offset, io.ErrUnexpectedEOF
			}
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := s.awaitWritable(conn); err != nil {
				return offset, err
			}
		default:
			return offset, err
		}
	}
	return offset, nil
}
