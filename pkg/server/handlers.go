//go:build linux

package server

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aeolun/epollchat/pkg/protocol"
)

// dispatch routes one decoded frame to its handler. It runs on a worker.
func (s *Server) dispatch(conn *Connection, frame protocol.Frame) {
	start := time.Now()

	var err error
	switch frame.Type {
	case protocol.TypeLogin:
		err = s.handleLogin(conn, frame)
	case protocol.TypeChatPublic:
		err = s.handlePublicChat(conn, frame)
	case protocol.TypeChatPrivate:
		err = s.handlePrivateChat(conn, frame)
	case protocol.TypeFileRequest:
		err = s.handleFileRequest(conn, frame)
	case protocol.TypeHeartbeat:
		err = s.handleHeartbeat(conn, frame)
	default:
		log.Printf("Unknown message type: %d (fd %d)", frame.Type, conn.fd)
		s.metrics.RecordDroppedFrame(frame.Type)
	}

	switch {
	case errors.Is(err, protocol.ErrShortBody):
		debugLog.Printf("fd %d: dropping %s with %d-byte body", conn.fd, protocol.TypeName(frame.Type), len(frame.Payload))
		s.metrics.RecordDroppedFrame(frame.Type)
	case errors.Is(err, errConnectionClosed):
		debugLog.Printf("fd %d: %s: peer went away", conn.fd, protocol.TypeName(frame.Type))
	case err != nil:
		errorLog.Printf("fd %d: %s: %v", conn.fd, protocol.TypeName(frame.Type), err)
	}

	s.metrics.RecordDispatchDuration(frame.Type, time.Since(start).Seconds())
}

// handleLogin handles LOGIN message
func (s *Server) handleLogin(conn *Connection, frame protocol.Frame) error {
	msg := &protocol.LoginMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return err
	}

	s.registry.SetUsername(conn, msg.Username)
	log.Printf("User logged in: %s (fd %d)", msg.Username, conn.fd)

	return s.sendFrame(conn, protocol.TypeLoginAck, []byte("Welcome "+msg.Username))
}

// handlePublicChat relays a message to every other connection
func (s *Server) handlePublicChat(conn *Connection, frame protocol.Frame) error {
	msg := &protocol.ChatMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return err
	}

	text := []byte(fmt.Sprintf("[%s]: %s", conn.Username(), msg.Content))
	log.Printf("Public chat: %s", text)

	for _, fd := range s.registry.ListHandles() {
		peer, ok := s.registry.Get(fd)
		if !ok || peer == conn {
			continue
		}
		// One slow or dead peer must not stop the broadcast
		if err := s.sendFrame(peer, protocol.TypeChatPublic, text); err != nil {
			debugLog.Printf("Broadcast: %v", err)
		}
	}
	return nil
}

// handlePrivateChat delivers a message to the most recent login of the target
// name, or tells the sender the name is unknown
func (s *Server) handlePrivateChat(conn *Connection, frame protocol.Frame) error {
	msg := &protocol.ChatMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return err
	}

	var peer *Connection
	if fd, ok := s.registry.GetByUsername(msg.Target); ok {
		peer, _ = s.registry.Get(fd)
	}
	if peer == nil {
		return s.sendFrame(conn, protocol.TypeError, []byte("User not found: "+msg.Target))
	}

	text := fmt.Sprintf("[Private from %s]: %s", conn.Username(), msg.Content)
	return s.sendFrame(peer, protocol.TypeChatPrivate, []byte(text))
}

// handleFileRequest streams the named file back to the requester
func (s *Server) handleFileRequest(conn *Connection, frame protocol.Frame) error {
	msg := &protocol.FileRequestMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return err
	}

	log.Printf("File request from fd %d: %s", conn.fd, msg.Filename)
	return s.sendFile(conn, msg.Filename)
}

// handleHeartbeat refreshes the connection's last activity
func (s *Server) handleHeartbeat(conn *Connection, frame protocol.Frame) error {
	conn.Touch()
	return nil
}
