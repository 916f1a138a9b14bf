//go:build linux

package server

import (
	"log"
	"time"
)

// heartbeatLoop periodically evicts connections that have gone quiet
func (s *Server) heartbeatLoop() {
	defer s.wg.Done()

	log.Printf("Heartbeat monitor started (timeout %v, check every %v)", s.config.HeartbeatTimeout, s.config.HeartbeatInterval)

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			log.Printf("Heartbeat monitor stopped")
			return
		case <-ticker.C:
			if n := s.evictTimedOut(); n > 0 {
				log.Printf("Evicted %d idle connection(s), %d remaining", n, s.registry.Len())
			}
		}
	}
}

// evictTimedOut closes every connection idle for longer than the heartbeat
// timeout and returns how many it closed
func (s *Server) evictTimedOut() int {
	evicted := 0
	for _, fd := range s.registry.ListTimedOut(s.config.HeartbeatTimeout) {
		conn, ok := s.registry.Get(fd)
		// The fd may have been closed and reused since the snapshot
		if !ok || time.Since(conn.LastActivity()) <= s.config.HeartbeatTimeout {
			continue
		}

		log.Printf("Client timed out (fd %d, session %s, user %q)", fd, conn.ID, conn.Username())
		if s.closeConnection(conn, "heartbeat timeout") {
			s.metrics.RecordHeartbeatEviction()
			evicted++
		}
	}
	return evicted
}
