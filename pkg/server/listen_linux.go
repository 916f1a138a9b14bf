//go:build linux

package server

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const overflowCheckInterval = 10 * time.Second

// logListenBacklog logs the listen address along with the kernel's somaxconn
// cap on our backlog
func logListenBacklog(addr string) {
	somaxconn := readProcInt("/proc/sys/net/core/somaxconn")
	log.Printf("Chat server listening on %s (backlog %d, kernel cap %d)", addr, listenBacklog, somaxconn)
	if somaxconn > 0 && somaxconn < listenBacklog {
		log.Printf("WARNING: net.core.somaxconn=%d truncates the listen backlog", somaxconn)
	}
}

// monitorListenOverflows reports connections the kernel dropped because the
// accept queue was full
func (s *Server) monitorListenOverflows() {
	defer s.wg.Done()

	ticker := time.NewTicker(overflowCheckInterval)
	defer ticker.Stop()

	last := listenOverflows()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			current := listenOverflows()
			if current > last {
				log.Printf("WARNING: %d connection(s) dropped by listen queue overflow (total %d)", current-last, current)
			}
			last = current
		}
	}
}

func readProcInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return n
}

// listenOverflows reads TcpExt ListenOverflows from /proc/net/netstat. The
// file holds a header line and a value line per protocol.
func listenOverflows() uint64 {
	f, err := os.Open("/proc/net/netstat")
	if err != nil {
		return 0
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "TcpExt:" {
			continue
		}
		if names == nil {
			names = fields[1:]
			continue
		}
		return parseCounter(names, fields[1:], "ListenOverflows")
	}
	return 0
}

func parseCounter(names, values []string, name string) uint64 {
	for i, n := range names {
		if n != name || i >= len(values) {
			continue
		}
		v, err := strconv.ParseUint(values[i], 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}
