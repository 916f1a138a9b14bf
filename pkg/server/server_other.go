//go:build !linux

package server

import "errors"

// ErrUnsupportedPlatform is returned where epoll is unavailable
var ErrUnsupportedPlatform = errors.New("server requires linux (epoll, sendfile)")

// Server is unavailable on this platform
type Server struct{}

// NewServer always fails on this platform
func NewServer(config ServerConfig) (*Server, error) {
	return nil, ErrUnsupportedPlatform
}

func (s *Server) SetFileStore(store FileStore) {}
func (s *Server) Registry() *Registry         { return nil }
func (s *Server) Metrics() *Metrics           { return nil }
func (s *Server) Addr() string                { return "" }
func (s *Server) Start() error                { return ErrUnsupportedPlatform }
func (s *Server) Stop() error                 { return nil }
