package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeolun/epollchat/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	// Configure logger with microsecond precision
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	// Command line flags
	configPath := flag.String("config", "~/.epollchat/server.toml", "Path to config file")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (overrides config)")
	storage := flag.String("storage", "", "Directory served to file requests (overrides config)")
	metricsPort := flag.Int("metrics-port", 0, "Port for the /metrics endpoint (overrides config, 0 keeps config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("epollchat server %s\n", Version)
		os.Exit(0)
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command-line flags override config file
	if *port != 0 {
		config.Server.TCPPort = *port
	}
	if *workers > 0 {
		config.Server.Workers = *workers
	}
	if *storage != "" {
		config.Storage.Root = *storage
	}
	if *metricsPort > 0 {
		config.Metrics.Port = *metricsPort
	}

	storageRoot, err := config.GetStorageRoot()
	if err != nil {
		log.Fatalf("Failed to resolve storage root: %v", err)
	}
	if err := os.MkdirAll(storageRoot, 0755); err != nil {
		log.Fatalf("Failed to create storage directory: %v", err)
	}

	serverConfig := config.ToServerConfig()
	serverConfig.StorageRoot = storageRoot

	if *debug {
		server.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	srv, err := server.NewServer(serverConfig)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	log.Printf("Config: %s (using defaults if not found)", *configPath)
	log.Printf("Storage: %s", storageRoot)

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("epollchat server %s started on %s with %d workers", Version, srv.Addr(), serverConfig.Workers)
	log.Printf("Heartbeat timeout %v, checked every %v", serverConfig.HeartbeatTimeout, serverConfig.HeartbeatInterval)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}
