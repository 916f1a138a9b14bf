package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddress     string
	TCPPort           int
	Workers           int
	ReadBufferSize    int
	HeartbeatTimeout  time.Duration
	HeartbeatInterval time.Duration
	StorageRoot       string
	MetricsPort       int
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		ListenAddress:     "0.0.0.0",
		TCPPort:           8080,
		Workers:           4,
		ReadBufferSize:    4096,
		HeartbeatTimeout:  30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StorageRoot:       "./file_storage",
		MetricsPort:       0, // disabled
	}
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server    ServerSection    `toml:"server"`
	Heartbeat HeartbeatSection `toml:"heartbeat"`
	Storage   StorageSection   `toml:"storage"`
	Metrics   MetricsSection   `toml:"metrics"`
}

type ServerSection struct {
	ListenAddress  string `toml:"listen_address"`
	TCPPort        int    `toml:"tcp_port"`
	Workers        int    `toml:"workers"`
	ReadBufferSize int    `toml:"read_buffer_size"`
}

type HeartbeatSection struct {
	TimeoutSeconds       int `toml:"timeout_seconds"`
	CheckIntervalSeconds int `toml:"check_interval_seconds"`
}

type StorageSection struct {
	Root string `toml:"root"`
}

type MetricsSection struct {
	Port int `toml:"port"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			ListenAddress:  "0.0.0.0",
			TCPPort:        8080,
			Workers:        4,
			ReadBufferSize: 4096,
		},
		Heartbeat: HeartbeatSection{
			TimeoutSeconds:       30,
			CheckIntervalSeconds: 10,
		},
		Storage: StorageSection{
			Root: "./file_storage",
		},
	}
}

// expandHome replaces a leading ~/ with the user's home directory
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// Unwritable location; run with defaults anyway
			return config, nil
		}
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# Chat Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig, keeping defaults for
// unset fields
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if strings.TrimSpace(c.Server.ListenAddress) != "" {
		cfg.ListenAddress = c.Server.ListenAddress
	}

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}

	if c.Server.Workers > 0 {
		cfg.Workers = c.Server.Workers
	}

	if c.Server.ReadBufferSize > 0 {
		cfg.ReadBufferSize = c.Server.ReadBufferSize
	}

	if c.Heartbeat.TimeoutSeconds > 0 {
		cfg.HeartbeatTimeout = time.Duration(c.Heartbeat.TimeoutSeconds) * time.Second
	}

	if c.Heartbeat.CheckIntervalSeconds > 0 {
		cfg.HeartbeatInterval = time.Duration(c.Heartbeat.CheckIntervalSeconds) * time.Second
	}

	if strings.TrimSpace(c.Storage.Root) != "" {
		cfg.StorageRoot = c.Storage.Root
	}

	if c.Metrics.Port > 0 {
		cfg.MetricsPort = c.Metrics.Port
	}

	return cfg
}

// GetStorageRoot returns the storage root with ~ expanded
func (c *TOMLConfig) GetStorageRoot() (string, error) {
	root := c.Storage.Root
	if strings.TrimSpace(root) == "" {
		root = DefaultConfig().StorageRoot
	}
	return expandHome(root)
}
