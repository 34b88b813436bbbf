// Package inspect serves a read-only HTTP view of a composite store:
// listings with routing information, pending deletions, and an endpoint
// that schedules git snapshots of the store.
package inspect

import (
	"os"
	"strconv"
	"time"
)

const (
	// defaultPort is the default HTTP port for the inspection server.
	defaultPort = 8080
)

// ServerConfig holds configuration for the inspection server.
type ServerConfig struct {
	Port          int           // HTTP port to listen on (SWS_INSPECT_PORT, default 8080)
	SnapshotDelay time.Duration // Debounce delay before snapshotting (SWS_SNAPSHOT_DELAY, default 0)
}

// LoadConfigFromEnv loads inspection server configuration from environment variables.
func LoadConfigFromEnv() *ServerConfig {
	cfg := &ServerConfig{
		Port: defaultPort,
	}

	if portStr := os.Getenv("SWS_INSPECT_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		}
	}

	if delayStr := os.Getenv("SWS_SNAPSHOT_DELAY"); delayStr != "" {
		if d, err := time.ParseDuration(delayStr); err == nil && d >= 0 {
			cfg.SnapshotDelay = d
		}
	}

	return cfg
}

// IsValid returns true if the configuration is valid.
func (c *ServerConfig) IsValid() bool {
	return c.Port > 0
}
