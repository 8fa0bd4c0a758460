// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Deployment: the bootstrap parameters of the ledger, read once from a
//     YAML manifest when the node first starts on an empty data directory
//   - Node settings: runtime configuration from oyster.conf and flags
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node runtime configuration.
type Config struct {
	DataDir    string `conf:"datadir"`
	Deployment string `conf:"deployment"` // Path to the YAML deployment manifest.

	// Operator identity
	Node NodeConfig

	// RPC server
	RPC RPCConfig

	// Ledger storage
	Storage StorageConfig

	// Event sinks
	Mirror   MirrorConfig
	Stream   StreamConfig
	Dispatch DispatchConfig

	// Logging
	Log LogConfig
}

// NodeConfig names the keyring identity the node operates as. The
// operator bootstraps the ledger and signs the validate and authorize
// steps of asset creation.
type NodeConfig struct {
	Keyring  string `conf:"node.keyring"`
	Identity string `conf:"node.identity"` // Label or address; empty = first identity.
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// StorageConfig selects the ledger storage backend.
type StorageConfig struct {
	Backend string `conf:"storage.backend"` // badger or memory
}

// MirrorConfig holds the Postgres event mirror settings.
type MirrorConfig struct {
	Enabled bool   `conf:"mirror.enabled"`
	DSN     string `conf:"mirror.dsn"`
}

// StreamConfig holds the Kafka event stream settings.
type StreamConfig struct {
	Enabled bool     `conf:"stream.enabled"`
	Brokers []string `conf:"stream.brokers"`
	Topic   string   `conf:"stream.topic"`
}

// DispatchConfig controls how the outbox is drained to the sinks.
type DispatchConfig struct {
	Interval  time.Duration `conf:"dispatch.interval"`
	BatchSize int           `conf:"dispatch.batch"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.oyster
//	macOS:   ~/Library/Application Support/Oyster
//	Windows: %APPDATA%\Oyster
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oyster"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Oyster")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Oyster")
		}
		return filepath.Join(home, "AppData", "Roaming", "Oyster")
	default:
		return filepath.Join(home, ".oyster")
	}
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, "ledger")
}

// KeystoreDir returns the keyring directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keys")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "oyster.conf")
}

// DeploymentFile returns the manifest path, defaulting to
// <datadir>/deployment.yaml.
func (c *Config) DeploymentFile() string {
	if c.Deployment != "" {
		return c.Deployment
	}
	return filepath.Join(c.DataDir, "deployment.yaml")
}

// RPCListenAddr returns the host:port the RPC server binds.
func (c *Config) RPCListenAddr() string {
	return net.JoinHostPort(c.RPC.Addr, strconv.Itoa(c.RPC.Port))
}
