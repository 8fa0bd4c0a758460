package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version is the daemon version reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir    string
	Config     string
	Deployment string

	// Operator
	Keyring  string
	Identity string

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// Storage
	Storage string

	// Sinks
	Mirror        bool
	MirrorDSN     string
	Stream        bool
	StreamBrokers string
	StreamTopic   string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetRPC     bool
	SetMirror  bool
	SetStream  bool
	SetLogJSON bool
}

// ParseFlags parses the process command line, exiting on error.
func ParseFlags() *Flags {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

func parseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("oysterd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.Deployment, "deployment", "", "Deployment manifest path")

	// Operator
	fs.StringVar(&f.Keyring, "keyring", "", "Operator keyring name")
	fs.StringVar(&f.Identity, "identity", "", "Operator identity label or address")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Storage
	fs.StringVar(&f.Storage, "storage", "", "Storage backend (badger or memory)")

	// Sinks
	fs.BoolVar(&f.Mirror, "mirror", false, "Mirror ledger events into Postgres")
	fs.StringVar(&f.MirrorDSN, "mirror-dsn", "", "Postgres connection string")
	fs.BoolVar(&f.Stream, "stream", false, "Publish ledger events to Kafka")
	fs.StringVar(&f.StreamBrokers, "stream-brokers", "", "Kafka brokers (comma-separated)")
	fs.StringVar(&f.StreamTopic, "stream-topic", "", "Kafka topic")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetMirror = isFlagSet(fs, "mirror")
	f.SetStream = isFlagSet(fs, "stream")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Deployment != "" {
		cfg.Deployment = f.Deployment
	}

	// Operator
	if f.Keyring != "" {
		cfg.Node.Keyring = f.Keyring
	}
	if f.Identity != "" {
		cfg.Node.Identity = f.Identity
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// Storage
	if f.Storage != "" {
		cfg.Storage.Backend = strings.ToLower(f.Storage)
	}

	// Sinks
	if f.SetMirror {
		cfg.Mirror.Enabled = f.Mirror
	}
	if f.MirrorDSN != "" {
		cfg.Mirror.DSN = f.MirrorDSN
	}
	if f.SetStream {
		cfg.Stream.Enabled = f.Stream
	}
	if f.StreamBrokers != "" {
		cfg.Stream.Brokers = parseStringList(f.StreamBrokers)
	}
	if f.StreamTopic != "" {
		cfg.Stream.Topic = f.StreamTopic
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// printUsage prints the help message.
func printUsage() {
	usage := `Oyster Ledger Node

Usage:
  oysterd [options]

Core Options:
  --datadir       Data directory (default: ~/.oyster)
  --config, -c    Config file path (default: <datadir>/oyster.conf)
  --deployment    Deployment manifest (default: <datadir>/deployment.yaml)

Operator Options:
  --keyring       Keyring holding the operator identity (default: operator)
  --identity      Identity label or address (default: first identity)

RPC Options:
  --rpc           Enable RPC server (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (default: 8645)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)

Storage Options:
  --storage       Storage backend: badger, memory (default: badger)

Event Sink Options:
  --mirror          Mirror ledger events into Postgres
  --mirror-dsn      Postgres connection string
  --stream          Publish ledger events to Kafka
  --stream-brokers  Kafka brokers (comma-separated)
  --stream-topic    Kafka topic (default: oyster.ledger-events)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Environment:
  OYSTER_PASSPHRASE   Operator keyring passphrase (prompted when unset)

Examples:
  # Start a node with the default data directory
  oysterd

  # Start an in-memory node for local testing
  oysterd --storage=memory --datadir=/tmp/oyster

  # Mirror events into Postgres
  oysterd --mirror --mirror-dsn=postgres://localhost/oyster

Note:
  Ledger parameters come from the deployment manifest and are applied
  once, when the ledger is bootstrapped. Data directories are created
  automatically on first start.
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Printf("oysterd version %s\n", Version)
		os.Exit(0)
	}

	cfg, err := load(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

func load(flags *Flags) (*Config, error) {
	cfg := Default()

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LedgerDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
