package config

import "time"

// Default returns the default node configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Node: NodeConfig{
			Keyring: "operator",
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8645,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Storage: StorageConfig{
			Backend: BackendBadger,
		},
		Stream: StreamConfig{
			Topic: "oyster.ledger-events",
		},
		Dispatch: DispatchConfig{
			Interval:  time.Second,
			BatchSize: 256,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
