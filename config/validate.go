package config

import "fmt"

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	switch cfg.Storage.Backend {
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendBadger, BackendMemory)
	}
	if cfg.Mirror.Enabled && cfg.Mirror.DSN == "" {
		return fmt.Errorf("mirror.enabled requires mirror.dsn")
	}
	if cfg.Stream.Enabled {
		if len(cfg.Stream.Brokers) == 0 {
			return fmt.Errorf("stream.enabled requires stream.brokers")
		}
		if cfg.Stream.Topic == "" {
			return fmt.Errorf("stream.enabled requires stream.topic")
		}
	}
	if cfg.Dispatch.Interval <= 0 {
		return fmt.Errorf("dispatch.interval must be positive")
	}
	if cfg.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch.batch must be positive")
	}
	if cfg.Node.Keyring == "" {
		return fmt.Errorf("node.keyring is required")
	}
	return nil
}
