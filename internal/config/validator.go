package config

import (
	"fmt"
)

// Validate checks cfg for values that would misbehave at runtime and
// clamps the handful of keys where a silently-corrected default beats a
// startup failure.
func Validate(cfg *Config) error {
	if cfg.Cache.MaxOpenCaches <= 0 {
		cfg.Cache.MaxOpenCaches = 32
	}
	if cfg.Cache.MaxParentLookupDepth <= 0 {
		cfg.Cache.MaxParentLookupDepth = 64
	}
	switch cfg.Cache.DigestAlgorithm {
	case "", "xxhash", "sha256":
	default:
		return fmt.Errorf("config: unknown cache.digest_algorithm %q (want xxhash or sha256)", cfg.Cache.DigestAlgorithm)
	}

	if cfg.Analyzer.MinRelationshipConfidence < 0 || cfg.Analyzer.MinRelationshipConfidence > 1 {
		return fmt.Errorf("config: analyzer.min_relationship_confidence %v out of range [0,1]", cfg.Analyzer.MinRelationshipConfidence)
	}
	if cfg.Analyzer.LSPTimeoutSeconds <= 0 {
		cfg.Analyzer.LSPTimeoutSeconds = 10
	}

	if cfg.Pipeline.MaxFileSizeBytes <= 0 {
		cfg.Pipeline.MaxFileSizeBytes = 5 * 1024 * 1024
	}
	if cfg.Pipeline.TimeoutMs <= 0 {
		cfg.Pipeline.TimeoutMs = 10_000
	}

	if cfg.Daemon.MaxConnections <= 0 {
		cfg.Daemon.MaxConnections = 64
	}
	if cfg.Daemon.HandlerTimeoutSec <= 0 {
		cfg.Daemon.HandlerTimeoutSec = 30
	}
	if cfg.Daemon.WatchdogTimeoutSec <= 0 {
		cfg.Daemon.WatchdogTimeoutSec = 60
	}
	if cfg.Daemon.SocketPath == "" {
		return fmt.Errorf("config: daemon.socket_path must not be empty")
	}

	for lang, sc := range cfg.Servers {
		if sc.Command == "" {
			return fmt.Errorf("config: server %q has no command", lang)
		}
	}
	return nil
}
