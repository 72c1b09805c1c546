package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Recognized environment variables. All optional.
const (
	// EnvDisablePersistence switches every workspace cache to in-memory
	// storage; nothing is written to disk.
	EnvDisablePersistence = "MEDIATOR_DISABLE_PERSISTENCE"
	// EnvCacheDir overrides the cache root directory.
	EnvCacheDir = "MEDIATOR_LSP_CACHE_DIR"
	// EnvSkipLSPBootstrap skips launching LSP children on startup; they
	// are still spawned lazily on first request.
	EnvSkipLSPBootstrap = "MEDIATOR_SKIP_LSP_BOOTSTRAP"
)

func envTruthy(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true"
}

// PersistenceDisabled reports whether MEDIATOR_DISABLE_PERSISTENCE is
// set to 1/true.
func PersistenceDisabled() bool { return envTruthy(EnvDisablePersistence) }

// DefaultCacheDir resolves the cache root: the MEDIATOR_LSP_CACHE_DIR
// override, else the platform cache directory, else /tmp/mediator-cache.
func DefaultCacheDir() string {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mediator")
	}
	return filepath.Join(os.TempDir(), "mediator-cache")
}

// applyEnvOverrides layers recognized environment variables over cfg.
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		cfg.Cache.BaseCacheDir = dir
	}
	if envTruthy(EnvSkipLSPBootstrap) {
		cfg.Daemon.SkipLSPBootstrap = true
	}
}
