// Package config loads and merges daemon configuration from KDL files.
//
// Resolution order, lowest precedence first: built-in defaults, the
// global ~/.mediator.kdl, the project's .mediator.kdl, then environment
// overrides. Later layers only replace keys they explicitly set.
package config

import (
	"os"
	"path/filepath"
)

// ConfigFileName is the per-project and per-user configuration file.
const ConfigFileName = ".mediator.kdl"

// Config is the process-wide immutable configuration, built once at
// startup. Later reads are cheap copies.
type Config struct {
	Cache    Cache
	Analyzer Analyzer
	Pipeline Pipeline
	Daemon   Daemon
	Servers  map[string]ServerConfig
}

// Cache carries the cache.* keys: the workspace router's LRU size, storage
// root, workspace-discovery depth bound, and the digest algorithm used
// for NodeKey content digests.
type Cache struct {
	MaxOpenCaches        int
	BaseCacheDir         string
	MaxParentLookupDepth int
	DigestAlgorithm      string // "xxhash" or "sha256"
}

// Analyzer carries the analyzer.* keys consumed by the hybrid analyzer.
type Analyzer struct {
	MinRelationshipConfidence float64
	LSPTimeoutSeconds         int
	MergeRelationships        bool
	DeduplicateRelationships  bool
	// FilterBeforeMerge applies the confidence floor before the
	// sophisticated merger runs instead of after it. Off by default,
	// matching the established merge-then-filter order.
	FilterBeforeMerge    bool
	FallbackToStructural bool
}

// Pipeline carries the pipeline.* keys enforced on every per-file run.
type Pipeline struct {
	MaxFileSizeBytes int64
	TimeoutMs        int
	ExcludePatterns  []string
	RespectGitignore bool
}

// Daemon carries the daemon.* keys: socket placement, the acceptor cap,
// per-handler and watchdog timeouts.
type Daemon struct {
	SocketPath         string
	MaxConnections     int
	HandlerTimeoutSec  int
	WatchdogTimeoutSec int
	SkipLSPBootstrap   bool
}

// ServerConfig is one server.<language> block: how to spawn that
// language's LSP child and how long initialization is expected to take.
type ServerConfig struct {
	Command                  string
	Args                     []string
	ServerType               string
	InitializationTimeoutSec int
}

// Default returns the built-in configuration, before any file or
// environment layer is applied.
func Default() *Config {
	return &Config{
		Cache: Cache{
			MaxOpenCaches:        32,
			BaseCacheDir:         DefaultCacheDir(),
			MaxParentLookupDepth: 64,
			DigestAlgorithm:      "xxhash",
		},
		Analyzer: Analyzer{
			MinRelationshipConfidence: 0.5,
			LSPTimeoutSeconds:         10,
			DeduplicateRelationships:  true,
			FallbackToStructural:      true,
		},
		Pipeline: Pipeline{
			MaxFileSizeBytes: 5 * 1024 * 1024,
			TimeoutMs:        10_000,
			RespectGitignore: true,
		},
		Daemon: Daemon{
			SocketPath:         defaultSocketPath(),
			MaxConnections:     64,
			HandlerTimeoutSec:  30,
			WatchdogTimeoutSec: 60,
		},
		Servers: DefaultServers(),
	}
}

// DefaultServers returns the stock language server commands the daemon
// spawns on demand. Users override individual entries with
// server "<lang>" blocks.
func DefaultServers() map[string]ServerConfig {
	return map[string]ServerConfig{
		"rust":       {Command: "rust-analyzer", ServerType: "rust-analyzer"},
		"go":         {Command: "gopls", Args: []string{"serve"}, ServerType: "gopls"},
		"typescript": {Command: "typescript-language-server", Args: []string{"--stdio"}, ServerType: "typescript"},
		"javascript": {Command: "typescript-language-server", Args: []string{"--stdio"}, ServerType: "typescript"},
		"python":     {Command: "pylsp", ServerType: "python"},
	}
}

// defaultSocketPath places the daemon's unix socket under the user's
// runtime directory, falling back to os.TempDir when unset.
func defaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mediatord.sock")
}

// Load builds the effective configuration for projectRoot: defaults,
// then the global ~/.mediator.kdl, then the project's .mediator.kdl,
// then environment overrides.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		if err := loadKDLFile(cfg, filepath.Join(home, ConfigFileName)); err != nil {
			return nil, err
		}
	}

	if projectRoot != "" {
		if err := loadKDLFile(cfg, filepath.Join(projectRoot, ConfigFileName)); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if projectRoot != "" && cfg.Pipeline.RespectGitignore {
		cfg.EnrichExclusions(projectRoot)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnrichExclusions extends the pipeline's exclude patterns with the
// project's .gitignore entries and detected build-output directories,
// deduplicated.
func (c *Config) EnrichExclusions(projectRoot string) {
	gp := NewGitignoreParser()
	if err := gp.LoadGitignore(projectRoot); err == nil {
		c.Pipeline.ExcludePatterns = append(c.Pipeline.ExcludePatterns, gp.ExclusionPatterns()...)
	}

	detector := NewBuildArtifactDetector(projectRoot)
	c.Pipeline.ExcludePatterns = append(c.Pipeline.ExcludePatterns, detector.DetectOutputDirectories()...)
	c.Pipeline.ExcludePatterns = DeduplicatePatterns(c.Pipeline.ExcludePatterns)
}
