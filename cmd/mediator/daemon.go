package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lspcore/mediator/internal/config"
	"github.com/lspcore/mediator/internal/daemon"
	"github.com/lspcore/mediator/internal/debug"
	"github.com/lspcore/mediator/internal/fingerprint"
	"github.com/lspcore/mediator/internal/hybrid"
	"github.com/lspcore/mediator/internal/invalidate"
	"github.com/lspcore/mediator/internal/parser"
	"github.com/lspcore/mediator/internal/pipeline"
	"github.com/lspcore/mediator/internal/ucache"
	"github.com/lspcore/mediator/internal/workspace"
)

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run the mediation daemon in the foreground",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Watch the project root and invalidate caches on file changes",
				Value: true,
			},
		},
		Action: runDaemon,
	}
}

func runDaemon(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	router := workspace.New(workspace.Options{
		MaxOpenCaches:        cfg.Cache.MaxOpenCaches,
		MaxParentLookupDepth: cfg.Cache.MaxParentLookupDepth,
		BaseCacheDir:         cfg.Cache.BaseCacheDir,
		DisablePersistence:   config.PersistenceDisabled(),
	})
	defer router.Close()

	algo := fingerprint.Algorithm(cfg.Cache.DigestAlgorithm)
	cache := ucache.New(router, ucache.DefaultRegistry(), algo)

	structural := parser.NewStructuralAdapter()
	pipe := pipeline.New(pipeline.Config{
		MaxFileSizeBytes: cfg.Pipeline.MaxFileSizeBytes,
		ExcludePatterns:  cfg.Pipeline.ExcludePatterns,
		Timeout:          time.Duration(cfg.Pipeline.TimeoutMs) * time.Millisecond,
	})
	for _, language := range structuralLanguages() {
		pipe.Register(pipeline.SubPipeline{
			Language:   language,
			Flags:      pipeline.DefaultFeatureFlags(),
			Structural: structural,
		})
	}

	warmer := pipeline.NewWarmer(pipe, cache, 4)
	coordinator := invalidate.New(cache, router, warmer)

	d := daemon.New(daemon.Options{
		DaemonConfig:     cfg.Daemon,
		ServerConfigs:    cfg.Servers,
		Cache:            cache,
		Router:           router,
		Coordinator:      coordinator,
		Pipeline:         pipe,
		Structural:       structural,
		HybridConfig:     hybridConfigFrom(cfg),
		StrictValidation: debug.Enabled(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("watch") {
		root := c.String("root")
		if root == "" {
			root, _ = os.Getwd()
		}
		watcher, werr := invalidate.NewWatcher(coordinator, 100*time.Millisecond, nil)
		if werr == nil {
			if werr = watcher.Watch(root); werr == nil {
				watcher.Start()
				defer watcher.Stop()
			}
		}
		if werr != nil {
			fmt.Fprintf(os.Stderr, "file watching disabled: %v\n", werr)
		}
	}

	if !cfg.Daemon.SkipLSPBootstrap {
		root := c.String("root")
		if root == "" {
			root, _ = os.Getwd()
		}
		go d.Bootstrap(ctx, root, detectRootLanguages(root))
	}

	socket := socketPath(c, cfg)
	_ = os.Remove(socket)
	ln, err := net.Listen("unix", socket)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socket, err)
	}
	defer os.Remove(socket)

	fmt.Printf("mediator daemon listening on %s\n", socket)
	err = d.Serve(ctx, ln)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	d.Shutdown(shutdownCtx)
	return err
}

// detectRootLanguages infers which language servers are worth
// pre-spawning from the project markers present at root.
func detectRootLanguages(root string) []string {
	markers := map[string]string{
		"go.mod":         "go",
		"Cargo.toml":     "rust",
		"package.json":   "typescript",
		"pyproject.toml": "python",
		"setup.py":       "python",
	}
	var languages []string
	for marker, lang := range markers {
		if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
			languages = append(languages, lang)
		}
	}
	return languages
}

// structuralLanguages is the set of languages the structural analyzer
// parses; each gets a pipeline entry with the default feature flags.
func structuralLanguages() []string {
	return []string{"go", "rust", "python", "typescript", "javascript", "java", "csharp", "cpp", "php", "zig"}
}

func hybridConfigFrom(cfg *config.Config) hybrid.Config {
	hc := hybrid.DefaultConfig()
	hc.SemanticTimeout = time.Duration(cfg.Analyzer.LSPTimeoutSeconds) * time.Second
	hc.MinRelationshipConfidence = cfg.Analyzer.MinRelationshipConfidence
	hc.MergeRelationships = cfg.Analyzer.MergeRelationships
	hc.DeduplicateRelationships = cfg.Analyzer.DeduplicateRelationships
	hc.FilterBeforeMerge = cfg.Analyzer.FilterBeforeMerge
	hc.FallbackToStructural = cfg.Analyzer.FallbackToStructural
	return hc
}
