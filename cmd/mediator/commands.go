package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lspcore/mediator/internal/daemon"
)

// withClient loads config, dials the daemon, runs fn, and closes the
// connection.
func withClient(c *cli.Context, fn func(*client) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cl, err := dial(socketPath(c, cfg))
	if err != nil {
		return err
	}
	defer cl.Close()
	return fn(cl)
}

func lspCommand() *cli.Command {
	return &cli.Command{
		Name:  "lsp",
		Usage: "Inspect and control the daemon's language servers and caches",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show daemon and per-server status",
				Action: lspStatusAction,
			},
			{
				Name:  "cache",
				Usage: "Cache operations",
				Subcommands: []*cli.Command{
					{
						Name:  "stats",
						Usage: "Show cache statistics",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "format", Usage: "Output format (text or json)", Value: "text"},
						},
						Action: cacheStatsAction,
					},
				},
			},
			{
				Name:      "init-workspace",
				Usage:     "Open a workspace and spawn its language servers",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "languages", Usage: "Comma-separated language list", Value: "go"},
				},
				Action: initWorkspaceAction,
			},
		},
	}
}

func lspStatusAction(c *cli.Context) error {
	return withClient(c, func(cl *client) error {
		var resp daemon.StatusResponse
		if err := cl.call(daemon.KindStatus, daemon.StatusRequest{}, &resp); err != nil {
			return err
		}
		fmt.Printf("daemon up %ds, %d server(s)\n", resp.Uptime, len(resp.Servers))
		for _, s := range resp.Servers {
			state := "spawning"
			switch {
			case s.IsReady:
				state = "ready"
			case s.IsInitialized:
				state = "initialized"
			}
			if s.IsStalled {
				state += " (stalled)"
			}
			fmt.Printf("  %-12s %-14s alive=%v restarts=%d queued=%d elapsed=%dms\n",
				s.Language, state, s.IsAlive, s.RestartCount, s.QueuedRequests, s.ElapsedMs)
		}
		return nil
	})
}

func cacheStatsAction(c *cli.Context) error {
	return withClient(c, func(cl *client) error {
		var resp daemon.CacheStatsResponse
		if err := cl.call(daemon.KindCacheStats, daemon.CacheStatsRequest{}, &resp); err != nil {
			return err
		}
		if c.String("format") == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		fmt.Printf("entries: %d  workspaces: %d\n", resp.TotalEntries, resp.ActiveWorkspace)
		fmt.Printf("hits: %d  misses: %d  hit rate: %.1f%%\n", resp.Hits, resp.Misses, resp.HitRate*100)
		for method, m := range resp.PerMethod {
			fmt.Printf("  %-24s hits=%d misses=%d\n", method, m.Hits, m.Misses)
		}
		return nil
	})
}

func initWorkspaceAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: mediator lsp init-workspace <path>")
	}
	root := c.Args().First()
	languages := strings.Split(c.String("languages"), ",")
	for i := range languages {
		languages[i] = strings.TrimSpace(languages[i])
	}
	return withClient(c, func(cl *client) error {
		var resp daemon.InitWorkspaceResponse
		req := daemon.InitWorkspaceRequest{Root: root, Languages: languages}
		if err := cl.call(daemon.KindInitWorkspace, req, &resp); err != nil {
			return err
		}
		if len(resp.Started) > 0 {
			fmt.Printf("started: %s\n", strings.Join(resp.Started, ", "))
		}
		if len(resp.Failed) > 0 {
			return fmt.Errorf("failed to start: %s", strings.Join(resp.Failed, ", "))
		}
		return nil
	})
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Extract symbols from a file, optionally enriched via LSP",
		ArgsUsage: "<file>[:<line>]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "lsp", Usage: "Run hybrid (structural + LSP) extraction"},
			&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
		},
		Action: extractAction,
	}
}

// splitFileLine splits "path:123" into path and line. A trailing
// component that isn't a number is treated as part of the path.
func splitFileLine(arg string) (string, int) {
	idx := strings.LastIndex(arg, ":")
	if idx <= 0 {
		return arg, 0
	}
	if line, err := strconv.Atoi(arg[idx+1:]); err == nil {
		return arg[:idx], line
	}
	return arg, 0
}

func extractAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: mediator extract <file>[:<line>]")
	}
	path, line := splitFileLine(c.Args().First())

	return withClient(c, func(cl *client) error {
		var resp daemon.ExtractResponse
		req := daemon.ExtractRequest{Path: path, UseLSP: c.Bool("lsp")}
		if err := cl.call(daemon.KindExtract, req, &resp); err != nil {
			return err
		}
		if c.Bool("json") {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		fmt.Printf("%s (%s): %d symbols", resp.FilePath, resp.Language, resp.SymbolsFound)
		if resp.Strategy != "" {
			fmt.Printf(" [%s]", resp.Strategy)
		}
		fmt.Println()
		for kind, symbols := range resp.SymbolsByKind {
			for _, s := range symbols {
				if line > 0 && s.Line != line {
					continue
				}
				fmt.Printf("  %-10s %-30s %d:%d\n", kind, s.Name, s.Line, s.Column)
			}
		}
		for _, w := range resp.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		return nil
	})
}

func invalidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "invalidate",
		Usage:     "Evict all cached entries for a file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: mediator invalidate <file>")
			}
			return withClient(c, func(cl *client) error {
				var resp daemon.InvalidateResult
				req := daemon.InvalidateFileRequest{File: c.Args().First()}
				if err := cl.call(daemon.KindInvalidateFile, req, &resp); err != nil {
					return err
				}
				fmt.Printf("removed %d entries across %d file(s) in %dus\n",
					resp.EntriesRemoved, resp.FilesAffected, resp.DurationMicros)
				return nil
			})
		},
	}
}

func clearWorkspaceCommand() *cli.Command {
	return &cli.Command{
		Name:      "clear-workspace",
		Usage:     "Drop a workspace's cache wholesale",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: mediator clear-workspace <path>")
			}
			return withClient(c, func(cl *client) error {
				var resp daemon.ClearWorkspaceResponse
				req := daemon.ClearWorkspaceRequest{Path: c.Args().First()}
				if err := cl.call(daemon.KindClearWorkspace, req, &resp); err != nil {
					return err
				}
				fmt.Printf("removed %d entries\n", resp.EntriesRemoved)
				return nil
			})
		},
	}
}

func switchBranchCommand() *cli.Command {
	return &cli.Command{
		Name:      "switch-branch",
		Usage:     "Report a branch switch for a workspace",
		ArgsUsage: "<workspace-root> <branch>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "clear-cache", Usage: "Clear the workspace cache on switch", Value: true},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: mediator switch-branch <workspace-root> <branch>")
			}
			return withClient(c, func(cl *client) error {
				var resp daemon.InvalidateResult
				req := daemon.SwitchBranchRequest{
					WorkspaceRoot: c.Args().Get(0),
					Branch:        c.Args().Get(1),
					ClearCache:    c.Bool("clear-cache"),
				}
				if err := cl.call(daemon.KindSwitchBranch, req, &resp); err != nil {
					return err
				}
				fmt.Printf("removed %d entries in %dus\n", resp.EntriesRemoved, resp.DurationMicros)
				return nil
			})
		},
	}
}
