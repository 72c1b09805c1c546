// Command mediator is the CLI for the LSP mediation daemon: it runs the
// daemon itself and translates sub-commands into framed IPC requests
// against a running instance.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lspcore/mediator/internal/config"
	"github.com/lspcore/mediator/internal/debug"
	"github.com/lspcore/mediator/internal/version"
)

func main() {
	app := &cli.App{
		Name:                   "mediator",
		Usage:                  "LSP mediation and caching daemon",
		Version:                version.Info(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Daemon socket path (defaults to the configured path)",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root for config resolution (defaults to cwd)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug logs to a temp file",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				if path, err := debug.OpenLogFile(); err == nil {
					fmt.Fprintf(os.Stderr, "debug log: %s\n", path)
				}
			}
			return nil
		},
		Commands: []*cli.Command{
			daemonCommand(),
			lspCommand(),
			extractCommand(),
			searchCommand(),
			definitionCommand(),
			referencesCommand(),
			hoverCommand(),
			symbolsCommand(),
			callHierarchyCommand(),
			invalidateCommand(),
			clearWorkspaceCommand(),
			switchBranchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for the invocation's
// project root.
func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	return config.Load(root)
}

// socketPath picks the explicit --socket flag over the configured path.
func socketPath(c *cli.Context, cfg *config.Config) string {
	if s := c.String("socket"); s != "" {
		return s
	}
	return cfg.Daemon.SocketPath
}
