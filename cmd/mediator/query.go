package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lspcore/mediator/internal/daemon"
)

// parsePosition splits "file:line:column" (line and column optional,
// 1-based on the command line, 0-based on the wire).
func parsePosition(arg string) (daemon.PositionRequest, error) {
	parts := strings.Split(arg, ":")
	req := daemon.PositionRequest{File: parts[0]}
	if len(parts) > 3 || parts[0] == "" {
		return req, fmt.Errorf("expected <file>[:<line>[:<column>]], got %q", arg)
	}
	if len(parts) >= 2 {
		line, err := strconv.Atoi(parts[1])
		if err != nil || line < 1 {
			return req, fmt.Errorf("bad line number %q", parts[1])
		}
		req.Line = line - 1
	}
	if len(parts) == 3 {
		col, err := strconv.Atoi(parts[2])
		if err != nil || col < 1 {
			return req, fmt.Errorf("bad column number %q", parts[2])
		}
		req.Column = col - 1
	}
	return req, nil
}

func positionCommand(name, usage, kind string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<file>:<line>[:<column>]",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: mediator %s <file>:<line>[:<column>]", name)
			}
			req, err := parsePosition(c.Args().First())
			if err != nil {
				return err
			}
			return withClient(c, func(cl *client) error {
				if kind == daemon.KindHover {
					var resp daemon.HoverResponse
					if err := cl.call(kind, req, &resp); err != nil {
						return err
					}
					fmt.Println(resp.Contents)
					return nil
				}
				var resp daemon.LocationsResponse
				if err := cl.call(kind, req, &resp); err != nil {
					return err
				}
				if len(resp.Locations) == 0 {
					fmt.Println("no results")
					return nil
				}
				for _, l := range resp.Locations {
					fmt.Printf("%s:%d:%d\n", l.File, l.Line+1, l.Column+1)
				}
				return nil
			})
		},
	}
}

func definitionCommand() *cli.Command {
	return positionCommand("definition", "Jump-to-definition for the symbol at a position", daemon.KindDefinition)
}

func referencesCommand() *cli.Command {
	return positionCommand("references", "List references to the symbol at a position", daemon.KindReferences)
}

func hoverCommand() *cli.Command {
	return positionCommand("hover", "Hover documentation for the symbol at a position", daemon.KindHover)
}

func symbolsCommand() *cli.Command {
	return &cli.Command{
		Name:      "symbols",
		Usage:     "List a file's document symbols",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: mediator symbols <file>")
			}
			return withClient(c, func(cl *client) error {
				var resp daemon.DocumentSymbolsResponse
				req := daemon.DocumentSymbolsRequest{File: c.Args().First()}
				if err := cl.call(daemon.KindDocumentSymbols, req, &resp); err != nil {
					return err
				}
				for _, s := range resp.Symbols {
					fmt.Printf("%-10s %-30s %d:%d\n", s.Kind, s.Name, s.Line+1, s.Column+1)
				}
				return nil
			})
		},
	}
}

func callHierarchyCommand() *cli.Command {
	return &cli.Command{
		Name:      "call-hierarchy",
		Usage:     "Incoming and outgoing calls for the function at a position",
		ArgsUsage: "<file>:<line>[:<column>]",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: mediator call-hierarchy <file>:<line>[:<column>]")
			}
			pos, err := parsePosition(c.Args().First())
			if err != nil {
				return err
			}
			return withClient(c, func(cl *client) error {
				var resp daemon.CallHierarchyResponse
				req := daemon.CallHierarchyRequest{File: pos.File, Line: pos.Line, Column: pos.Column}
				if err := cl.call(daemon.KindCallHierarchy, req, &resp); err != nil {
					return err
				}
				fmt.Printf("incoming (%d):\n", len(resp.Incoming))
				for _, call := range resp.Incoming {
					fmt.Printf("  %s  %s:%d\n", call.Name, call.File, call.Line+1)
				}
				fmt.Printf("outgoing (%d):\n", len(resp.Outgoing))
				for _, call := range resp.Outgoing {
					fmt.Printf("  %s  %s:%d\n", call.Name, call.File, call.Line+1)
				}
				if resp.CacheHit {
					fmt.Println("(cached)")
				}
				return nil
			})
		},
	}
}
