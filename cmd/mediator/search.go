package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"
	"github.com/urfave/cli/v2"

	"github.com/lspcore/mediator/internal/daemon"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search symbols under a path, ranked by name similarity",
		ArgsUsage: "<query> <path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "lsp", Usage: "Use hybrid extraction per file"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Max results", Value: 20},
		},
		Action: searchAction,
	}
}

// searchHit is one ranked symbol match.
type searchHit struct {
	Name  string
	Kind  string
	File  string
	Line  int
	Score float64
}

var sourceExtensions = map[string]bool{
	".go": true, ".rs": true, ".py": true, ".ts": true, ".tsx": true,
	".js": true, ".jsx": true, ".java": true, ".cs": true, ".cpp": true,
	".cc": true, ".c": true, ".h": true, ".hpp": true, ".php": true, ".zig": true,
}

func searchAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: mediator search <query> <path>")
	}
	query := c.Args().Get(0)
	root := c.Args().Get(1)
	limit := c.Int("limit")

	return withClient(c, func(cl *client) error {
		var hits []searchHit
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				name := d.Name()
				if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "target" || name == "vendor") {
					return filepath.SkipDir
				}
				return nil
			}
			if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			var resp daemon.ExtractResponse
			req := daemon.ExtractRequest{Path: path, UseLSP: c.Bool("lsp")}
			if callErr := cl.call(daemon.KindExtract, req, &resp); callErr != nil {
				// One unparseable file must not kill the whole search.
				return nil
			}
			for kind, symbols := range resp.SymbolsByKind {
				for _, s := range symbols {
					if score := scoreSymbol(query, s.Name); score > 0.5 {
						hits = append(hits, searchHit{Name: s.Name, Kind: kind, File: path, Line: s.Line, Score: score})
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > limit {
			hits = hits[:limit]
		}
		for _, h := range hits {
			fmt.Printf("%5.2f  %-10s %-30s %s:%d\n", h.Score, h.Kind, h.Name, h.File, h.Line)
		}
		if len(hits) == 0 {
			fmt.Println("no matches")
		}
		return nil
	})
}

// scoreSymbol ranks a symbol name against the query: exact and
// substring matches dominate, then stem equality, then Jaro-Winkler
// similarity over the lowercased pair.
func scoreSymbol(query, name string) float64 {
	q := strings.ToLower(query)
	n := strings.ToLower(name)

	if q == n {
		return 1.0
	}
	if strings.Contains(n, q) {
		return 0.9
	}
	if porter2.Stem(q) == porter2.Stem(n) {
		return 0.85
	}
	score, err := edlib.StringsSimilarity(q, n, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(score) * 0.8
}
