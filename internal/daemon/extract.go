package daemon

import (
	"context"
	"os"

	lspcoreerrors "github.com/lspcore/mediator/internal/errors"
	"github.com/lspcore/mediator/internal/hybrid"
	"github.com/lspcore/mediator/internal/lspserver"
	"github.com/lspcore/mediator/internal/pipeline"
)

// extractWithHybrid runs hybrid (structural plus semantic) extraction
// for path. The semantic side is built from the language server that
// owns path's workspace, so a file in an uninitialized workspace spawns
// its server on first use, same as a call-hierarchy request.
func (d *Daemon) extractWithHybrid(ctx context.Context, path string) (ExtractResponse, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ExtractResponse{}, &lspcoreerrors.NotFound{Path: path}
	}
	language := pipeline.DetectLanguage(path)
	if language == "" {
		return ExtractResponse{}, &lspcoreerrors.UnsupportedLanguage{Language: "(unknown extension)"}
	}
	root, err := d.router.ResolveRoot(path)
	if err != nil {
		return ExtractResponse{}, err
	}

	manager, err := d.managerFor(ctx, language, root)
	if err != nil {
		return ExtractResponse{}, err
	}

	analyzer := hybrid.New(d.structural, lspserver.NewSemanticAdapter(manager), d.hybridCfg)
	result, err := analyzer.Analyze(ctx, path, content, language)
	if err != nil {
		return ExtractResponse{}, err
	}

	resp := ExtractResponse{
		FilePath:       path,
		Language:       language,
		BytesProcessed: int64(len(content)),
		SymbolsFound:   len(result.Symbols),
		Strategy:       string(result.Metadata.Strategy),
		Warnings:       result.Metadata.Warnings,
		SymbolsByKind:  make(map[string][]Symbol),
	}
	for _, s := range result.Symbols {
		resp.SymbolsByKind[s.Kind] = append(resp.SymbolsByKind[s.Kind], Symbol{
			Name:   s.Name,
			Line:   s.Location.Line,
			Column: s.Location.Column,
		})
	}
	return resp, nil
}
