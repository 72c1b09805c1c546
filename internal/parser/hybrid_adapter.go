package parser

import (
	"context"
	"fmt"

	"github.com/lspcore/mediator/internal/hybrid"
)

// StructuralAdapter adapts the tree-sitter extractor to the
// hybrid.StructuralAnalyzer contract, so the hybrid analyzer and the
// indexing pipeline can consume structural results without knowing
// about grammars or queries.
type StructuralAdapter struct {
	parser *Parser
}

// NewStructuralAdapter constructs an adapter around a fresh Parser.
func NewStructuralAdapter() *StructuralAdapter {
	return &StructuralAdapter{parser: New()}
}

// Analyze parses path's content and returns its symbols and
// relationships. A parse failure is fatal for the call: structural
// analysis is the hybrid analyzer's non-negotiable half.
func (a *StructuralAdapter) Analyze(ctx context.Context, path string, content []byte, language string) (hybrid.AnalysisResult, error) {
	res, err := a.parser.Extract(ctx, path, content)
	if err != nil {
		return hybrid.AnalysisResult{}, err
	}

	symbols := make([]hybrid.ExtractedSymbol, 0, len(res.Symbols))
	uidByName := make(map[string]string, len(res.Symbols))
	for _, s := range res.Symbols {
		uid := fmt.Sprintf("%s:%d:%d:%s", path, s.Line, s.Column, s.Name)
		if _, seen := uidByName[s.Name]; !seen {
			uidByName[s.Name] = uid
		}
		visibility := "private"
		if s.Exported {
			visibility = "public"
		}
		symbols = append(symbols, hybrid.ExtractedSymbol{
			UID:           uid,
			Kind:          s.Kind,
			Name:          s.Name,
			QualifiedName: s.Name,
			Location: hybrid.Location{
				File:      path,
				Line:      s.Line,
				Column:    s.Column,
				EndLine:   s.EndLine,
				EndColumn: s.EndColumn,
			},
			Visibility: visibility,
		})
	}

	resolver := NewResolver(res.Language, res, uidByName)
	relationships := make([]hybrid.ExtractedRelationship, 0, len(res.Calls)+len(res.Imports))
	for _, call := range res.Calls {
		target := resolver.Resolve(call)
		relationships = append(relationships, hybrid.ExtractedRelationship{
			SourceUID:  fmt.Sprintf("%s:%d:%d", path, call.Line, call.Column),
			TargetUID:  target.UID,
			Type:       hybrid.RelCalls,
			Confidence: target.Confidence,
		})
	}
	for _, imp := range res.Imports {
		relationships = append(relationships, hybrid.ExtractedRelationship{
			SourceUID:  path,
			TargetUID:  "import:" + imp.Path,
			Type:       hybrid.RelImports,
			Confidence: 1.0,
		})
	}

	return hybrid.AnalysisResult{Symbols: symbols, Relationships: relationships}, nil
}
