package lspserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lspcore/mediator/internal/hybrid"
)

// SemanticAdapter adapts a Manager to the hybrid.SemanticAnalyzer
// contract (the counterpart to parser.StructuralAdapter), deriving
// symbols from textDocument/documentSymbol and Contains relationships
// from their nesting; it requests no call-hierarchy data.
type SemanticAdapter struct {
	manager *Manager
}

// NewSemanticAdapter wraps an already-spawned Manager.
func NewSemanticAdapter(m *Manager) *SemanticAdapter {
	return &SemanticAdapter{manager: m}
}

// SupportsIncremental is false: this adapter always requests the full
// document symbol set, there is no cheaper incremental LSP query for it.
func (a *SemanticAdapter) SupportsIncremental() bool { return false }

func (a *SemanticAdapter) AnalyzeIncremental(ctx context.Context, path string, content []byte, language string) (hybrid.AnalysisResult, error) {
	return a.Analyze(ctx, path, content, language)
}

type lspPosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start lspPosition `json:"start"`
	End   lspPosition `json:"end"`
}

// documentSymbol mirrors the hierarchical DocumentSymbol response shape.
// A flat SymbolInformation array has no separate path: it decodes into
// this shape with zero ranges, since its positions sit under location.
type documentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail"`
	Kind           int              `json:"kind"`
	Range          lspRange         `json:"range"`
	SelectionRange lspRange         `json:"selectionRange"`
	Children       []documentSymbol `json:"children"`
}

// Analyze requests textDocument/documentSymbol and flattens the result
// into ExtractedSymbol records. Relationship extraction is left to the
// caller driving explicit callHierarchy requests (hybrid merge only requires
// symbols plus whatever relationships the semantic side can cheaply
// offer; document symbols alone establish Contains via nesting).
func (a *SemanticAdapter) Analyze(ctx context.Context, path string, content []byte, language string) (hybrid.AnalysisResult, error) {
	uri := "file://" + path
	raw, err := a.manager.Request(ctx, "textDocument/documentSymbol", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
	if err != nil {
		return hybrid.AnalysisResult{}, fmt.Errorf("documentSymbol: %w", err)
	}

	var symbols []documentSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		// A response that is not a symbol array fails this call; the
		// hybrid analyzer treats it as a recoverable semantic-side error.
		return hybrid.AnalysisResult{}, fmt.Errorf("documentSymbol: unexpected shape: %w", err)
	}

	var extracted []hybrid.ExtractedSymbol
	var relationships []hybrid.ExtractedRelationship
	var walk func(sym documentSymbol, parentUID string)
	walk = func(sym documentSymbol, parentUID string) {
		uid := fmt.Sprintf("%s:%d:%d:%s", path, sym.SelectionRange.Start.Line, sym.SelectionRange.Start.Character, sym.Name)
		extracted = append(extracted, hybrid.ExtractedSymbol{
			UID:  uid,
			Kind: symbolKindString(sym.Kind),
			Name: sym.Name,
			Location: hybrid.Location{
				File:      path,
				Line:      sym.Range.Start.Line,
				Column:    sym.Range.Start.Character,
				EndLine:   sym.Range.End.Line,
				EndColumn: sym.Range.End.Character,
			},
			Signature: sym.Detail,
		})
		if parentUID != "" {
			relationships = append(relationships, hybrid.ExtractedRelationship{
				SourceUID:  parentUID,
				TargetUID:  uid,
				Type:       hybrid.RelContains,
				Confidence: 1.0,
			})
		}
		for _, child := range sym.Children {
			walk(child, uid)
		}
	}
	for _, s := range symbols {
		walk(s, "")
	}

	return hybrid.AnalysisResult{Symbols: extracted, Relationships: relationships}, nil
}

// symbolKindString maps the LSP SymbolKind integer enum to the lowercase
// tag ExtractedSymbol.Kind uses elsewhere.
func symbolKindString(kind int) string {
	names := map[int]string{
		1: "file", 2: "module", 3: "namespace", 4: "package", 5: "class",
		6: "method", 7: "property", 8: "field", 9: "constructor",
		10: "enum", 11: "interface", 12: "function", 13: "variable",
		14: "constant", 23: "struct",
	}
	if name, ok := names[kind]; ok {
		return name
	}
	return "unknown"
}
