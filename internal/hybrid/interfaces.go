package hybrid

import "context"

// StructuralAnalyzer derives symbols and relationships purely from
// parsed source code. An error here is fatal and propagates to the
// caller unchanged; there is no degraded mode without a parse.
type StructuralAnalyzer interface {
	Analyze(ctx context.Context, path string, content []byte, language string) (AnalysisResult, error)
}

// SemanticAnalyzer derives symbols and relationships by querying an LSP
// server. Errors and timeouts here are recoverable: the hybrid analyzer
// downgrades to a structural-only strategy rather than failing.
type SemanticAnalyzer interface {
	Analyze(ctx context.Context, path string, content []byte, language string) (AnalysisResult, error)
	SupportsIncremental() bool
	AnalyzeIncremental(ctx context.Context, path string, content []byte, language string) (AnalysisResult, error)
}

// RelationshipMerger is the policy-configurable merger behind the
// merge_relationships option. Implementations may apply whatever
// resolution logic they like; if Merge errors, the analyzer falls back
// to the basic union-plus-dedup merge and records a warning.
type RelationshipMerger interface {
	Merge(structural, semantic []ExtractedRelationship) ([]ExtractedRelationship, error)
}
