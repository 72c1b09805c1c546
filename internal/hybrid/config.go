package hybrid

import "time"

// SymbolMergeStrategy selects which of the two symbol-merge rules the
// analyzer applies.
type SymbolMergeStrategy string

const (
	SymbolMergeLSPPreferred        SymbolMergeStrategy = "lsp_preferred"
	SymbolMergeStructuralPreferred SymbolMergeStrategy = "structural_preferred"
)

// Config mirrors the analyzer.* configuration keys.
type Config struct {
	// SemanticTimeout bounds how long the semantic analyzer is given
	// per call (analyzer.lsp_timeout_seconds).
	SemanticTimeout time.Duration

	// FallbackToStructural controls whether a semantic error/timeout
	// degrades to structural_fallback (true) or structural_only
	// (false, when merge isn't attempted at all).
	FallbackToStructural bool

	// MinRelationshipConfidence is the floor applied to the merged
	// relationship set (analyzer.min_relationship_confidence).
	MinRelationshipConfidence float64

	// MergeRelationships enables the sophisticated Merger; when false,
	// only one source's relationships are returned, filtered by
	// MinRelationshipConfidence (analyzer.merge_relationships).
	MergeRelationships bool

	// DeduplicateRelationships enables dedup in the basic-merge
	// fallback path (analyzer.deduplicate_relationships).
	DeduplicateRelationships bool

	// FilterBeforeMerge: the configured merger returns confidences
	// independent of the threshold, and whether to filter before or
	// after it runs is deliberately a configuration choice. Default
	// (false) applies the filter after the merger runs.
	FilterBeforeMerge bool

	// SymbolStrategy picks the symbol merge law.
	SymbolStrategy SymbolMergeStrategy

	// Merger is the optional sophisticated relationship merger. Nil
	// disables it even if MergeRelationships is true.
	Merger RelationshipMerger
}

// DefaultConfig returns the stock analyzer configuration: hybrid merge
// enabled, dedup on, threshold applied after the merger, LSP-preferred
// symbol resolution.
func DefaultConfig() Config {
	return Config{
		SemanticTimeout:           5 * time.Second,
		FallbackToStructural:      true,
		MinRelationshipConfidence: 0.5,
		MergeRelationships:        true,
		DeduplicateRelationships:  true,
		FilterBeforeMerge:         false,
		SymbolStrategy:            SymbolMergeLSPPreferred,
	}
}
