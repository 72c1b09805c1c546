// Package hybrid runs a structural (AST) analyzer and a semantic (LSP)
// analyzer over the same file and merges their symbols and
// relationships into one AnalysisResult before the daemon ever caches
// or serves it.
package hybrid

import "time"

// RelationshipType is the closed set of relationship kinds a symbol can
// participate in.
type RelationshipType string

const (
	RelCalls        RelationshipType = "calls"
	RelReferences   RelationshipType = "references"
	RelContains     RelationshipType = "contains"
	RelInheritsFrom RelationshipType = "inherits_from"
	RelImplements   RelationshipType = "implements"
	RelImports      RelationshipType = "imports"
	RelDependsOn    RelationshipType = "depends_on"
)

// Location pins a symbol to a line/column span in a file.
type Location struct {
	File      string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// ExtractedSymbol is one symbol surfaced by either analyzer, normalized
// to a common shape so the merge strategies never need to know which
// analyzer produced it.
type ExtractedSymbol struct {
	UID           string
	Kind          string
	Name          string
	QualifiedName string
	Signature     string
	Location      Location
	Visibility    string
	Tags          []string
	Metadata      map[string]string
}

// ExtractedRelationship links two symbols by UID. Confidence reflects
// how the target was resolved: definite for same-file definitions,
// graded downward for import-qualified, receiver-qualified, and
// unresolved targets.
type ExtractedRelationship struct {
	SourceUID  string
	TargetUID  string
	Type       RelationshipType
	Confidence float64
}

// Strategy records which code path AnalysisMetadata.Strategy took.
type Strategy string

const (
	StrategyHybrid             Strategy = "hybrid"
	StrategyStructuralFallback Strategy = "structural_fallback"
	StrategyStructuralOnly     Strategy = "structural_only"
	StrategySemanticOnly       Strategy = "semantic_only"
)

// AnalysisMetadata records what the run actually did, for callers that
// want to understand a degraded result rather than just consume it.
type AnalysisMetadata struct {
	Strategy           Strategy
	StructuralDuration time.Duration
	SemanticDuration   time.Duration
	Warnings           []string
}

// AnalysisResult is the merged output of one hybrid analysis call, or
// the raw output of a single analyzer when used standalone.
type AnalysisResult struct {
	Symbols       []ExtractedSymbol
	Relationships []ExtractedRelationship
	Metadata      AnalysisMetadata
}
