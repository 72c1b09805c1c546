package hybrid

import (
	"context"
	"fmt"
	"time"
)

// Analyzer runs Structural and Semantic over the same file (bounded by
// Config.SemanticTimeout on the semantic side) and merges their
// output.
type Analyzer struct {
	structural StructuralAnalyzer
	semantic   SemanticAnalyzer
	cfg        Config
}

// New constructs an Analyzer. semantic may be nil, in which case every
// call runs structural_only.
func New(structural StructuralAnalyzer, semantic SemanticAnalyzer, cfg Config) *Analyzer {
	return &Analyzer{structural: structural, semantic: semantic, cfg: cfg}
}

// semanticOutcome carries the result of the (possibly incremental)
// semantic run, including whether it was attempted at all.
type semanticOutcome struct {
	result   AnalysisResult
	err      error
	duration time.Duration
	ran      bool
}

// Analyze runs structural and semantic analysis over content and merges
// their output. Structural errors are fatal; semantic errors and
// timeouts downgrade the strategy instead of failing the call.
func (a *Analyzer) Analyze(ctx context.Context, path string, content []byte, language string) (AnalysisResult, error) {
	structStart := time.Now()
	structResult, err := a.structural.Analyze(ctx, path, content, language)
	structDuration := time.Since(structStart)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("structural analysis failed for %s: %w", path, err)
	}

	if a.semantic == nil {
		structResult.Metadata = AnalysisMetadata{
			Strategy:           StrategyStructuralOnly,
			StructuralDuration: structDuration,
		}
		return structResult, nil
	}

	sem := a.runSemantic(ctx, path, content, language)

	if sem.err != nil {
		warnings := []string{fmt.Sprintf("semantic analysis unavailable: %v", sem.err)}
		if !a.cfg.FallbackToStructural {
			structResult.Metadata = AnalysisMetadata{
				Strategy:           StrategyStructuralOnly,
				StructuralDuration: structDuration,
				SemanticDuration:   sem.duration,
				Warnings:           warnings,
			}
			return structResult, nil
		}
		structResult.Metadata = AnalysisMetadata{
			Strategy:           StrategyStructuralFallback,
			StructuralDuration: structDuration,
			SemanticDuration:   sem.duration,
			Warnings:           warnings,
		}
		return structResult, nil
	}

	merged := a.merge(structResult, sem.result)
	merged.Metadata.Strategy = StrategyHybrid
	merged.Metadata.StructuralDuration = structDuration
	merged.Metadata.SemanticDuration = sem.duration
	return merged, nil
}

// runSemantic tries the incremental path first when supported; an empty
// symbol result and an incremental error both escalate to a full run
// here.
func (a *Analyzer) runSemantic(ctx context.Context, path string, content []byte, language string) semanticOutcome {
	timeout := a.cfg.SemanticTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if a.semantic.SupportsIncremental() {
		res, err := a.semantic.AnalyzeIncremental(callCtx, path, content, language)
		if err == nil && len(res.Symbols) > 0 {
			return semanticOutcome{result: res, duration: time.Since(start), ran: true}
		}
		if err == nil {
			// Empty incremental result: escalate to a full run rather
			// than reporting an empty semantic set.
			res, err = a.semantic.Analyze(callCtx, path, content, language)
			return semanticOutcome{result: res, err: err, duration: time.Since(start), ran: true}
		}
		// Incremental errored: escalate to full hybrid.
		res, err = a.semantic.Analyze(callCtx, path, content, language)
		return semanticOutcome{result: res, err: err, duration: time.Since(start), ran: true}
	}

	res, err := a.semantic.Analyze(callCtx, path, content, language)
	return semanticOutcome{result: res, err: err, duration: time.Since(start), ran: true}
}

// merge combines structural and semantic results per the configured
// symbol-merge law and relationship-merge policy.
func (a *Analyzer) merge(structural, semantic AnalysisResult) AnalysisResult {
	var symbols []ExtractedSymbol
	switch a.cfg.SymbolStrategy {
	case SymbolMergeStructuralPreferred:
		symbols = MergeSymbolsStructuralPreferred(structural.Symbols, semantic.Symbols)
	default:
		symbols = MergeSymbolsLSPPreferred(structural.Symbols, semantic.Symbols)
	}

	var warnings []string
	var relationships []ExtractedRelationship

	if !a.cfg.MergeRelationships {
		source := semantic.Relationships
		if len(source) == 0 {
			source = structural.Relationships
		}
		relationships = filterByConfidence(source, a.cfg.MinRelationshipConfidence)
	} else if a.cfg.Merger != nil {
		merged, err := a.cfg.Merger.Merge(structural.Relationships, semantic.Relationships)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("sophisticated merger failed, using basic merge: %v", err))
			relationships = MergeRelationshipsBasic(structural.Relationships, semantic.Relationships, a.cfg.DeduplicateRelationships, a.cfg.MinRelationshipConfidence)
		} else if a.cfg.FilterBeforeMerge {
			// Filtering before the merger means filtering each input
			// set independently.
			filteredStruct := filterByConfidence(structural.Relationships, a.cfg.MinRelationshipConfidence)
			filteredSem := filterByConfidence(semantic.Relationships, a.cfg.MinRelationshipConfidence)
			merged, err = a.cfg.Merger.Merge(filteredStruct, filteredSem)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("sophisticated merger failed, using basic merge: %v", err))
				relationships = MergeRelationshipsBasic(filteredStruct, filteredSem, a.cfg.DeduplicateRelationships, 0)
			} else {
				relationships = merged
			}
		} else {
			relationships = filterByConfidence(merged, a.cfg.MinRelationshipConfidence)
		}
	} else {
		relationships = MergeRelationshipsBasic(structural.Relationships, semantic.Relationships, a.cfg.DeduplicateRelationships, a.cfg.MinRelationshipConfidence)
	}

	return AnalysisResult{
		Symbols:       symbols,
		Relationships: relationships,
		Metadata:      AnalysisMetadata{Warnings: warnings},
	}
}
