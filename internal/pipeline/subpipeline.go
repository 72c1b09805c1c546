package pipeline

import (
	"context"
	"strconv"

	"github.com/lspcore/mediator/internal/hybrid"
)

// SubPipeline is a language-dispatched symbol extractor. It wraps a
// structural analyzer with per-language feature flags and buckets the
// extracted symbols by kind.
type SubPipeline struct {
	Language   string
	Flags      FeatureFlags
	Structural hybrid.StructuralAnalyzer
}

// kindBucket maps a structural symbol kind to the feature-flag category
// that gates it and the bucket name it's grouped under in
// PipelineResult.SymbolsByKind.
func kindBucket(kind string) (bucket string, gate func(FeatureFlags) bool) {
	switch kind {
	case "function", "method":
		return "functions", func(f FeatureFlags) bool { return f.ExtractFunctions }
	case "class", "interface", "struct", "enum", "type":
		return "types", func(f FeatureFlags) bool { return f.ExtractTypes }
	case "variable", "constant", "field", "property":
		return "variables", func(f FeatureFlags) bool { return f.ExtractVariables }
	default:
		return "other", func(FeatureFlags) bool { return true }
	}
}

// process runs the structural analyzer and buckets its symbols by kind,
// dropping categories the sub-pipeline's flags disable.
func (sp SubPipeline) process(ctx context.Context, path string, content []byte) (PipelineResult, error) {
	result := hybrid.AnalysisResult{}
	var err error
	result, err = sp.Structural.Analyze(ctx, path, content, sp.Language)
	if err != nil {
		return PipelineResult{}, err
	}

	byKind := make(map[string][]SymbolInfo)
	total := 0
	for _, s := range result.Symbols {
		bucket, gate := kindBucket(s.Kind)
		if !gate(sp.Flags) {
			continue
		}
		byKind[bucket] = append(byKind[bucket], SymbolInfo{
			Name:   s.Name,
			Line:   s.Location.Line,
			Column: s.Location.Column,
		})
		total++
	}

	importCount := 0
	if sp.Flags.ExtractImports {
		for _, rel := range result.Relationships {
			if rel.Type == hybrid.RelImports {
				importCount++
			}
		}
	}

	metadata := map[string]string{}
	if importCount > 0 {
		metadata["import_count"] = strconv.Itoa(importCount)
	}

	return PipelineResult{
		FilePath:       path,
		Language:       sp.Language,
		BytesProcessed: int64(len(content)),
		SymbolsFound:   total,
		SymbolsByKind:  byKind,
		Metadata:       metadata,
	}, nil
}
