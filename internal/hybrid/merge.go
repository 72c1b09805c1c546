package hybrid

// MergeSymbolsLSPPreferred starts from the semantic set and adds
// structural symbols whose name is not already present. Tie-break
// between same-name symbols is stable by insertion order; locations are
// never used as identity. The merged size is |semantic| plus the count
// of structural names absent from the semantic set.
func MergeSymbolsLSPPreferred(structural, semantic []ExtractedSymbol) []ExtractedSymbol {
	present := make(map[string]bool, len(semantic))
	merged := make([]ExtractedSymbol, 0, len(semantic)+len(structural))
	for _, s := range semantic {
		present[s.Name] = true
		merged = append(merged, s)
	}
	for _, s := range structural {
		if !present[s.Name] {
			present[s.Name] = true
			merged = append(merged, s)
		}
	}
	return merged
}

// MergeSymbolsStructuralPreferred starts from the structural set; for
// each semantic symbol matching by name, it copies semantic metadata and
// prefers the semantic Signature/QualifiedName when present. Semantic-
// only symbols are appended at the end.
func MergeSymbolsStructuralPreferred(structural, semantic []ExtractedSymbol) []ExtractedSymbol {
	byName := make(map[string]int, len(semantic))
	for i, s := range semantic {
		if _, exists := byName[s.Name]; !exists {
			byName[s.Name] = i
		}
	}
	used := make(map[string]bool, len(semantic))
	merged := make([]ExtractedSymbol, 0, len(structural)+len(semantic))
	for _, s := range structural {
		if idx, ok := byName[s.Name]; ok {
			sem := semantic[idx]
			used[s.Name] = true
			merged = append(merged, mergeSymbolMetadata(s, sem))
			continue
		}
		merged = append(merged, s)
	}
	for _, s := range semantic {
		if !used[s.Name] {
			merged = append(merged, s)
		}
	}
	return merged
}

func mergeSymbolMetadata(structural, semantic ExtractedSymbol) ExtractedSymbol {
	out := structural
	if semantic.Signature != "" {
		out.Signature = semantic.Signature
	}
	if semantic.QualifiedName != "" {
		out.QualifiedName = semantic.QualifiedName
	}
	if semantic.Visibility != "" {
		out.Visibility = semantic.Visibility
	}
	for k, v := range semantic.Metadata {
		if out.Metadata == nil {
			out.Metadata = make(map[string]string, len(semantic.Metadata))
		}
		out.Metadata[k] = v
	}
	return out
}

// relKey identifies a relationship by (source, target, type) for dedup
// purposes.
type relKey struct {
	source string
	target string
	typ    RelationshipType
}

// MergeRelationshipsBasic computes the union of two relationship sets,
// optionally deduplicating by (source_uid, target_uid, relation_type)
// with the highest-confidence entry winning ties, and finally filters by
// minConfidence.
func MergeRelationshipsBasic(a, b []ExtractedRelationship, dedupe bool, minConfidence float64) []ExtractedRelationship {
	all := make([]ExtractedRelationship, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)

	if dedupe {
		best := make(map[relKey]ExtractedRelationship, len(all))
		order := make([]relKey, 0, len(all))
		for _, r := range all {
			k := relKey{r.SourceUID, r.TargetUID, r.Type}
			if cur, ok := best[k]; !ok {
				best[k] = r
				order = append(order, k)
			} else if r.Confidence > cur.Confidence {
				best[k] = r
			}
		}
		deduped := make([]ExtractedRelationship, 0, len(order))
		for _, k := range order {
			deduped = append(deduped, best[k])
		}
		all = deduped
	}

	return filterByConfidence(all, minConfidence)
}

func filterByConfidence(rels []ExtractedRelationship, minConfidence float64) []ExtractedRelationship {
	if minConfidence <= 0 {
		return rels
	}
	out := make([]ExtractedRelationship, 0, len(rels))
	for _, r := range rels {
		if r.Confidence >= minConfidence {
			out = append(out, r)
		}
	}
	return out
}
