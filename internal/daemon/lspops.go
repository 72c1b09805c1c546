package daemon

import (
	"context"
	"encoding/json"

	lspcoreerrors "github.com/lspcore/mediator/internal/errors"
	"github.com/lspcore/mediator/internal/pipeline"
	"github.com/lspcore/mediator/internal/ucache"
)

// The position-based LSP operations (definition, references, hover,
// document symbols) share one flow: policy-gated cache lookup, then an
// LSP round trip through the file's server on a miss, then write-through.

// PositionRequest identifies a position-based query. Line and Column are
// 0-based, matching the LSP coordinate space.
type PositionRequest struct {
	File          string `json:"file"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	WorkspaceHint string `json:"workspace_hint,omitempty"`
}

// LocationResult is one resolved source location on the wire.
type LocationResult struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// LocationsResponse answers definition and references queries.
type LocationsResponse struct {
	Locations []LocationResult `json:"locations"`
	CacheHit  bool             `json:"cache_hit"`
}

// HoverResponse answers hover queries with the rendered contents.
type HoverResponse struct {
	Contents string `json:"contents"`
	CacheHit bool   `json:"cache_hit"`
}

// DocumentSymbolsRequest asks for a file's full symbol tree.
type DocumentSymbolsRequest struct {
	File          string `json:"file"`
	WorkspaceHint string `json:"workspace_hint,omitempty"`
}

// SymbolResult is one document symbol on the wire, flattened.
type SymbolResult struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// DocumentSymbolsResponse answers document-symbol queries.
type DocumentSymbolsResponse struct {
	Symbols  []SymbolResult `json:"symbols"`
	CacheHit bool           `json:"cache_hit"`
}

// positionParams is the fingerprinted portion of a position-based
// lookup.
type positionParams struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// resolveManager finds the workspace root (or uses the hint) and returns
// the server manager owning file.
func (d *Daemon) resolveManager(ctx context.Context, file, hint string) (root string, language string, m managerHandle, err error) {
	root = hint
	if root == "" {
		root, err = d.router.ResolveRoot(file)
		if err != nil {
			return "", "", nil, err
		}
	}
	language = pipeline.DetectLanguage(file)
	if language == "" {
		return "", "", nil, &lspcoreerrors.UnsupportedLanguage{Language: "(unknown extension)"}
	}
	mgr, err := d.managerFor(ctx, language, root)
	if err != nil {
		return "", "", nil, err
	}
	return root, language, mgr, nil
}

// managerHandle is the slice of the server manager these handlers need;
// narrowed to an interface so tests can stub the LSP round trip.
type managerHandle interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

func positionRequestParams(file string, line, column int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": fileURI(file)},
		"position":     map[string]any{"line": line, "character": column},
	}
}

// decodeLocations accepts the three shapes servers answer location
// queries with: a single Location, a Location array, or a LocationLink
// array.
func decodeLocations(raw json.RawMessage) []LocationResult {
	type lspLocation struct {
		URI   string   `json:"uri"`
		Range lspRange `json:"range"`
	}
	type lspLocationLink struct {
		TargetURI   string   `json:"targetUri"`
		TargetRange lspRange `json:"targetRange"`
	}

	var list []lspLocation
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0].URI != "" {
		out := make([]LocationResult, len(list))
		for i, l := range list {
			out[i] = LocationResult{File: l.URI, Line: l.Range.Start.Line, Column: l.Range.Start.Character}
		}
		return out
	}

	var links []lspLocationLink
	if err := json.Unmarshal(raw, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		out := make([]LocationResult, len(links))
		for i, l := range links {
			out[i] = LocationResult{File: l.TargetURI, Line: l.TargetRange.Start.Line, Column: l.TargetRange.Start.Character}
		}
		return out
	}

	var single lspLocation
	if err := json.Unmarshal(raw, &single); err == nil && single.URI != "" {
		return []LocationResult{{File: single.URI, Line: single.Range.Start.Line, Column: single.Range.Start.Character}}
	}
	return nil
}

func (d *Daemon) handleLocationsOp(ctx context.Context, req PositionRequest, method ucache.Method, lspMethod string) (LocationsResponse, error) {
	if req.File == "" {
		return LocationsResponse{}, &lspcoreerrors.Configuration{Message: lspMethod + ": file is required"}
	}

	params := positionParams{Line: req.Line, Column: req.Column}
	var cached LocationsResponse
	if hit, err := d.cache.Get(method, req.File, params, &cached); err == nil && hit {
		cached.CacheHit = true
		return cached, nil
	}

	_, _, mgr, err := d.resolveManager(ctx, req.File, req.WorkspaceHint)
	if err != nil {
		return LocationsResponse{}, err
	}

	raw, err := mgr.Request(ctx, lspMethod, positionRequestParams(req.File, req.Line, req.Column))
	if err != nil {
		return LocationsResponse{}, err
	}

	resp := LocationsResponse{Locations: decodeLocations(raw)}
	if err := d.cache.Set(method, req.File, params, resp); err != nil {
		return LocationsResponse{}, err
	}
	return resp, nil
}

func (d *Daemon) handleDefinition(ctx context.Context, req PositionRequest) (LocationsResponse, error) {
	return d.handleLocationsOp(ctx, req, ucache.MethodDefinition, "textDocument/definition")
}

func (d *Daemon) handleReferences(ctx context.Context, req PositionRequest) (LocationsResponse, error) {
	if req.File == "" {
		return LocationsResponse{}, &lspcoreerrors.Configuration{Message: "references: file is required"}
	}

	params := positionParams{Line: req.Line, Column: req.Column}
	var cached LocationsResponse
	if hit, err := d.cache.Get(ucache.MethodReferences, req.File, params, &cached); err == nil && hit {
		cached.CacheHit = true
		return cached, nil
	}

	_, _, mgr, err := d.resolveManager(ctx, req.File, req.WorkspaceHint)
	if err != nil {
		return LocationsResponse{}, err
	}

	// references takes an extra context field beyond the shared
	// position params
	lspParams := positionRequestParams(req.File, req.Line, req.Column)
	lspParams["context"] = map[string]any{"includeDeclaration": true}
	raw, err := mgr.Request(ctx, "textDocument/references", lspParams)
	if err != nil {
		return LocationsResponse{}, err
	}

	resp := LocationsResponse{Locations: decodeLocations(raw)}
	if err := d.cache.Set(ucache.MethodReferences, req.File, params, resp); err != nil {
		return LocationsResponse{}, err
	}
	return resp, nil
}

func (d *Daemon) handleHover(ctx context.Context, req PositionRequest) (HoverResponse, error) {
	if req.File == "" {
		return HoverResponse{}, &lspcoreerrors.Configuration{Message: "hover: file is required"}
	}

	params := positionParams{Line: req.Line, Column: req.Column}
	var cached HoverResponse
	if hit, err := d.cache.Get(ucache.MethodHover, req.File, params, &cached); err == nil && hit {
		cached.CacheHit = true
		return cached, nil
	}

	_, _, mgr, err := d.resolveManager(ctx, req.File, req.WorkspaceHint)
	if err != nil {
		return HoverResponse{}, err
	}

	raw, err := mgr.Request(ctx, "textDocument/hover", positionRequestParams(req.File, req.Line, req.Column))
	if err != nil {
		return HoverResponse{}, err
	}

	resp := HoverResponse{Contents: decodeHoverContents(raw)}
	if err := d.cache.Set(ucache.MethodHover, req.File, params, resp); err != nil {
		return HoverResponse{}, err
	}
	return resp, nil
}

// decodeHoverContents flattens the hover result's contents field, which
// servers deliver as MarkupContent, a bare string, or an array of
// MarkedString values.
func decodeHoverContents(raw json.RawMessage) string {
	var hover struct {
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil || len(hover.Contents) == 0 {
		return ""
	}

	var markup struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(hover.Contents, &markup); err == nil && markup.Value != "" {
		return markup.Value
	}

	var plain string
	if err := json.Unmarshal(hover.Contents, &plain); err == nil {
		return plain
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(hover.Contents, &parts); err == nil {
		out := ""
		for _, p := range parts {
			var s string
			if json.Unmarshal(p, &s) == nil {
				if out != "" {
					out += "\n"
				}
				out += s
				continue
			}
			var m struct {
				Value string `json:"value"`
			}
			if json.Unmarshal(p, &m) == nil && m.Value != "" {
				if out != "" {
					out += "\n"
				}
				out += m.Value
			}
		}
		return out
	}
	return ""
}

func (d *Daemon) handleDocumentSymbols(ctx context.Context, req DocumentSymbolsRequest) (DocumentSymbolsResponse, error) {
	if req.File == "" {
		return DocumentSymbolsResponse{}, &lspcoreerrors.Configuration{Message: "document_symbols: file is required"}
	}

	var cached DocumentSymbolsResponse
	if hit, err := d.cache.Get(ucache.MethodDocumentSymbols, req.File, nil, &cached); err == nil && hit {
		cached.CacheHit = true
		return cached, nil
	}

	_, _, mgr, err := d.resolveManager(ctx, req.File, req.WorkspaceHint)
	if err != nil {
		return DocumentSymbolsResponse{}, err
	}

	raw, err := mgr.Request(ctx, "textDocument/documentSymbol", map[string]any{
		"textDocument": map[string]any{"uri": fileURI(req.File)},
	})
	if err != nil {
		return DocumentSymbolsResponse{}, err
	}

	resp := DocumentSymbolsResponse{Symbols: flattenDocumentSymbols(raw)}
	if err := d.cache.Set(ucache.MethodDocumentSymbols, req.File, nil, resp); err != nil {
		return DocumentSymbolsResponse{}, err
	}
	return resp, nil
}

// flattenDocumentSymbols walks the hierarchical DocumentSymbol response
// depth-first into a flat list; a flat SymbolInformation response
// decodes through the same shape minus children.
func flattenDocumentSymbols(raw json.RawMessage) []SymbolResult {
	type docSymbol struct {
		Name     string `json:"name"`
		Kind     int    `json:"kind"`
		Range    lspRange `json:"range"`
		Location *struct {
			Range lspRange `json:"range"`
		} `json:"location"`
		Children []json.RawMessage `json:"children"`
	}
	var symbols []docSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil
	}

	var out []SymbolResult
	var walk func(s docSymbol)
	walk = func(s docSymbol) {
		r := s.Range
		if s.Location != nil {
			r = s.Location.Range
		}
		out = append(out, SymbolResult{
			Name:   s.Name,
			Kind:   symbolKindName(s.Kind),
			Line:   r.Start.Line,
			Column: r.Start.Character,
		})
		for _, c := range s.Children {
			var child docSymbol
			if json.Unmarshal(c, &child) == nil {
				walk(child)
			}
		}
	}
	for _, s := range symbols {
		walk(s)
	}
	return out
}
