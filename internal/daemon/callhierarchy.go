package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	lspcoreerrors "github.com/lspcore/mediator/internal/errors"
	"github.com/lspcore/mediator/internal/fingerprint"
	"github.com/lspcore/mediator/internal/nodestore"
	"github.com/lspcore/mediator/internal/pipeline"
	"github.com/lspcore/mediator/internal/ucache"
)

// hierarchyParams is the fingerprinted portion of a call-hierarchy
// lookup: the same file at the same position with different digests
// (i.e. after an edit) gets a different cache key.
type hierarchyParams struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Digest string `json:"digest"`
}

// lspPosition/lspRange/lspItem mirror just enough of the LSP 3.17
// call-hierarchy shapes to decode rust-analyzer/gopls/typescript-
// language-server/pylsp responses; a daemon internal to this module has
// no need of a general-purpose LSP type library.
type lspPosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start lspPosition `json:"start"`
}

type lspItem struct {
	Name string   `json:"name"`
	Kind int      `json:"kind"`
	URI  string   `json:"uri"`
	Range lspRange `json:"range"`
}

type incomingCall struct {
	From lspItem `json:"from"`
}

type outgoingCall struct {
	To lspItem `json:"to"`
}

func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + abs
}

func callInfoFromItem(item lspItem) CallInfo {
	return CallInfo{
		Name:   item.Name,
		File:   item.URI,
		Line:   item.Range.Start.Line,
		Column: item.Range.Start.Character,
		Kind:   symbolKindName(item.Kind),
	}
}

// symbolKindName translates the LSP SymbolKind integer enum into a short
// tag; only the kinds call-hierarchy items realistically carry are named,
// everything else reports "symbol".
func symbolKindName(kind int) string {
	switch kind {
	case 12:
		return "function"
	case 6:
		return "method"
	case 9:
		return "constructor"
	default:
		return "symbol"
	}
}

func (d *Daemon) handleCallHierarchy(ctx context.Context, req CallHierarchyRequest) (CallHierarchyResponse, error) {
	if req.File == "" {
		return CallHierarchyResponse{}, &lspcoreerrors.Configuration{Message: "call_hierarchy: file is required"}
	}

	root := req.WorkspaceHint
	if root == "" {
		r, err := d.router.ResolveRoot(req.File)
		if err != nil {
			return CallHierarchyResponse{}, err
		}
		root = r
	}

	content, err := os.ReadFile(req.File)
	if err != nil {
		return CallHierarchyResponse{}, &lspcoreerrors.NotFound{Path: req.File}
	}

	params := hierarchyParams{Line: req.Line, Column: req.Column, Digest: fingerprint.Digest(fingerprint.XXHash, content)}
	var cached CallHierarchyResponse
	if hit, err := d.cache.Get(ucache.MethodCallHierarchy, req.File, params, &cached); err == nil && hit {
		cached.CacheHit = true
		return cached, nil
	}

	language := pipeline.DetectLanguage(req.File)
	if language == "" {
		return CallHierarchyResponse{}, &lspcoreerrors.UnsupportedLanguage{Language: "(unknown extension)"}
	}

	manager, err := d.managerFor(ctx, language, root)
	if err != nil {
		return CallHierarchyResponse{}, err
	}

	prepareParams := map[string]any{
		"textDocument": map[string]any{"uri": fileURI(req.File)},
		"position":     map[string]any{"line": req.Line, "character": req.Column},
	}
	raw, err := manager.Request(ctx, "textDocument/prepareCallHierarchy", prepareParams)
	if err != nil {
		return CallHierarchyResponse{}, err
	}
	var items []lspItem
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return CallHierarchyResponse{}, &lspcoreerrors.Io{Message: fmt.Sprintf("call_hierarchy: no symbol at %s:%d:%d", req.File, req.Line, req.Column)}
	}
	item := items[0]

	incomingRaw, err := manager.Request(ctx, "callHierarchy/incomingCalls", map[string]any{"item": item})
	if err != nil {
		return CallHierarchyResponse{}, err
	}
	outgoingRaw, err := manager.Request(ctx, "callHierarchy/outgoingCalls", map[string]any{"item": item})
	if err != nil {
		return CallHierarchyResponse{}, err
	}

	var incomingCalls []incomingCall
	var outgoingCalls []outgoingCall
	json.Unmarshal(incomingRaw, &incomingCalls)
	json.Unmarshal(outgoingRaw, &outgoingCalls)

	resp := CallHierarchyResponse{}
	for _, c := range incomingCalls {
		resp.Incoming = append(resp.Incoming, callInfoFromItem(c.From))
	}
	for _, c := range outgoingCalls {
		resp.Outgoing = append(resp.Outgoing, callInfoFromItem(c.To))
	}

	if err := d.cache.Set(ucache.MethodCallHierarchy, req.File, params, resp); err != nil {
		return CallHierarchyResponse{}, err
	}
	d.persistHierarchyNode(root, req.File, item.Name, content, language, resp)

	return resp, nil
}

// persistHierarchyNode writes the resolved call hierarchy into the
// nodestore, keyed by symbol name, file, and content digest, so the
// invalidation coordinator can find it through the file index on the
// next file change; that eviction removes every node stored for the
// file, not only this symbol's.
func (d *Daemon) persistHierarchyNode(root, file, symbolName string, content []byte, language string, resp CallHierarchyResponse) {
	wc, err := d.router.Open(root)
	if err != nil {
		return
	}
	defer d.router.Release(root)

	key := nodestore.NodeKey{
		SymbolName:    symbolName,
		FilePath:      file,
		ContentDigest: fingerprint.Digest(wc.Nodes.Algorithm(), content),
	}
	info := nodestore.CallHierarchyInfo{
		Incoming: wireCallInfosToNodeInfos(resp.Incoming),
		Outgoing: wireCallInfosToNodeInfos(resp.Outgoing),
	}
	_ = wc.Nodes.Insert(key, info, language)
}

func wireCallInfosToNodeInfos(in []CallInfo) []nodestore.CallInfo {
	out := make([]nodestore.CallInfo, len(in))
	for i, c := range in {
		out[i] = nodestore.CallInfo{Name: c.Name, File: c.File, Line: c.Line, Column: c.Column, Kind: c.Kind}
	}
	return out
}
