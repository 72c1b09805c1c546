package daemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lspcore/mediator/internal/codec"
	lspcoreerrors "github.com/lspcore/mediator/internal/errors"
	"github.com/lspcore/mediator/internal/lspserver"
	"github.com/lspcore/mediator/internal/pipeline"
	"github.com/lspcore/mediator/internal/readiness"
)

// dispatch decodes env's payload against its Kind and runs the matching
// handler. The returned value is marshaled as the response envelope's
// "ok" field by the caller.
func (d *Daemon) dispatch(ctx context.Context, env codec.Envelope) (any, error) {
	switch env.Kind {
	case KindStatus:
		return d.handleStatus(ctx)
	case KindCacheStats:
		return d.handleCacheStats(ctx)
	case KindCallHierarchy:
		var req CallHierarchyRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed call_hierarchy request: " + err.Error()}
		}
		return d.handleCallHierarchy(ctx, req)
	case KindDefinition:
		var req PositionRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed definition request: " + err.Error()}
		}
		return d.handleDefinition(ctx, req)
	case KindReferences:
		var req PositionRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed references request: " + err.Error()}
		}
		return d.handleReferences(ctx, req)
	case KindHover:
		var req PositionRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed hover request: " + err.Error()}
		}
		return d.handleHover(ctx, req)
	case KindDocumentSymbols:
		var req DocumentSymbolsRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed document_symbols request: " + err.Error()}
		}
		return d.handleDocumentSymbols(ctx, req)
	case KindInvalidateFile:
		var req InvalidateFileRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed invalidate_file request: " + err.Error()}
		}
		return d.handleInvalidateFile(req)
	case KindClearWorkspace:
		var req ClearWorkspaceRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed clear_workspace request: " + err.Error()}
		}
		return d.handleClearWorkspace(req)
	case KindInitWorkspace:
		var req InitWorkspaceRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed init_workspace request: " + err.Error()}
		}
		return d.handleInitWorkspace(ctx, req)
	case KindSwitchBranch:
		var req SwitchBranchRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed switch_branch request: " + err.Error()}
		}
		return d.handleSwitchBranch(req)
	case KindExtract:
		var req ExtractRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, &lspcoreerrors.Configuration{Message: "malformed extract request: " + err.Error()}
		}
		return d.handleExtract(ctx, req)
	default:
		return nil, &lspcoreerrors.UnsupportedMethod{Method: env.Kind}
	}
}

func (d *Daemon) handleStatus(ctx context.Context) (StatusResponse, error) {
	type entry struct {
		key string
		m   *lspserver.Manager
	}
	d.serversMu.Lock()
	entries := make([]entry, 0, len(d.servers))
	for key, m := range d.servers {
		entries = append(entries, entry{key: key, m: m})
	}
	d.serversMu.Unlock()

	resp := StatusResponse{Uptime: int64(time.Since(d.started).Seconds())}
	for _, e := range entries {
		st := e.m.Tracker().Status()
		resp.Servers = append(resp.Servers, ServerStatus{
			Language:       managerLanguage(e.key),
			ServerType:     serverTypeName(st.ServerType),
			IsInitialized:  st.IsInitialized,
			IsReady:        st.IsReady,
			IsStalled:      st.IsStalled(),
			IsAlive:        e.m.IsAlive(),
			RestartCount:   e.m.RestartCount(),
			QueuedRequests: st.QueuedRequests,
			ElapsedMs:      st.Elapsed.Milliseconds(),
			ExpectedMs:     st.ExpectedTimeout.Milliseconds(),
		})
	}
	return resp, nil
}

// managerLanguage recovers the language tag from a "language|root" key.
func managerLanguage(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}
	return key
}

func serverTypeName(st readiness.ServerType) string {
	switch st {
	case readiness.RustAnalyzer:
		return "rust-analyzer"
	case readiness.Gopls:
		return "gopls"
	case readiness.TypeScript:
		return "typescript"
	case readiness.Python:
		return "python"
	default:
		return "unknown"
	}
}

func (d *Daemon) handleCacheStats(ctx context.Context) (CacheStatsResponse, error) {
	stats := d.cache.GetStats()
	resp := CacheStatsResponse{
		TotalEntries:    stats.TotalEntries,
		Hits:            stats.Hits,
		Misses:          stats.Misses,
		HitRate:         stats.HitRate(),
		ActiveWorkspace: stats.ActiveWorkspace,
		PerMethod:       make(map[string]Method, len(stats.PerMethod)),
	}
	for method, ms := range stats.PerMethod {
		resp.PerMethod[string(method)] = Method{Hits: ms.Hits, Misses: ms.Misses}
	}
	return resp, nil
}

func (d *Daemon) handleInvalidateFile(req InvalidateFileRequest) (InvalidateResult, error) {
	if req.File == "" {
		return InvalidateResult{}, &lspcoreerrors.Configuration{Message: "invalidate_file: file is required"}
	}
	res, err := d.coordinator.InvalidateFile(req.File)
	if err != nil {
		return InvalidateResult{}, err
	}
	return InvalidateResult{
		FilesAffected:  res.FilesAffected,
		EntriesRemoved: res.EntriesRemoved,
		DurationMicros: res.Duration.Microseconds(),
	}, nil
}

func (d *Daemon) handleClearWorkspace(req ClearWorkspaceRequest) (ClearWorkspaceResponse, error) {
	if req.Path == "" {
		return ClearWorkspaceResponse{}, &lspcoreerrors.Configuration{Message: "clear_workspace: path is required"}
	}
	n, err := d.cache.ClearWorkspace(req.Path)
	if err != nil {
		return ClearWorkspaceResponse{}, err
	}
	return ClearWorkspaceResponse{EntriesRemoved: n}, nil
}

func (d *Daemon) handleSwitchBranch(req SwitchBranchRequest) (InvalidateResult, error) {
	if req.WorkspaceRoot == "" {
		return InvalidateResult{}, &lspcoreerrors.Configuration{Message: "switch_branch: workspace_root is required"}
	}
	res, err := d.coordinator.SwitchBranch(req.WorkspaceRoot, req.Branch, req.ClearCache)
	if err != nil {
		return InvalidateResult{}, err
	}
	return InvalidateResult{
		FilesAffected:  res.FilesAffected,
		EntriesRemoved: res.EntriesRemoved,
		DurationMicros: res.Duration.Microseconds(),
	}, nil
}

func (d *Daemon) handleInitWorkspace(ctx context.Context, req InitWorkspaceRequest) (InitWorkspaceResponse, error) {
	if req.Root == "" {
		return InitWorkspaceResponse{}, &lspcoreerrors.Configuration{Message: "init_workspace: root is required"}
	}
	resp := InitWorkspaceResponse{Root: req.Root}
	for _, lang := range req.Languages {
		if _, err := d.managerFor(ctx, lang, req.Root); err != nil {
			resp.Failed = append(resp.Failed, lang)
			continue
		}
		resp.Started = append(resp.Started, lang)
	}
	return resp, nil
}

func (d *Daemon) handleExtract(ctx context.Context, req ExtractRequest) (ExtractResponse, error) {
	if req.Path == "" {
		return ExtractResponse{}, &lspcoreerrors.Configuration{Message: "extract: path is required"}
	}
	if req.UseLSP && d.structural != nil {
		resp, err := d.extractWithHybrid(ctx, req.Path)
		if err == nil {
			return resp, nil
		}
		// Fall through to the structural-only path on any hybrid-side
		// failure; a degraded extract beats a failed one.
	}
	result, err := d.pipeline.ProcessPath(ctx, req.Path)
	if err != nil {
		return ExtractResponse{}, err
	}
	return extractResponseFromResult(result), nil
}

func extractResponseFromResult(result pipeline.PipelineResult) ExtractResponse {
	resp := ExtractResponse{
		FilePath:       result.FilePath,
		Language:       result.Language,
		BytesProcessed: result.BytesProcessed,
		SymbolsFound:   result.SymbolsFound,
		Errors:         result.Errors,
		Warnings:       result.Warnings,
	}
	if len(result.SymbolsByKind) > 0 {
		resp.SymbolsByKind = make(map[string][]Symbol, len(result.SymbolsByKind))
		for kind, syms := range result.SymbolsByKind {
			out := make([]Symbol, len(syms))
			for i, s := range syms {
				out[i] = Symbol{Name: s.Name, Line: s.Line, Column: s.Column}
			}
			resp.SymbolsByKind[kind] = out
		}
	}
	return resp
}
