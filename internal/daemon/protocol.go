// Package daemon is the IPC front-end: it accepts connections on a
// length-prefixed framed socket, decodes one request envelope per
// frame, and dispatches it against the cache, the language-server
// managers, the hybrid analyzer, and the invalidation coordinator.
// A cached payload is returned on a hit; a miss forwards to the
// language server, blocking on readiness.
package daemon

// Request kinds. These are the envelope.Kind values a client sends;
// each CLI sub-command sends one of them (search and extract both send
// KindExtract).
const (
	KindStatus          = "status"
	KindCacheStats      = "cache_stats"
	KindCallHierarchy   = "call_hierarchy"
	KindDefinition      = "definition"
	KindReferences      = "references"
	KindHover           = "hover"
	KindDocumentSymbols = "document_symbols"
	KindInvalidateFile  = "invalidate_file"
	KindClearWorkspace  = "clear_workspace"
	KindInitWorkspace   = "init_workspace"
	KindSwitchBranch    = "switch_branch"
	KindExtract         = "extract"
)

// StatusRequest has no fields; it reports aggregate daemon health.
type StatusRequest struct{}

// ServerStatus is one language server's reported state, mirroring
// readiness.Status plus the manager's own liveness counters.
type ServerStatus struct {
	Language        string `json:"language"`
	ServerType      string `json:"server_type"`
	IsInitialized   bool   `json:"is_initialized"`
	IsReady         bool   `json:"is_ready"`
	IsStalled       bool   `json:"is_stalled"`
	IsAlive         bool   `json:"is_alive"`
	RestartCount    int    `json:"restart_count"`
	QueuedRequests  int    `json:"queued_requests"`
	ElapsedMs       int64  `json:"elapsed_ms"`
	ExpectedMs      int64  `json:"expected_timeout_ms"`
}

// StatusResponse is the daemon-wide status snapshot.
type StatusResponse struct {
	Uptime  int64          `json:"uptime_seconds"`
	Servers []ServerStatus `json:"servers"`
}

// CacheStatsRequest has no fields.
type CacheStatsRequest struct{}

// CacheStatsResponse mirrors ucache.Stats, flattened for the wire.
type CacheStatsResponse struct {
	TotalEntries    int64             `json:"total_entries"`
	Hits            int64             `json:"hits"`
	Misses          int64             `json:"misses"`
	HitRate         float64           `json:"hit_rate"`
	ActiveWorkspace int               `json:"active_workspaces"`
	PerMethod       map[string]Method `json:"per_method"`
}

// Method is the per-method hit/miss breakdown on the wire.
type Method struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// CallHierarchyRequest identifies the symbol at file:line:column. Column
// is 0-based; WorkspaceHint, if set, skips the workspace ancestor walk.
type CallHierarchyRequest struct {
	File          string `json:"file"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	WorkspaceHint string `json:"workspace_hint,omitempty"`
}

// CallInfo mirrors nodestore.CallInfo for the wire.
type CallInfo struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Kind   string `json:"kind"`
}

// CallHierarchyResponse mirrors nodestore.CallHierarchyInfo plus a
// cache-hit flag so callers can tell a cached answer from a fresh one.
type CallHierarchyResponse struct {
	Incoming []CallInfo `json:"incoming"`
	Outgoing []CallInfo `json:"outgoing"`
	CacheHit bool       `json:"cache_hit"`
}

// InvalidateFileRequest names one file to evict from the caches.
type InvalidateFileRequest struct {
	File string `json:"file"`
}

// InvalidateResult mirrors invalidate.Result for the wire.
type InvalidateResult struct {
	FilesAffected  int   `json:"files_affected"`
	EntriesRemoved int   `json:"entries_removed"`
	DurationMicros int64 `json:"duration_micros"`
}

// ClearWorkspaceRequest names a path inside the workspace to clear.
type ClearWorkspaceRequest struct {
	Path string `json:"path"`
}

// ClearWorkspaceResponse reports the removed-entry count.
type ClearWorkspaceResponse struct {
	EntriesRemoved int `json:"entries_removed"`
}

// InitWorkspaceRequest opens (or warms) a workspace and spawns its
// configured language servers.
type InitWorkspaceRequest struct {
	Root      string   `json:"root"`
	Languages []string `json:"languages"`
}

// InitWorkspaceResponse reports which servers were started and which
// failed, so partial success is visible to the caller.
type InitWorkspaceResponse struct {
	Root    string   `json:"root"`
	Started []string `json:"started"`
	Failed  []string `json:"failed"`
}

// SwitchBranchRequest reports a branch change for workspaceRoot.
type SwitchBranchRequest struct {
	WorkspaceRoot string `json:"workspace_root"`
	Branch        string `json:"branch"`
	ClearCache    bool   `json:"clear_cache"`
}

// ExtractRequest runs the indexing pipeline over one file and returns
// its symbol table; used by `mediator extract`. When UseLSP is set,
// the daemon runs hybrid extraction (structural plus semantic) instead
// of the structural-only pipeline, matching the CLI's `--lsp` flag.
type ExtractRequest struct {
	Path   string `json:"path"`
	UseLSP bool   `json:"use_lsp,omitempty"`
}

// ExtractResponse mirrors pipeline.PipelineResult for the wire, plus the
// merge strategy hybrid analysis actually took when UseLSP was set.
type ExtractResponse struct {
	FilePath       string              `json:"file_path"`
	Language       string              `json:"language"`
	BytesProcessed int64               `json:"bytes_processed"`
	SymbolsFound   int                 `json:"symbols_found"`
	SymbolsByKind  map[string][]Symbol `json:"symbols_by_kind"`
	Strategy       string              `json:"strategy,omitempty"`
	Errors         []string            `json:"errors,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// Symbol is one pipeline.SymbolInfo on the wire.
type Symbol struct {
	Name   string `json:"name"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}
