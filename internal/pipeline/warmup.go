package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lspcore/mediator/internal/debug"
	"github.com/lspcore/mediator/internal/ucache"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("PIPELINE")

// WarmSymbol mirrors the wire shape of a document symbol so warmed
// entries decode cleanly when served to a document_symbols request.
type WarmSymbol struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// warmPayload matches the daemon's document-symbols response shape:
// warmed entries are served as cache hits for that request kind.
type warmPayload struct {
	Symbols  []WarmSymbol `json:"symbols"`
	CacheHit bool         `json:"cache_hit"`
}

// WarmupResult reports one warmup pass.
type WarmupResult struct {
	FilesProcessed int
	FilesSkipped   int
	SymbolsCached  int
	Duration       time.Duration
}

// Warmer walks a workspace and pre-populates the universal cache with
// structural symbol tables, so the first document-symbols query against
// a freshly indexed (or freshly re-branched) workspace is already warm.
type Warmer struct {
	pipe  *Pipeline
	cache *ucache.Cache
	sem   *semaphore.Weighted
}

// NewWarmer constructs a Warmer; concurrency bounds how many files are
// processed at once (<=0 selects 4).
func NewWarmer(pipe *Pipeline, cache *ucache.Cache, concurrency int64) *Warmer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Warmer{pipe: pipe, cache: cache, sem: semaphore.NewWeighted(concurrency)}
}

// WarmupWorkspace processes every supported source file under root and
// caches its symbol table. Per-file failures are counted, not fatal.
func (w *Warmer) WarmupWorkspace(ctx context.Context, root string) (WarmupResult, error) {
	start := time.Now()
	var (
		mu     sync.Mutex
		result WarmupResult
		wg     sync.WaitGroup
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "target" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if DetectLanguage(path) == "" {
			return nil
		}
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.sem.Release(1)
			cached, skipped := w.warmFile(ctx, path)
			mu.Lock()
			if skipped {
				result.FilesSkipped++
			} else {
				result.FilesProcessed++
				result.SymbolsCached += cached
			}
			mu.Unlock()
		}()
		return nil
	})
	wg.Wait()

	result.Duration = time.Since(start)
	dlog.Printf("warmup of %s: %d files, %d symbols, %d skipped in %v",
		root, result.FilesProcessed, result.SymbolsCached, result.FilesSkipped, result.Duration)
	return result, err
}

// warmFile runs one file through the pipeline and caches its symbols.
func (w *Warmer) warmFile(ctx context.Context, path string) (cached int, skipped bool) {
	res, err := w.pipe.ProcessPath(ctx, path)
	if err != nil || len(res.Warnings) > 0 {
		return 0, true
	}

	payload := warmPayload{}
	for kind, symbols := range res.SymbolsByKind {
		for _, s := range symbols {
			payload.Symbols = append(payload.Symbols, WarmSymbol{Name: s.Name, Kind: kind, Line: s.Line, Column: s.Column})
		}
	}
	if err := w.cache.Set(ucache.MethodDocumentSymbols, path, nil, payload); err != nil {
		return 0, true
	}
	return len(payload.Symbols), false
}

// ReindexWorkspace satisfies the invalidation coordinator's Reindexer
// contract: a branch switch that cleared the workspace immediately
// re-warms it.
func (w *Warmer) ReindexWorkspace(root string) error {
	_, err := w.WarmupWorkspace(context.Background(), root)
	return err
}
