// Package invalidate reacts to file-change and branch-switch events,
// from the file watcher and from explicit daemon requests, by evicting
// affected cache entries and persisted nodes and optionally triggering
// re-indexing.
package invalidate

import (
	"sync"
	"time"

	"github.com/lspcore/mediator/internal/ucache"
	"github.com/lspcore/mediator/internal/workspace"
)

// Reindexer is the indexing collaborator invoked after a branch switch clears
// a workspace's cache; nil disables the re-index trigger.
type Reindexer interface {
	ReindexWorkspace(root string) error
}

// Result is the observability payload every invalidation operation
// returns.
type Result struct {
	FilesAffected  int
	EntriesRemoved int
	Duration       time.Duration
}

// Coordinator wires the universal cache and the workspace router's
// per-workspace node stores together behind the file-change and
// branch-switch operations.
type Coordinator struct {
	cache     *ucache.Cache
	router    *workspace.Router
	reindexer Reindexer

	mu         sync.Mutex
	lastBranch map[string]string // workspace root -> last-seen branch ref
}

// New constructs a Coordinator. reindexer may be nil.
func New(cache *ucache.Cache, router *workspace.Router, reindexer Reindexer) *Coordinator {
	return &Coordinator{
		cache:      cache,
		router:     router,
		reindexer:  reindexer,
		lastBranch: make(map[string]string),
	}
}

// InvalidateFile evicts every cache entry and persisted node for file
// within its resolved workspace. Calling this twice in a row for the
// same file is idempotent: the second call finds nothing left to
// remove and returns zero, never an error.
func (c *Coordinator) InvalidateFile(file string) (Result, error) {
	start := time.Now()

	cacheRemoved, err := c.cache.InvalidateFile(file)
	if err != nil {
		return Result{}, err
	}

	nodesRemoved, err := c.invalidateNodesForFile(file)
	if err != nil {
		return Result{Duration: time.Since(start)}, err
	}

	filesAffected := 0
	if cacheRemoved > 0 || nodesRemoved > 0 {
		filesAffected = 1
	}
	return Result{
		FilesAffected:  filesAffected,
		EntriesRemoved: cacheRemoved + nodesRemoved,
		Duration:       time.Since(start),
	}, nil
}

func (c *Coordinator) invalidateNodesForFile(file string) (int, error) {
	root, err := c.router.ResolveRoot(file)
	if err != nil {
		return 0, err
	}
	wc, err := c.router.Open(root)
	if err != nil {
		return 0, err
	}
	defer c.router.Release(root)

	nodes, err := wc.Nodes.GetByFile(file)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, n := range nodes {
		ok, err := wc.Nodes.Remove(n.Key)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// SwitchBranch handles a branch-switch event for workspaceRoot. It is
// idempotent: repeated identical (root, branch) pairs are no-ops. When
// branch differs from the last observed value, it optionally clears
// the workspace's cache and, if a Reindexer is configured, triggers
// incremental re-indexing.
func (c *Coordinator) SwitchBranch(workspaceRoot, branch string, clearCache bool) (Result, error) {
	start := time.Now()

	c.mu.Lock()
	last, seen := c.lastBranch[workspaceRoot]
	if seen && last == branch {
		c.mu.Unlock()
		return Result{Duration: time.Since(start)}, nil
	}
	c.lastBranch[workspaceRoot] = branch
	c.mu.Unlock()

	if !clearCache {
		return Result{Duration: time.Since(start)}, nil
	}

	removed, err := c.cache.ClearWorkspace(workspaceRoot)
	if err != nil {
		return Result{Duration: time.Since(start)}, err
	}

	if c.reindexer != nil {
		if err := c.reindexer.ReindexWorkspace(workspaceRoot); err != nil {
			return Result{FilesAffected: 1, EntriesRemoved: removed, Duration: time.Since(start)}, err
		}
	}

	return Result{FilesAffected: 1, EntriesRemoved: removed, Duration: time.Since(start)}, nil
}

// WatchEvent is the minimal shape a file watcher delivers; it mirrors
// fsnotify.Event's two fields so the Coordinator itself stays decoupled
// from the concrete watcher implementation.
type WatchEvent struct {
	Path string
	Op   string // "write", "remove", "rename", "create"
}

// Run consumes watch events until events is closed, invalidating the
// affected file on each one. A failed invalidation is reported to
// onResult and not retried; the loop goes on with the next event.
func (c *Coordinator) Run(events <-chan WatchEvent, onResult func(WatchEvent, Result, error)) {
	for ev := range events {
		res, err := c.InvalidateFile(ev.Path)
		if onResult != nil {
			onResult(ev, res, err)
		}
	}
}
