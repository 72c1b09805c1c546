// Package workspace maps file paths to workspace roots and maintains
// an LRU of open per-workspace cache handles. Every cached entry in the
// daemon lives inside exactly one workspace's cache; files with
// identical names in different workspaces never share state.
package workspace

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/lspcore/mediator/internal/debug"
	"github.com/lspcore/mediator/internal/nodestore"
	"github.com/lspcore/mediator/internal/store"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("WORKSPACE")

// DefaultMarkers is the project-marker set used to find a workspace root
// when Options.Markers is empty.
var DefaultMarkers = []string{"Cargo.toml", "package.json", "go.mod", "pom.xml", "build.gradle", ".git"}

// Cache is a per-WorkspaceRoot handle: the backend plus its node store,
// partitioned by the backend's own named trees (nodes, metadata,
// file_index). Exclusively owned by the Router; borrowed by reference by
// other components (e.g. the universal cache).
type Cache struct {
	Root    string
	Backend store.Backend
	Nodes   *nodestore.Store
}

// Router resolves file paths to workspace roots and maintains an LRU of
// at most MaxOpenCaches open Cache handles.
type Router struct {
	mu               sync.Mutex
	order            *list.List // front = most recently used
	elems            map[string]*list.Element
	caches           map[string]*Cache
	refs             map[string]int
	maxOpenCaches    int
	maxLookupDepth   int
	baseCacheDir     string
	markers          []string
	disablePersist   bool
	nodeStoreOptions nodestore.Options
}

// Options configures a new Router.
type Options struct {
	MaxOpenCaches       int
	MaxParentLookupDepth int
	BaseCacheDir        string
	Markers             []string
	DisablePersistence  bool
	NodeStoreOptions    nodestore.Options
}

// New constructs a Router. Defaults: MaxOpenCaches 32, MaxParentLookupDepth 64.
func New(opts Options) *Router {
	if opts.MaxOpenCaches <= 0 {
		opts.MaxOpenCaches = 32
	}
	if opts.MaxParentLookupDepth <= 0 {
		opts.MaxParentLookupDepth = 64
	}
	if len(opts.Markers) == 0 {
		opts.Markers = DefaultMarkers
	}
	return &Router{
		order:            list.New(),
		elems:            make(map[string]*list.Element),
		caches:           make(map[string]*Cache),
		refs:             make(map[string]int),
		maxOpenCaches:    opts.MaxOpenCaches,
		maxLookupDepth:   opts.MaxParentLookupDepth,
		baseCacheDir:     opts.BaseCacheDir,
		markers:          opts.Markers,
		disablePersist:   opts.DisablePersistence,
		nodeStoreOptions: opts.NodeStoreOptions,
	}
}

// ResolveRoot walks ancestors of path (files or directories) bounded by
// MaxParentLookupDepth, returning the deepest ancestor directory
// containing any recognized project marker. If none is found within the
// bound, the file's parent directory is used as a synthetic workspace.
func (r *Router) ResolveRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	dir := abs
	if err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	} else if err != nil {
		dir = filepath.Dir(abs)
	}

	current := dir
	for depth := 0; depth < r.maxLookupDepth; depth++ {
		if r.hasMarker(current) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return dir, nil // synthetic workspace: the file's own parent directory
}

func (r *Router) hasMarker(dir string) bool {
	for _, m := range r.markers {
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}

// hashRoot derives a stable directory-safe identifier for root.
func hashRoot(root string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(root))
}

// Open returns the Cache for root, opening it on demand (creating
// base_cache_dir/<hash>/ when persistence is enabled) and evicting the
// least-recently-used handle if MaxOpenCaches is exceeded. The returned
// Cache must be released via Release when the caller is done with it.
func (r *Router) Open(root string) (*Cache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.elems[root]; ok {
		r.order.MoveToFront(elem)
		r.refs[root]++
		return r.caches[root], nil
	}

	c, err := r.openNewLocked(root)
	if err != nil {
		return nil, err
	}

	r.caches[root] = c
	r.elems[root] = r.order.PushFront(root)
	r.refs[root] = 1

	r.evictIfOverCapacityLocked()
	return c, nil
}

func (r *Router) openNewLocked(root string) (*Cache, error) {
	var backend store.Backend
	var err error
	if r.disablePersist || r.baseCacheDir == "" {
		backend = store.NewMemory()
	} else {
		dir := filepath.Join(r.baseCacheDir, hashRoot(root))
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, mkErr
		}
		backend, err = store.OpenBolt(filepath.Join(dir, "cache.db"))
		if err != nil {
			return nil, err
		}
	}

	nodes, err := nodestore.Open(backend, r.nodeStoreOptions)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	dlog.Printf("opened workspace cache for %s", root)
	return &Cache{Root: root, Backend: backend, Nodes: nodes}, nil
}

// evictIfOverCapacityLocked evicts least-recently-used caches with zero
// outstanding references until the open count is within bounds. Caches
// still referenced are skipped and retried on the next Release.
func (r *Router) evictIfOverCapacityLocked() {
	for r.order.Len() > r.maxOpenCaches {
		victim := r.order.Back()
		root := victim.Value.(string)
		if r.refs[root] > 0 {
			// Can't evict something in active use; move on to the next
			// oldest rather than spin forever on a busy handle.
			prev := victim.Prev()
			if prev == nil {
				return
			}
			root = prev.Value.(string)
			if r.refs[root] > 0 {
				return
			}
			victim = prev
		}
		r.closeAndRemoveLocked(root, victim)
	}
}

func (r *Router) closeAndRemoveLocked(root string, elem *list.Element) {
	if c, ok := r.caches[root]; ok {
		_ = c.Backend.Close()
	}
	r.order.Remove(elem)
	delete(r.elems, root)
	delete(r.caches, root)
	delete(r.refs, root)
	dlog.Printf("evicted workspace cache for %s", root)
}

// Release returns a reference obtained from Open. Callers must call
// Release exactly once per successful Open.
func (r *Router) Release(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs[root] > 0 {
		r.refs[root]--
	}
	r.evictIfOverCapacityLocked()
}

// ClearWorkspace drops path's workspace cache tree wholesale, returning
// the number of nodes it held.
func (r *Router) ClearWorkspace(path string) (int, error) {
	root, err := r.ResolveRoot(path)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	c, ok := r.caches[root]
	r.mu.Unlock()

	if !ok {
		var openErr error
		c, openErr = r.Open(root)
		if openErr != nil {
			return 0, openErr
		}
		defer r.Release(root)
	}

	stats, err := c.Nodes.Stats()
	if err != nil {
		return 0, err
	}
	if err := c.Nodes.Clear(); err != nil {
		return 0, err
	}
	return stats.TotalNodes, nil
}

// Close closes every open cache handle, regardless of outstanding
// reference counts. Intended for daemon shutdown.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for root, c := range r.caches {
		if err := c.Backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.caches, root)
	}
	r.order.Init()
	r.elems = make(map[string]*list.Element)
	r.refs = make(map[string]int)
	return firstErr
}

// OpenCount reports the number of currently open cache handles, for
// status reporting and tests.
func (r *Router) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// OpenRoots returns the roots of every currently open cache handle, in
// most-recently-used-first order.
func (r *Router) OpenRoots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, r.order.Len())
	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		roots = append(roots, elem.Value.(string))
	}
	return roots
}
