// Package ucache is the universal cache: a method-keyed, scope-aware
// cache with a policy registry, layered over the workspace router and
// each workspace's storage backend. Per-method policies decide whether
// a response is cached at all, under which scope, and for how long.
package ucache

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lspcore/mediator/internal/debug"
	"github.com/lspcore/mediator/internal/fingerprint"
	"github.com/lspcore/mediator/internal/store"
	"github.com/lspcore/mediator/internal/workspace"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("UCACHE")

const entriesTree = "ucache_entries"
const fileIndexTree = "ucache_file_index"

// Stats is the snapshot returned by GetStats.
type Stats struct {
	TotalEntries    int64
	Hits            int64
	Misses          int64
	ActiveWorkspace int
	PerMethod       map[Method]MethodStats
}

// HitRate returns hits / (hits+misses) as a fraction in [0,1], or 0 if no
// lookups have occurred yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MethodStats is the per-method counter sub-table.
type MethodStats struct {
	Hits   int64
	Misses int64
}

type methodCounters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// Cache is the universal cache.
type Cache struct {
	router   *workspace.Router
	registry *Registry
	algo     fingerprint.Algorithm

	mu        sync.Mutex
	perMethod map[Method]*methodCounters
	hits      atomic.Int64
	misses    atomic.Int64

	// idxMu serializes file-index read-modify-write cycles; concurrent
	// Sets for the same key remain last-writer-wins on the entry itself.
	idxMu sync.Mutex
}

// New constructs a Cache over router, enforcing policies per registry.
func New(router *workspace.Router, registry *Registry, algo fingerprint.Algorithm) *Cache {
	if algo == "" {
		algo = fingerprint.XXHash
	}
	return &Cache{
		router:    router,
		registry:  registry,
		algo:      algo,
		perMethod: make(map[Method]*methodCounters),
	}
}

func (c *Cache) counters(m Method) *methodCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.perMethod[m]
	if !ok {
		mc = &methodCounters{}
		c.perMethod[m] = mc
	}
	return mc
}

// entryRecord is the stored envelope: payload bytes plus insertion time,
// used to apply the policy's TTL lazily on read.
type entryRecord struct {
	Payload    []byte
	InsertedAt time.Time
}

// buildKey constructs the deterministic cache key: method_tag |
// workspace_id | scope_discriminator | file_or_workspace |
// fingerprint(params). Returns an error if params fail to fingerprint
// deterministically — such params are treated as non-cacheable.
func (c *Cache) buildKey(method Method, policy Policy, workspaceID, file string, params any) (string, error) {
	fp, err := fingerprint.Params(c.algo, params)
	if err != nil {
		return "", err
	}
	fileOrWorkspace := file
	if policy.Scope == ScopeWorkspace {
		fileOrWorkspace = workspaceID
	} else if policy.Scope == ScopeGlobal {
		fileOrWorkspace = ""
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", method, workspaceID, policy.Scope.discriminator(), fileOrWorkspace, fp), nil
}

// Get looks up method/file/params and, on a hit, unmarshals the stored
// payload into dst (a pointer). Returns false on a miss, a disabled
// policy, or an expired entry. file is always used to resolve the owning
// workspace, even for workspace- or global-scoped methods, where it is
// then excluded from the key itself.
func (c *Cache) Get(method Method, file string, params, dst any) (bool, error) {
	policy, ok := c.registry.Get(method)
	if !ok || !policy.Enabled {
		return false, nil
	}

	root, err := c.router.ResolveRoot(file)
	if err != nil {
		return false, err
	}
	wc, err := c.router.Open(root)
	if err != nil {
		return false, err
	}
	defer c.router.Release(root)

	tree, err := wc.Backend.OpenTree(entriesTree)
	if err != nil {
		return false, err
	}

	key, err := c.buildKey(method, policy, root, file, params)
	if err != nil {
		return false, nil // non-deterministic params fail closed
	}

	raw, err := tree.Get([]byte(key))
	mc := c.counters(method)
	if err == store.ErrKeyNotFound {
		c.misses.Add(1)
		mc.misses.Add(1)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var rec entryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		dlog.Printf("corrupt entry for key %s, removing: %v", key, err)
		_ = tree.Delete([]byte(key))
		c.misses.Add(1)
		mc.misses.Add(1)
		return false, nil
	}
	if policy.TTL > 0 && time.Since(rec.InsertedAt) > policy.TTL {
		_ = tree.Delete([]byte(key))
		c.misses.Add(1)
		mc.misses.Add(1)
		return false, nil
	}

	if err := json.Unmarshal(rec.Payload, dst); err != nil {
		return false, err
	}
	c.hits.Add(1)
	mc.hits.Add(1)
	return true, nil
}

// Set writes value under method/file/params, updating the file index for
// the owning file. A disabled policy makes Set a no-op.
func (c *Cache) Set(method Method, file string, params, value any) error {
	policy, ok := c.registry.Get(method)
	if !ok || !policy.Enabled {
		return nil
	}

	root, err := c.router.ResolveRoot(file)
	if err != nil {
		return err
	}
	wc, err := c.router.Open(root)
	if err != nil {
		return err
	}
	defer c.router.Release(root)

	tree, err := wc.Backend.OpenTree(entriesTree)
	if err != nil {
		return err
	}
	fileIdx, err := wc.Backend.OpenTree(fileIndexTree)
	if err != nil {
		return err
	}

	key, err := c.buildKey(method, policy, root, file, params)
	if err != nil {
		return nil // non-deterministic params: fail closed, set is a no-op
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	rec := entryRecord{Payload: payload, InsertedAt: time.Now()}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := tree.Put([]byte(key), buf); err != nil {
		return err
	}

	c.idxMu.Lock()
	defer c.idxMu.Unlock()
	return appendFileIndexKey(fileIdx, file, key)
}

func appendFileIndexKey(fileIdx store.Tree, file, key string) error {
	existing, err := fileIdx.Get([]byte(file))
	var keys []string
	if err == nil {
		_ = json.Unmarshal(existing, &keys)
	} else if err != store.ErrKeyNotFound {
		return err
	}
	for _, k := range keys {
		if k == key {
			return nil
		}
	}
	keys = append(keys, key)
	buf, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return fileIdx.Put([]byte(file), buf)
}

// InvalidateFile removes every cache entry belonging to file within its
// workspace, using the file index, and returns the count removed.
func (c *Cache) InvalidateFile(file string) (int, error) {
	root, err := c.router.ResolveRoot(file)
	if err != nil {
		return 0, err
	}
	wc, err := c.router.Open(root)
	if err != nil {
		return 0, err
	}
	defer c.router.Release(root)

	tree, err := wc.Backend.OpenTree(entriesTree)
	if err != nil {
		return 0, err
	}
	fileIdx, err := wc.Backend.OpenTree(fileIndexTree)
	if err != nil {
		return 0, err
	}

	raw, err := fileIdx.Get([]byte(file))
	if err == store.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		_ = fileIdx.Delete([]byte(file))
		return 0, nil
	}

	removed := 0
	for _, k := range keys {
		if err := tree.Delete([]byte(k)); err != nil {
			return removed, err
		}
		removed++
	}
	if err := fileIdx.Delete([]byte(file)); err != nil {
		return removed, err
	}
	return removed, nil
}

// ClearWorkspace drops the workspace's entire cache tree (entries and
// file index) and returns the count of removed entries.
func (c *Cache) ClearWorkspace(path string) (int, error) {
	root, err := c.router.ResolveRoot(path)
	if err != nil {
		return 0, err
	}
	wc, err := c.router.Open(root)
	if err != nil {
		return 0, err
	}
	defer c.router.Release(root)

	tree, err := wc.Backend.OpenTree(entriesTree)
	if err != nil {
		return 0, err
	}
	fileIdx, err := wc.Backend.OpenTree(fileIndexTree)
	if err != nil {
		return 0, err
	}

	n, err := tree.Len()
	if err != nil {
		return 0, err
	}
	if _, err := tree.DeleteRange(nil); err != nil {
		return 0, err
	}
	if _, err := fileIdx.DeleteRange(nil); err != nil {
		return 0, err
	}
	return n, nil
}

// GetStats reports global and per-method counters. Hit rate is computed
// on demand from the atomic counters; it is not coordinated across
// counters; the individual counters are atomic but not coordinated
// with each other.
// Entry totals cover the currently open workspace caches; entries in
// LRU-evicted caches are durable but not counted until reopened.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	perMethod := make(map[Method]MethodStats, len(c.perMethod))
	for m, mc := range c.perMethod {
		perMethod[m] = MethodStats{Hits: mc.hits.Load(), Misses: mc.misses.Load()}
	}
	c.mu.Unlock()

	roots := c.router.OpenRoots()
	var total int64
	for _, root := range roots {
		wc, err := c.router.Open(root)
		if err != nil {
			continue
		}
		if tree, terr := wc.Backend.OpenTree(entriesTree); terr == nil {
			if n, lerr := tree.Len(); lerr == nil {
				total += int64(n)
			}
		}
		c.router.Release(root)
	}

	return Stats{
		TotalEntries:    total,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		ActiveWorkspace: len(roots),
		PerMethod:       perMethod,
	}
}
