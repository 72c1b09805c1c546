// Package nodestore is the persistent node store: a typed view over
// the storage backend specialized for call-hierarchy nodes, with a
// per-file reverse index, per-entry TTL, and version-gated migration.
//
// The layout is three trees (nodes, metadata, file_index), metadata
// flushed every flushEvery inserts (synchronously, by the Insert call
// that completes each batch, not on a background goroutine), and corrupt entries
// self-healed by removal rather than treated as a hard failure.
package nodestore

import (
	"fmt"
	"sync"
	"time"

	"github.com/lspcore/mediator/internal/debug"
	"github.com/lspcore/mediator/internal/fingerprint"
	"github.com/lspcore/mediator/internal/store"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("NODESTORE")

// CurrentVersion is the store's schema version. A stored CacheMetadata
// with a lower version triggers migration (or a full clear on failure); a
// higher version fails open and then clears, since the store cannot read
// data written by a newer schema.
const CurrentVersion = 1

// flushEvery controls how many inserts accumulate before metadata is
// written; small by design so that a crash loses at most this many
// inserts' worth of counter drift.
const flushEvery = 10

const metadataKey = "cache_metadata"

// ErrVersionDowngrade is returned when the stored schema version is newer
// than CurrentVersion.
var ErrVersionDowngrade = fmt.Errorf("nodestore: stored version is newer than this build")

// Store is the persistent node store.
type Store struct {
	backend store.Backend
	nodes   store.Tree
	meta    store.Tree
	fileIdx store.Tree

	ttl  time.Duration
	algo fingerprint.Algorithm

	mu           sync.Mutex // guards metadata counters between flushes
	insertsSince int64
	metadata     CacheMetadata

	// idxMu serializes file_index read-modify-write cycles; the backend
	// only makes individual tree operations atomic.
	idxMu sync.Mutex
}

// Options configures a new Store.
type Options struct {
	TTL       time.Duration
	Algorithm fingerprint.Algorithm
}

// Open opens a Store over backend, reconciling stored metadata against the
// nodes tree and performing version migration per the rules: equal
// version is a no-op, lower attempts migration (falling back to a full
// clear on any error), higher fails and then clears.
func Open(backend store.Backend, opts Options) (*Store, error) {
	nodes, err := backend.OpenTree("nodes")
	if err != nil {
		return nil, err
	}
	meta, err := backend.OpenTree("metadata")
	if err != nil {
		return nil, err
	}
	fileIdx, err := backend.OpenTree("file_index")
	if err != nil {
		return nil, err
	}

	s := &Store{backend: backend, nodes: nodes, meta: meta, fileIdx: fileIdx, ttl: opts.TTL, algo: opts.Algorithm}
	if s.algo == "" {
		s.algo = fingerprint.XXHash
	}

	if err := s.openAndMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) openAndMigrate() error {
	raw, err := s.meta.Get([]byte(metadataKey))
	if err == store.ErrKeyNotFound {
		s.metadata = CacheMetadata{Version: CurrentVersion}
		return s.writeMetadataLocked()
	}
	if err != nil {
		return err
	}
	stored, decodeErr := decodeMetadata(raw)
	if decodeErr != nil {
		dlog.Printf("metadata corrupt, clearing store: %v", decodeErr)
		return s.clearAllLocked(CurrentVersion)
	}

	switch {
	case stored.Version == CurrentVersion:
		s.metadata = stored
	case stored.Version < CurrentVersion:
		if err := s.migrate(stored.Version, CurrentVersion); err != nil {
			dlog.Printf("migration from v%d failed: %v, clearing store", stored.Version, err)
			return s.clearAllLocked(CurrentVersion)
		}
		s.metadata = stored
		s.metadata.Version = CurrentVersion
	default:
		dlog.Printf("stored version v%d newer than current v%d", stored.Version, CurrentVersion)
		if err := s.clearAllLocked(CurrentVersion); err != nil {
			return err
		}
		return ErrVersionDowngrade
	}

	// Reconcile total_nodes against the real bucket count; counter drift
	// between flushes is tolerated but corrected here.
	n, err := s.nodes.Len()
	if err == nil {
		s.metadata.TotalNodes = int64(n)
	}
	return nil
}

// migrate is a hook for schema upgrades between versions. There is
// currently only one schema version, so any call is itself an error
// pending a real migration path for a future version.
func (s *Store) migrate(from, to int) error {
	return fmt.Errorf("no migration path from v%d to v%d", from, to)
}

func (s *Store) clearAllLocked(version int) error {
	if _, err := s.nodes.DeleteRange(nil); err != nil {
		return err
	}
	if _, err := s.fileIdx.DeleteRange(nil); err != nil {
		return err
	}
	s.metadata = CacheMetadata{Version: version, LastCleanup: time.Now()}
	return s.writeMetadataLocked()
}

func (s *Store) writeMetadataLocked() error {
	buf, err := encodeMetadata(s.metadata)
	if err != nil {
		return err
	}
	return s.meta.Put([]byte(metadataKey), buf)
}

// Get looks up a node by key. A corrupt stored value is not a hard
// failure: it is removed and Get reports a miss.
func (s *Store) Get(key NodeKey) (*PersistedNode, error) {
	raw, err := s.nodes.Get(encodeKey(key))
	if err == store.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	node, decodeErr := decodeNode(raw)
	if decodeErr != nil {
		dlog.Printf("corrupt node at get, removing: %v", decodeErr)
		_, _ = s.removeRaw(key)
		return nil, nil
	}
	return &node, nil
}

// Insert stores payload under key, appending key to file_index's entry
// for key.FilePath, and flushes metadata every flushEvery inserts.
func (s *Store) Insert(key NodeKey, payload CallHierarchyInfo, language string) error {
	node := PersistedNode{Key: key, Payload: payload, CreatedAt: time.Now(), Language: language}
	buf, err := encodeNode(node)
	if err != nil {
		return err
	}
	encodedKey := encodeKey(key)
	if err := s.nodes.Put(encodedKey, buf); err != nil {
		return err
	}
	if err := s.appendFileIndex(key.FilePath, encodedKey); err != nil {
		return err
	}

	s.mu.Lock()
	s.metadata.TotalNodes++
	s.insertsSince++
	shouldFlush := s.insertsSince >= flushEvery
	if shouldFlush {
		s.insertsSince = 0
	}
	s.mu.Unlock()

	if shouldFlush {
		return s.Flush()
	}
	return nil
}

// Remove deletes the node at key, returning whether it was present, and
// removes its entry from file_index (deleting the file_index key entirely
// if it becomes empty).
func (s *Store) Remove(key NodeKey) (bool, error) {
	existed, err := s.removeRaw(key)
	if err != nil || !existed {
		return existed, err
	}
	s.mu.Lock()
	if s.metadata.TotalNodes > 0 {
		s.metadata.TotalNodes--
	}
	s.mu.Unlock()
	return true, nil
}

func (s *Store) removeRaw(key NodeKey) (bool, error) {
	encodedKey := encodeKey(key)
	_, err := s.nodes.Get(encodedKey)
	if err == store.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.nodes.Delete(encodedKey); err != nil {
		return false, err
	}
	if err := s.removeFromFileIndex(key.FilePath, encodedKey); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) appendFileIndex(filePath string, encodedKey []byte) error {
	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	existing, err := s.fileIdx.Get([]byte(filePath))
	var keys [][]byte
	if err == nil {
		keys, err = decodeFileIndexEntry(existing)
		if err != nil {
			dlog.Printf("corrupt file index entry for %s, resetting: %v", filePath, err)
			keys = nil
		}
	} else if err != store.ErrKeyNotFound {
		return err
	}
	for _, k := range keys {
		if string(k) == string(encodedKey) {
			return nil
		}
	}
	keys = append(keys, encodedKey)
	buf, err := encodeFileIndexEntry(keys)
	if err != nil {
		return err
	}
	return s.fileIdx.Put([]byte(filePath), buf)
}

func (s *Store) removeFromFileIndex(filePath string, encodedKey []byte) error {
	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	existing, err := s.fileIdx.Get([]byte(filePath))
	if err == store.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	keys, err := decodeFileIndexEntry(existing)
	if err != nil {
		return s.fileIdx.Delete([]byte(filePath))
	}
	remaining := keys[:0]
	for _, k := range keys {
		if string(k) != string(encodedKey) {
			remaining = append(remaining, k)
		}
	}
	if len(remaining) == 0 {
		return s.fileIdx.Delete([]byte(filePath))
	}
	buf, err := encodeFileIndexEntry(remaining)
	if err != nil {
		return err
	}
	return s.fileIdx.Put([]byte(filePath), buf)
}

// GetByFile returns every node currently stored whose key.FilePath equals
// filePath, using the file_index as the only supported lookup path.
// Corrupt node entries encountered along the way are removed.
func (s *Store) GetByFile(filePath string) ([]PersistedNode, error) {
	raw, err := s.fileIdx.Get([]byte(filePath))
	if err == store.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys, err := decodeFileIndexEntry(raw)
	if err != nil {
		return nil, nil
	}
	var out []PersistedNode
	for _, encodedKey := range keys {
		nodeBytes, err := s.nodes.Get(encodedKey)
		if err == store.ErrKeyNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		node, decodeErr := decodeNode(nodeBytes)
		if decodeErr != nil {
			dlog.Printf("corrupt node in get_by_file, removing: %v", decodeErr)
			_ = s.nodes.Delete(encodedKey)
			continue
		}
		out = append(out, node)
	}
	return out, nil
}

// CleanupExpired scans every node, deletes those older than the
// configured TTL (a zero TTL disables expiry and removes nothing), keeps
// file_index consistent, and removes any corrupt entries encountered
// along the way. It returns the number of nodes removed.
func (s *Store) CleanupExpired() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.ttl)
	var expired []NodeKey
	var corrupt [][]byte

	err := s.nodes.ForEach(func(k, v []byte) error {
		node, decodeErr := decodeNode(v)
		if decodeErr != nil {
			corrupt = append(corrupt, append([]byte(nil), k...))
			return nil
		}
		if node.CreatedAt.Before(cutoff) {
			expired = append(expired, node.Key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, raw := range corrupt {
		if err := s.nodes.Delete(raw); err != nil {
			return removed, err
		}
		removed++
	}
	for _, key := range expired {
		ok, err := s.Remove(key)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	s.mu.Lock()
	s.metadata.LastCleanup = time.Now()
	s.mu.Unlock()
	if err := s.Flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Clear removes every node and file_index entry and resets metadata.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearAllLocked(CurrentVersion)
}

// Compact is a hint to the backend that it may reclaim space. bbolt has
// no online compaction primitive exposed through this contract, so this
// is a best-effort flush.
func (s *Store) Compact() error {
	return s.Flush()
}

// Flush persists the in-memory metadata counters immediately, independent
// of the flushEvery cadence.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertsSince = 0
	return s.writeMetadataLocked()
}

// Stats reports the current metadata snapshot.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nFiles := 0
	_ = s.fileIdx.ForEach(func(k, v []byte) error {
		nFiles++
		return nil
	})
	return Stats{
		TotalNodes:  int(s.metadata.TotalNodes),
		TotalFiles:  nFiles,
		LastCleanup: s.metadata.LastCleanup,
		Version:     s.metadata.Version,
	}, nil
}

// IterNodes calls fn for every currently stored node. Iteration stops
// early if fn returns an error, which IterNodes then returns.
func (s *Store) IterNodes(fn func(PersistedNode) error) error {
	return s.nodes.ForEach(func(k, v []byte) error {
		node, err := decodeNode(v)
		if err != nil {
			return nil // corrupt entries are skipped, not fatal to iteration
		}
		return fn(node)
	})
}

// Algorithm reports the digest algorithm this store was configured with,
// for callers computing NodeKey.ContentDigest.
func (s *Store) Algorithm() fingerprint.Algorithm { return s.algo }

// totalNodesSnapshot is exposed for tests verifying drift/reconciliation
// behavior without exporting the full metadata struct.
func (s *Store) totalNodesSnapshot() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata.TotalNodes
}
