package nodestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lspcore/mediator/internal/store"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]store.Backend {
	t.Helper()
	dir := t.TempDir()
	bolt, err := store.OpenBolt(filepath.Join(dir, "nodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]store.Backend{
		"bbolt":  bolt,
		"memory": store.NewMemory(),
	}
}

func TestBasicOperations(t *testing.T) {
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := Open(backend, Options{TTL: time.Hour})
			require.NoError(t, err)

			key := NodeKey{SymbolName: "Calculate", FilePath: "calculator.go", ContentDigest: "abc123"}
			payload := CallHierarchyInfo{
				Incoming: []CallInfo{{Name: "main", File: "main.go", Line: 5, Column: 1, Kind: "call"}},
				Outgoing: []CallInfo{{Name: "Add", File: "calculator.go", Line: 20, Column: 1, Kind: "call"}},
			}

			got, err := s.Get(key)
			require.NoError(t, err)
			require.Nil(t, got)

			require.NoError(t, s.Insert(key, payload, "go"))

			got, err = s.Get(key)
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, payload, got.Payload)

			ok, err := s.Remove(key)
			require.NoError(t, err)
			require.True(t, ok)

			got, err = s.Get(key)
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestFileIndexConsistency(t *testing.T) {
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := Open(backend, Options{})
			require.NoError(t, err)

			k1 := NodeKey{SymbolName: "A", FilePath: "f.go", ContentDigest: "d1"}
			k2 := NodeKey{SymbolName: "B", FilePath: "f.go", ContentDigest: "d1"}
			k3 := NodeKey{SymbolName: "C", FilePath: "other.go", ContentDigest: "d2"}

			require.NoError(t, s.Insert(k1, CallHierarchyInfo{}, "go"))
			require.NoError(t, s.Insert(k2, CallHierarchyInfo{}, "go"))
			require.NoError(t, s.Insert(k3, CallHierarchyInfo{}, "go"))

			nodes, err := s.GetByFile("f.go")
			require.NoError(t, err)
			require.Len(t, nodes, 2)

			_, err = s.Remove(k1)
			require.NoError(t, err)

			nodes, err = s.GetByFile("f.go")
			require.NoError(t, err)
			require.Len(t, nodes, 1)
			require.Equal(t, "B", nodes[0].Key.SymbolName)

			_, err = s.Remove(k2)
			require.NoError(t, err)
			nodes, err = s.GetByFile("f.go")
			require.NoError(t, err)
			require.Empty(t, nodes)
		})
	}
}

func TestCleanupExpired(t *testing.T) {
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := Open(backend, Options{TTL: time.Millisecond})
			require.NoError(t, err)

			key := NodeKey{SymbolName: "A", FilePath: "f.go", ContentDigest: "d1"}
			require.NoError(t, s.Insert(key, CallHierarchyInfo{}, "go"))

			time.Sleep(5 * time.Millisecond)
			removed, err := s.CleanupExpired()
			require.NoError(t, err)
			require.GreaterOrEqual(t, removed, 1)

			got, err := s.Get(key)
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestClearCache(t *testing.T) {
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := Open(backend, Options{})
			require.NoError(t, err)

			require.NoError(t, s.Insert(NodeKey{SymbolName: "A", FilePath: "f.go", ContentDigest: "d"}, CallHierarchyInfo{}, "go"))
			require.NoError(t, s.Insert(NodeKey{SymbolName: "B", FilePath: "g.go", ContentDigest: "d"}, CallHierarchyInfo{}, "go"))

			require.NoError(t, s.Clear())

			stats, err := s.Stats()
			require.NoError(t, err)
			require.Equal(t, 0, stats.TotalNodes)
		})
	}
}

func TestCacheStats(t *testing.T) {
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := Open(backend, Options{})
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				require.NoError(t, s.Insert(NodeKey{SymbolName: "sym", FilePath: "f.go", ContentDigest: string(rune('a' + i))}, CallHierarchyInfo{}, "go"))
			}
			stats, err := s.Stats()
			require.NoError(t, err)
			require.Equal(t, 3, stats.TotalNodes)
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := Open(backend, Options{})
			require.NoError(t, err)

			const goroutines = 10
			done := make(chan error, goroutines)
			for i := 0; i < goroutines; i++ {
				i := i
				go func() {
					key := NodeKey{SymbolName: "sym", FilePath: "f.go", ContentDigest: string(rune('a' + i))}
					done <- s.Insert(key, CallHierarchyInfo{}, "go")
				}()
			}
			for i := 0; i < goroutines; i++ {
				require.NoError(t, <-done)
			}

			nodes, err := s.GetByFile("f.go")
			require.NoError(t, err)
			require.Len(t, nodes, goroutines)
		})
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.db")

	backend, err := store.OpenBolt(path)
	require.NoError(t, err)

	s, err := Open(backend, Options{})
	require.NoError(t, err)
	key := NodeKey{SymbolName: "A", FilePath: "f.go", ContentDigest: "d1"}
	require.NoError(t, s.Insert(key, CallHierarchyInfo{Incoming: []CallInfo{{Name: "x"}}}, "go"))
	require.NoError(t, s.Flush())
	require.NoError(t, backend.Close())

	reopened, err := store.OpenBolt(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	s2, err := Open(reopened, Options{})
	require.NoError(t, err)
	got, err := s2.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "x", got.Payload.Incoming[0].Name)
}

func TestCorruptNodeValueSelfHeals(t *testing.T) {
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := Open(backend, Options{})
			require.NoError(t, err)

			key := NodeKey{SymbolName: "A", FilePath: "f.go", ContentDigest: "d"}
			require.NoError(t, s.Insert(key, CallHierarchyInfo{}, "go"))

			// clobber the stored value behind the store's back
			nodes, err := backend.OpenTree("nodes")
			require.NoError(t, err)
			require.NoError(t, nodes.Put(encodeKey(key), []byte("not-gob")))

			// a corrupt value is a miss, not an error, and is removed
			got, err := s.Get(key)
			require.NoError(t, err)
			require.Nil(t, got)

			n, err := nodes.Len()
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestVersionDowngradeFailsThenClears(t *testing.T) {
	backend := store.NewMemory()

	s, err := Open(backend, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Insert(NodeKey{SymbolName: "A", FilePath: "f.go", ContentDigest: "d"}, CallHierarchyInfo{}, "go"))
	require.NoError(t, s.Flush())

	// simulate data written by a newer build
	meta, err := backend.OpenTree("metadata")
	require.NoError(t, err)
	newer, err := encodeMetadata(CacheMetadata{Version: CurrentVersion + 1, TotalNodes: 1})
	require.NoError(t, err)
	require.NoError(t, meta.Put([]byte(metadataKey), newer))

	_, err = Open(backend, Options{})
	require.ErrorIs(t, err, ErrVersionDowngrade)

	// the failed open cleared the trees, so the next open is clean
	s2, err := Open(backend, Options{})
	require.NoError(t, err)
	stats, err := s2.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.TotalNodes)
}

func TestMetadataDriftReconciledOnOpen(t *testing.T) {
	backend := store.NewMemory()
	s, err := Open(backend, Options{})
	require.NoError(t, err)

	// fewer inserts than the flush cadence: the persisted counter lags
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(NodeKey{SymbolName: "s", FilePath: "f.go", ContentDigest: string(rune('a' + i))}, CallHierarchyInfo{}, "go"))
	}
	require.Equal(t, int64(3), s.totalNodesSnapshot())

	s2, err := Open(backend, Options{})
	require.NoError(t, err)
	require.Equal(t, int64(3), s2.totalNodesSnapshot())
}

func TestKeyCodecRoundTrip(t *testing.T) {
	key := NodeKey{SymbolName: "Calc|weird", FilePath: "/a b/c.go", ContentDigest: "ff00"}
	decoded, err := decodeKey(encodeKey(key))
	require.NoError(t, err)
	require.Equal(t, key, decoded)
}

func TestDatabaseRecoveryAfterCorruptMetadata(t *testing.T) {
	dir := t.TempDir()
	backend, err := store.OpenBolt(filepath.Join(dir, "nodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	s, err := Open(backend, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Insert(NodeKey{SymbolName: "A", FilePath: "f.go", ContentDigest: "d"}, CallHierarchyInfo{}, "go"))

	tree, err := backend.OpenTree("metadata")
	require.NoError(t, err)
	require.NoError(t, tree.Put([]byte(metadataKey), []byte("not-gob-data")))

	s2, err := Open(backend, Options{})
	require.NoError(t, err)
	stats, err := s2.Stats()
	require.NoError(t, err)
	require.Equal(t, 0, stats.TotalNodes) // corrupt metadata triggers a full clear
}
