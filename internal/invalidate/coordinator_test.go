package invalidate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lspcore/mediator/internal/fingerprint"
	"github.com/lspcore/mediator/internal/ucache"
	"github.com/lspcore/mediator/internal/workspace"
)

// TestMain verifies the watcher's collector and flush goroutines are
// actually torn down by Stop.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestWorkspace(t *testing.T) (string, *workspace.Router, *ucache.Cache) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module testws\n"), 0o644))

	router := workspace.New(workspace.Options{DisablePersistence: true})
	t.Cleanup(func() { router.Close() })
	cache := ucache.New(router, ucache.DefaultRegistry(), fingerprint.XXHash)
	return root, router, cache
}

func TestInvalidateFileIsIdempotent(t *testing.T) {
	root, router, cache := newTestWorkspace(t)
	file := filepath.Join(root, "lib.rs")
	require.NoError(t, os.WriteFile(file, []byte("fn main() {}\n"), 0o644))

	require.NoError(t, cache.Set(ucache.MethodHover, file, map[string]int{"line": 1, "char": 7}, "hover-payload"))

	coord := New(cache, router, nil)

	first, err := coord.InvalidateFile(file)
	require.NoError(t, err)
	require.Equal(t, 1, first.FilesAffected)
	require.GreaterOrEqual(t, first.EntriesRemoved, 1)

	second, err := coord.InvalidateFile(file)
	require.NoError(t, err)
	require.Zero(t, second.EntriesRemoved)

	var dst string
	hit, err := cache.Get(ucache.MethodHover, file, map[string]int{"line": 1, "char": 7}, &dst)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestSwitchBranchClearsWorkspaceOnce(t *testing.T) {
	root, router, cache := newTestWorkspace(t)
	file := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))

	require.NoError(t, cache.Set(ucache.MethodHover, file, map[string]int{"line": 1}, "a"))
	require.NoError(t, cache.Set(ucache.MethodHover, file, map[string]int{"line": 2}, "b"))

	coord := New(cache, router, nil)

	res, err := coord.SwitchBranch(root, "feature", true)
	require.NoError(t, err)
	require.Equal(t, 2, res.EntriesRemoved)

	// repeated identical switch is a no-op
	res, err = coord.SwitchBranch(root, "feature", true)
	require.NoError(t, err)
	require.Zero(t, res.EntriesRemoved)

	var dst string
	for _, line := range []int{1, 2} {
		hit, err := cache.Get(ucache.MethodHover, file, map[string]int{"line": line}, &dst)
		require.NoError(t, err)
		require.False(t, hit)
	}
}

type countingReindexer struct{ calls int }

func (r *countingReindexer) ReindexWorkspace(string) error {
	r.calls++
	return nil
}

func TestSwitchBranchTriggersReindex(t *testing.T) {
	root, router, cache := newTestWorkspace(t)
	re := &countingReindexer{}
	coord := New(cache, router, re)

	_, err := coord.SwitchBranch(root, "main", true)
	require.NoError(t, err)
	require.Equal(t, 1, re.calls)

	// no-op switch must not re-trigger
	_, err = coord.SwitchBranch(root, "main", true)
	require.NoError(t, err)
	require.Equal(t, 1, re.calls)
}

func TestWatcherDebouncesBurstsIntoOneInvalidation(t *testing.T) {
	root, router, cache := newTestWorkspace(t)
	file := filepath.Join(root, "burst.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))

	coord := New(cache, router, nil)

	results := make(chan WatchEvent, 16)
	w, err := NewWatcher(coord, 50*time.Millisecond, func(ev WatchEvent, _ Result, _ error) {
		results <- ev
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch(root))
	w.Start()
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("package main\n// rev\n"), 0o644))
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case ev := <-results:
		require.Equal(t, file, ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a debounced invalidation for the burst")
	}

	// the burst collapses: no flood of per-write invalidations
	time.Sleep(150 * time.Millisecond)
	require.LessOrEqual(t, len(results), 2)
}

func TestWatcherObservesRemove(t *testing.T) {
	root, router, cache := newTestWorkspace(t)
	file := filepath.Join(root, "doomed.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))

	coord := New(cache, router, nil)
	results := make(chan WatchEvent, 4)
	w, err := NewWatcher(coord, 20*time.Millisecond, func(ev WatchEvent, _ Result, _ error) {
		results <- ev
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch(root))
	w.Start()
	defer w.Stop()

	require.NoError(t, os.Remove(file))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-results:
			if ev.Path == file && ev.Op == "remove" {
				return
			}
		case <-deadline:
			t.Fatal("expected a remove event for the deleted file")
		}
	}
}

func TestCoordinatorRunConsumesChannel(t *testing.T) {
	root, router, cache := newTestWorkspace(t)
	file := filepath.Join(root, "lib.go")
	require.NoError(t, os.WriteFile(file, []byte("package lib\n"), 0o644))
	require.NoError(t, cache.Set(ucache.MethodHover, file, nil, "v"))

	coord := New(cache, router, nil)

	events := make(chan WatchEvent, 1)
	observed := make(chan Result, 1)
	done := make(chan struct{})
	go func() {
		coord.Run(events, func(_ WatchEvent, res Result, _ error) { observed <- res })
		close(done)
	}()

	events <- WatchEvent{Path: file, Op: "write"}
	res := <-observed
	require.GreaterOrEqual(t, res.EntriesRemoved, 1)

	close(events)
	<-done
}
