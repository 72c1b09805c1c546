package readiness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotReadyBeforeInitialized(t *testing.T) {
	tr := New(Gopls, nil)
	require.False(t, tr.IsReady())
}

func TestGoplsReadyOnLoadingPackagesMessage(t *testing.T) {
	tr := New(Gopls, nil)
	tr.MarkInitialized()
	require.False(t, tr.IsReady())

	tr.HandleProgressBegin("1", "Loading packages")
	tr.HandleProgressEnd("1", "Finished loading packages")
	require.True(t, tr.IsReady())
}

func TestReadinessMonotonic(t *testing.T) {
	tr := New(Gopls, nil)
	tr.MarkInitialized()
	tr.HandleProgressBegin("1", "Loading packages")
	tr.HandleProgressEnd("1", "Finished loading packages")
	require.True(t, tr.IsReady())
	// still true on repeated calls, even though nothing new happened
	require.True(t, tr.IsReady())
	require.True(t, tr.IsReady())
}

func TestTypeScriptReadinessGateAndQueueOrder(t *testing.T) {
	var released []QueuedRequest
	tr := New(TypeScript, func(q []QueuedRequest) { released = q })
	tr.MarkInitialized()

	require.False(t, tr.IsReady())
	tr.QueueRequest("textDocument/definition", nil, 1)
	tr.QueueRequest("textDocument/definition", nil, 2)

	tr.HandleCustomNotification("$/typescriptVersion", map[string]string{"version": "5.0"})
	require.True(t, tr.IsReady())
	require.Len(t, released, 2)
	require.Equal(t, int64(1), released[0].RequestID)
	require.Equal(t, int64(2), released[1].RequestID)
}

func TestQueuedRequestsReleasedOneAtATimeInOrder(t *testing.T) {
	tr := New(Gopls, nil)
	tr.MarkInitialized()

	q1, err := tr.QueueRequest("textDocument/hover", nil, 1)
	require.NoError(t, err)
	q2, err := tr.QueueRequest("textDocument/hover", nil, 2)
	require.NoError(t, err)

	tr.HandleProgressBegin("1", "Loading packages")
	tr.HandleProgressEnd("1", "Finished loading packages")
	require.True(t, tr.IsReady())

	select {
	case <-q1.Proceed():
	case <-time.After(time.Second):
		t.Fatal("first queued request was not released")
	}

	// The second slot stays closed until the first waiter yields it.
	select {
	case <-q2.Proceed():
		t.Fatal("second request released before first completed")
	case <-time.After(50 * time.Millisecond):
	}

	q1.MarkSent()
	select {
	case <-q2.Proceed():
	case <-time.After(time.Second):
		t.Fatal("second queued request was not released after first completed")
	}
	q2.MarkSent()
}

func TestQueueRequestRejectsWhenFull(t *testing.T) {
	tr := New(Gopls, nil)
	tr.MarkInitialized()

	for i := 0; i < maxQueuedRequests; i++ {
		_, err := tr.QueueRequest("m", nil, int64(i))
		require.NoError(t, err)
	}
	_, err := tr.QueueRequest("m", nil, int64(maxQueuedRequests))
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueRequestAfterReadyIsPreReleased(t *testing.T) {
	tr := New(Gopls, nil)
	tr.MarkInitialized()
	tr.HandleProgressBegin("1", "Loading packages")
	tr.HandleProgressEnd("1", "Finished loading packages")
	require.True(t, tr.IsReady())

	q, err := tr.QueueRequest("m", nil, 1)
	require.NoError(t, err)
	select {
	case <-q.Proceed():
	default:
		t.Fatal("request queued after Ready should be released immediately")
	}
}

func TestResetDropsQueueAndReturnsToSpawning(t *testing.T) {
	tr := New(Gopls, nil)
	tr.MarkInitialized()
	tr.QueueRequest("m", nil, 1)

	dropped := tr.Reset()
	require.Len(t, dropped, 1)
	require.False(t, tr.IsInitialized())
	require.False(t, tr.IsReady())
}

func TestIsStalledAfterDoubleTimeout(t *testing.T) {
	tr := New(TypeScript, nil)
	tr.MarkInitialized()
	status := tr.Status()
	require.False(t, status.IsStalled())

	// simulate elapsed time by constructing a status manually at the
	// boundary condition the predicate checks.
	stalledStatus := Status{IsReady: false, Elapsed: 5 * time.Second, ExpectedTimeout: 2 * time.Second}
	require.True(t, stalledStatus.IsStalled())
}

func TestRustAnalyzerReadyOnKeyTokenEnd(t *testing.T) {
	tr := New(RustAnalyzer, nil)
	tr.MarkInitialized()
	require.False(t, tr.IsReady())

	tr.HandleProgressCreate("rustAnalyzer/Roots Scanned", "rustAnalyzer/Roots Scanned")
	require.False(t, tr.IsReady()) // token created but not ended

	tr.HandleProgressEnd("rustAnalyzer/Roots Scanned", "")
	require.True(t, tr.IsReady())
}

func TestRustAnalyzerReadyOnCachePrimingMessage(t *testing.T) {
	tr := New(RustAnalyzer, nil)
	tr.MarkInitialized()

	tr.HandleProgressBegin("1", "cachePriming")
	require.True(t, tr.IsReady())
}

func TestRustAnalyzerIgnoresUnrelatedTokens(t *testing.T) {
	tr := New(RustAnalyzer, nil)
	tr.MarkInitialized()

	tr.HandleProgressBegin("1", "Formatting")
	tr.HandleProgressEnd("1", "done")
	require.False(t, tr.IsReady())
}

func TestProgressReportUpdatesPercentage(t *testing.T) {
	tr := New(Gopls, nil)
	tr.MarkInitialized()
	tr.HandleProgressCreate("1", "Indexing")

	pct := 42
	tr.HandleProgressReport("1", &pct, "halfway")

	status := tr.Status()
	require.Equal(t, 1, status.ActiveProgressCount)
	require.Contains(t, status.RecentMessages, "halfway")
}

func TestExpectedTimeoutOverride(t *testing.T) {
	tr := NewWithTimeout(Gopls, 45*time.Second, nil)
	require.Equal(t, 45*time.Second, tr.Status().ExpectedTimeout)

	// a non-positive override falls back to the server type's default
	tr = NewWithTimeout(Gopls, 0, nil)
	require.Equal(t, Gopls.ExpectedInitializationTimeout(), tr.Status().ExpectedTimeout)
}

func TestPythonReadyAfterShortElapsed(t *testing.T) {
	tr := New(Python, nil)
	tr.MarkInitialized()
	require.False(t, tr.IsReady())
	time.Sleep(2100 * time.Millisecond)
	require.True(t, tr.IsReady())
}
