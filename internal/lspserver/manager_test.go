package lspserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lspcore/mediator/internal/readiness"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	cfg := Config{
		Language:        "go",
		WorkspaceRoot:   "/tmp/ws",
		Command:         "gopls",
		ServerType:      readiness.Gopls,
		RequestTimeout:  time.Second,
		CircuitFailures: 2,
		CircuitWindow:   time.Minute,
		CircuitCooldown: 50 * time.Millisecond,
	}
	return New(cfg)
}

func TestDispatchIncomingRoutesProgressToTracker(t *testing.T) {
	m := newTestManager()
	m.tracker.MarkInitialized()
	require.False(t, m.tracker.IsReady())

	begin := `{"jsonrpc":"2.0","method":"$/progress","params":{"token":"1","value":{"kind":"begin","title":"Loading packages"}}}`
	m.dispatchIncoming([]byte(begin))

	end := `{"jsonrpc":"2.0","method":"$/progress","params":{"token":"1","value":{"kind":"end","message":"Finished loading packages"}}}`
	m.dispatchIncoming([]byte(end))

	require.True(t, m.tracker.IsReady())
}

func TestDispatchIncomingRoutesCustomNotification(t *testing.T) {
	m := newTestManager()
	m.cfg.ServerType = readiness.TypeScript
	m.tracker = readiness.New(readiness.TypeScript, nil)
	m.tracker.MarkInitialized()

	notif := `{"jsonrpc":"2.0","method":"$/typescriptVersion","params":{"version":"5.0"}}`
	m.dispatchIncoming([]byte(notif))

	require.True(t, m.tracker.IsReady())
}

func TestDispatchIncomingDiagnosticsDiscarded(t *testing.T) {
	m := newTestManager()
	m.tracker.MarkInitialized()

	diag := `{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":"file:///a.go","diagnostics":[]}}`
	require.NotPanics(t, func() { m.dispatchIncoming([]byte(diag)) })
	require.False(t, m.tracker.IsReady())
}

func TestDispatchIncomingDeliversResponseToPendingCall(t *testing.T) {
	m := newTestManager()
	call := &pendingCall{resultCh: make(chan Response, 1)}
	m.pending[7] = call

	resp := `{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`
	m.dispatchIncoming([]byte(resp))

	select {
	case got := <-call.resultCh:
		require.Equal(t, int64(7), got.ID)
		require.JSONEq(t, `{"ok":true}`, string(got.Result))
	default:
		t.Fatal("expected response to be delivered")
	}
	_, stillPending := m.pending[7]
	require.False(t, stillPending)
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	m := newTestManager()
	require.False(t, m.circuitOpen())

	m.recordFailure()
	require.False(t, m.circuitOpen())
	m.recordFailure()
	require.True(t, m.circuitOpen())
}

func TestCircuitBreakerResetsAfterCooldown(t *testing.T) {
	m := newTestManager()
	m.recordFailure()
	m.recordFailure()
	require.True(t, m.circuitOpen())

	time.Sleep(75 * time.Millisecond)
	require.False(t, m.circuitOpen())
}

func TestRequestFailsFastWhenCircuitOpen(t *testing.T) {
	m := newTestManager()
	m.recordFailure()
	m.recordFailure()

	_, err := m.Request(context.Background(), "textDocument/definition", nil)
	require.Error(t, err)
	var circuitErr *CircuitOpenError
	require.ErrorAs(t, err, &circuitErr)
}

func TestRequestBlocksInQueueUntilReady(t *testing.T) {
	m := newTestManager()
	m.tracker.MarkInitialized()

	// Two requests submitted before Ready. The manager has no live child,
	// so each fails with ServerRestarting once released — but only after
	// readiness releases it. Strict release ordering is covered by the
	// tracker's own tests; here we verify the block-then-drain behavior
	// end to end through Request.
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(n int) {
			_, err := m.Request(context.Background(), "textDocument/definition", map[string]int{"n": n})
			errs <- err
		}(i)
	}

	require.Eventually(t, func() bool {
		return m.tracker.Status().QueuedRequests == 2
	}, time.Second, 5*time.Millisecond)

	m.tracker.HandleProgressBegin("1", "Loading packages")
	m.tracker.HandleProgressEnd("1", "Finished loading packages")
	require.True(t, m.tracker.IsReady())

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			var restarting *ServerRestartingError
			require.ErrorAs(t, err, &restarting)
		case <-time.After(time.Second):
			t.Fatal("queued request was never released")
		}
	}
}

func TestQueuedRequestsDroppedOnReset(t *testing.T) {
	m := newTestManager()
	m.tracker.MarkInitialized()

	done := make(chan error, 1)
	go func() {
		_, err := m.Request(context.Background(), "textDocument/hover", nil)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return m.tracker.Status().QueuedRequests == 1
	}, time.Second, 5*time.Millisecond)

	m.tracker.Reset()

	err := <-done
	var restarting *ServerRestartingError
	require.ErrorAs(t, err, &restarting)
}

func TestTokenStringHandlesStringAndNumeric(t *testing.T) {
	require.Equal(t, "abc", tokenString("abc"))
	require.Equal(t, "42", tokenString(float64(42)))
}

func TestMarkDeadFailsPendingCallsAndResetsTracker(t *testing.T) {
	m := newTestManager()
	m.tracker.MarkInitialized()
	call := &pendingCall{resultCh: make(chan Response, 1)}
	m.pending[1] = call
	m.alive = true

	m.markDead()

	require.False(t, m.IsAlive())
	resp := <-call.resultCh
	require.NotNil(t, resp.Error)
	require.False(t, m.tracker.IsInitialized())
}

func TestMustMarshalFallsBackOnUnmarshalable(t *testing.T) {
	var ch chan int
	raw := mustMarshal(ch)
	require.Equal(t, json.RawMessage("null"), raw)
}
