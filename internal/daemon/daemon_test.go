package daemon

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lspcore/mediator/internal/codec"
	"github.com/lspcore/mediator/internal/config"
	"github.com/lspcore/mediator/internal/fingerprint"
	"github.com/lspcore/mediator/internal/invalidate"
	"github.com/lspcore/mediator/internal/pipeline"
	"github.com/lspcore/mediator/internal/ucache"
	"github.com/lspcore/mediator/internal/workspace"
)

func startTestDaemon(t *testing.T, maxConns int) (string, context.CancelFunc) {
	t.Helper()
	router := workspace.New(workspace.Options{DisablePersistence: true})
	cache := ucache.New(router, ucache.DefaultRegistry(), fingerprint.XXHash)
	coordinator := invalidate.New(cache, router, nil)
	pipe := pipeline.New(pipeline.Config{})

	d := New(Options{
		DaemonConfig:  config.Daemon{MaxConnections: maxConns, HandlerTimeoutSec: 5},
		ServerConfigs: map[string]config.ServerConfig{},
		Cache:         cache,
		Router:        router,
		Coordinator:   coordinator,
		Pipeline:      pipe,
	})

	socket := filepath.Join(t.TempDir(), "d.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		router.Close()
	})
	return socket, cancel
}

func dialTest(t *testing.T, socket string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type testResponse struct {
	RequestID string           `json:"request_id"`
	OK        json.RawMessage  `json:"ok"`
	Error     *codec.WireError `json:"error"`
}

func roundTrip(t *testing.T, conn net.Conn, body map[string]any) testResponse {
	t.Helper()
	c := codec.New(conn, codec.DefaultMaxFrameBytes)
	frame, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, c.WriteFrame(frame))

	raw, err := c.ReadFrame()
	require.NoError(t, err)
	var resp testResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestStatusRoundTrip(t *testing.T) {
	socket, _ := startTestDaemon(t, 4)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, map[string]any{"kind": KindStatus, "request_id": "r-1"})
	require.Equal(t, "r-1", resp.RequestID)
	require.Nil(t, resp.Error)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(resp.OK, &status))
	require.Empty(t, status.Servers)
}

func TestUnknownKindReturnsStructuredError(t *testing.T) {
	socket, _ := startTestDaemon(t, 4)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, map[string]any{"kind": "no_such_request", "request_id": "r-2"})
	require.Equal(t, "r-2", resp.RequestID)
	require.NotNil(t, resp.Error)
	require.Equal(t, "UnsupportedMethod", resp.Error.Kind)
}

func TestConnectionBoundRejectsExcess(t *testing.T) {
	socket, _ := startTestDaemon(t, 1)

	first, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer first.Close()

	// occupy the only slot with a request to confirm it is live
	resp := roundTrip(t, first, map[string]any{"kind": KindStatus, "request_id": "r-3"})
	require.Nil(t, resp.Error)

	// the second connection is refused immediately, not queued: its
	// first read observes the daemon-side close
	second, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	c := codec.New(second, codec.DefaultMaxFrameBytes)
	_, readErr := c.ReadFrame()
	require.Error(t, readErr)
}

func TestInvalidateFileViaDaemon(t *testing.T) {
	socket, _ := startTestDaemon(t, 4)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, map[string]any{
		"kind": KindInvalidateFile, "request_id": "r-4", "file": "/tmp/nonexistent-but-resolvable.go",
	})
	require.Nil(t, resp.Error)

	var result InvalidateResult
	require.NoError(t, json.Unmarshal(resp.OK, &result))
	require.Zero(t, result.EntriesRemoved)
}

func TestMalformedPayloadGetsConfigurationError(t *testing.T) {
	socket, _ := startTestDaemon(t, 4)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, map[string]any{
		"kind": KindCallHierarchy, "request_id": "r-5", "line": "not-a-number",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, "Configuration", resp.Error.Kind)
}
