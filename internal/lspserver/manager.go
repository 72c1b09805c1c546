// Package lspserver spawns, restarts, and health-checks one LSP child
// process per (language, workspace), correlating requests with
// responses over the child's stdio and routing notifications to the
// readiness tracker.
package lspserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lspcore/mediator/internal/debug"
	"github.com/lspcore/mediator/internal/readiness"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("LSPSERVER")

// maxInflightRequests bounds how many requests Manager will hold open
// against a single child at once, independent of its own internal
// concurrency limits.
const maxInflightRequests = 16

// Config describes how to launch and supervise one server instance.
type Config struct {
	Language        string
	WorkspaceRoot   string
	Command         string
	Args            []string
	ServerType      readiness.ServerType
	// InitializationTimeout overrides the server type's expected
	// initialization timeout when positive.
	InitializationTimeout time.Duration
	RequestTimeout        time.Duration
	MaxRestarts           int
	CircuitWindow         time.Duration
	CircuitFailures       int
	CircuitCooldown       time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = 5
	}
	if c.CircuitWindow <= 0 {
		c.CircuitWindow = 10 * time.Second
	}
	if c.CircuitFailures <= 0 {
		c.CircuitFailures = 3
	}
	if c.CircuitCooldown <= 0 {
		c.CircuitCooldown = 15 * time.Second
	}
}

// Error variants per the error taxonomy. Each carries enough context for
// the daemon front-end to translate it into a WireError.
type ServerNotReadyError struct {
	Language string
	Status   readiness.Status
}

func (e *ServerNotReadyError) Error() string {
	return fmt.Sprintf("server not ready for %s (request queue full)", e.Language)
}

// Kind implements internal/errors.Kinded so the daemon front-end can
// translate this directly into a WireError without a local type switch.
func (e *ServerNotReadyError) Kind() string { return "ServerNotReady" }

type ServerRestartingError struct{ Language string }

func (e *ServerRestartingError) Error() string {
	return fmt.Sprintf("server restarting for %s", e.Language)
}
func (e *ServerRestartingError) Kind() string { return "ServerRestarting" }

type CircuitOpenError struct{ Language string }

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s", e.Language)
}
func (e *CircuitOpenError) Kind() string { return "CircuitOpen" }

type TimeoutError struct {
	What  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s after %v", e.What, e.After)
}
func (e *TimeoutError) Kind() string { return "Timeout" }

// pendingCall is the one-shot completion handle for an in-flight request.
type pendingCall struct {
	resultCh chan Response
}

// Manager supervises one LSP child process.
type Manager struct {
	cfg     Config
	tracker *readiness.Tracker

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	mu          sync.Mutex // guards pending, nextID, and process handles
	pending     map[int64]*pendingCall
	nextID      int64
	restartCnt  int
	lastHealthy time.Time
	alive       bool

	circuitMu     sync.Mutex
	failures      []time.Time
	circuitOpenAt time.Time

	cancelReader context.CancelFunc
	group        *errgroup.Group
	sem          *semaphore.Weighted
	closed       atomic.Bool
}

// New constructs a Manager. Call Spawn to actually launch the child.
func New(cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:     cfg,
		pending: make(map[int64]*pendingCall),
		sem:     semaphore.NewWeighted(maxInflightRequests),
	}
	m.tracker = readiness.NewWithTimeout(cfg.ServerType, cfg.InitializationTimeout, nil)
	return m
}

// Tracker exposes the manager's readiness tracker for status reporting.
func (m *Manager) Tracker() *readiness.Tracker { return m.tracker }

// Spawn launches the configured command, attaches pipes, starts the
// reader loop, and sends the LSP initialize/initialized handshake.
func (m *Manager) Spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, m.cfg.Command, m.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cmd = cmd
	m.stdin = stdin
	m.stdout = stdout
	m.alive = true
	m.lastHealthy = time.Now()
	m.mu.Unlock()

	readerCtx, cancel := context.WithCancel(context.Background())
	m.cancelReader = cancel
	group, groupCtx := errgroup.WithContext(readerCtx)
	m.group = group
	group.Go(func() error {
		m.readLoop(groupCtx)
		return nil
	})

	dlog.Printf("spawned %s for workspace %s (pid %d)", m.cfg.Language, m.cfg.WorkspaceRoot, cmd.Process.Pid)

	if _, err := m.sendRequest(ctx, "initialize", map[string]any{
		"processId":    nil,
		"rootUri":      "file://" + m.cfg.WorkspaceRoot,
		"capabilities": map[string]any{},
	}, m.cfg.RequestTimeout); err != nil {
		return fmt.Errorf("initialize handshake: %w", err)
	}
	if err := m.sendNotification("initialized", map[string]any{}); err != nil {
		return err
	}
	m.tracker.MarkInitialized()
	return nil
}

func (m *Manager) readLoop(ctx context.Context) {
	r := bufio.NewReader(m.stdout)
	for {
		if ctx.Err() != nil {
			return
		}
		raw, err := readMessage(r)
		if err != nil {
			dlog.Printf("%s reader loop ended: %v", m.cfg.Language, err)
			m.markDead()
			return
		}
		m.dispatchIncoming(raw)
	}
}

func (m *Manager) dispatchIncoming(raw []byte) {
	var msg incomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		dlog.Printf("%s: unparseable message dropped: %v", m.cfg.Language, err)
		return
	}

	if msg.ID != nil && (msg.Result != nil || msg.Error != nil) {
		m.mu.Lock()
		call, ok := m.pending[*msg.ID]
		if ok {
			delete(m.pending, *msg.ID)
		}
		m.lastHealthy = time.Now()
		m.mu.Unlock()
		if ok {
			call.resultCh <- Response{ID: *msg.ID, Result: msg.Result, Error: msg.Error}
		}
		return
	}

	switch msg.Method {
	case "window/workDoneProgress/create":
		var p struct {
			Token any    `json:"token"`
			Title string `json:"title"`
		}
		_ = json.Unmarshal(msg.Params, &p)
		m.tracker.HandleProgressCreate(tokenString(p.Token), p.Title)
	case "$/progress":
		m.handleProgress(msg.Params)
	case "textDocument/publishDiagnostics":
		// diagnostics are never forwarded to clients; dropped here
	default:
		if msg.Method != "" {
			m.tracker.HandleCustomNotification(msg.Method, json.RawMessage(msg.Params))
		}
	}
}

func (m *Manager) handleProgress(params json.RawMessage) {
	var p struct {
		Token any `json:"token"`
		Value struct {
			Kind       string `json:"kind"`
			Title      string `json:"title"`
			Message    string `json:"message"`
			Percentage *int   `json:"percentage"`
		} `json:"value"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	token := tokenString(p.Token)
	switch p.Value.Kind {
	case "begin":
		m.tracker.HandleProgressBegin(token, p.Value.Title)
	case "report":
		m.tracker.HandleProgressReport(token, p.Value.Percentage, p.Value.Message)
	case "end":
		m.tracker.HandleProgressEnd(token, p.Value.Message)
	}
}

func tokenString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%d", int64(t))
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Request sends method/params and awaits the matching response. If the
// circuit is open, it fails fast without touching the child. If the
// tracker reports !Ready, the request is queued and this call blocks
// until readiness releases it (or the context expires). Queued requests
// are released one at a time in enqueue order, so a backlog submitted
// before Ready completes in submission order.
func (m *Manager) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if m.circuitOpen() {
		return nil, &CircuitOpenError{Language: m.cfg.Language}
	}
	if !m.tracker.IsReady() {
		q, qerr := m.tracker.QueueRequest(method, params, 0)
		if qerr != nil {
			return nil, &ServerNotReadyError{Language: m.cfg.Language, Status: m.tracker.Status()}
		}
		select {
		case <-q.Proceed():
			// Holding the ordered slot until this request finishes keeps
			// the released backlog completing in enqueue order.
			defer q.MarkSent()
		case <-q.Dropped():
			return nil, &ServerRestartingError{Language: m.cfg.Language}
		case <-ctx.Done():
			q.MarkSent()
			return nil, ctx.Err()
		}
	}
	resp, err := m.sendRequest(ctx, method, params, m.cfg.RequestTimeout)
	if err != nil {
		m.recordFailure()
		return nil, err
	}
	if resp.Error != nil {
		m.recordFailure()
		return nil, fmt.Errorf("lsp error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (m *Manager) sendRequest(ctx context.Context, method string, params any, timeout time.Duration) (Response, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return Response{}, err
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		return Response{}, &ServerRestartingError{Language: m.cfg.Language}
	}
	m.nextID++
	id := m.nextID
	call := &pendingCall{resultCh: make(chan Response, 1)}
	m.pending[id] = call
	stdin := m.stdin
	m.mu.Unlock()

	buf, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		m.dropPending(id)
		return Response{}, err
	}
	if err := writeMessage(stdin, buf); err != nil {
		m.dropPending(id)
		return Response{}, err
	}

	select {
	case resp := <-call.resultCh:
		return resp, nil
	case <-time.After(timeout):
		m.dropPending(id)
		// A cancellation notice is sent best-effort; the child's later
		// response, if any, is dropped silently since the id is gone.
		_ = m.sendNotification("$/cancelRequest", map[string]any{"id": id})
		return Response{}, &TimeoutError{What: method, After: timeout}
	case <-ctx.Done():
		m.dropPending(id)
		return Response{}, ctx.Err()
	}
}

func (m *Manager) dropPending(id int64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Manager) sendNotification(method string, params any) error {
	m.mu.Lock()
	stdin := m.stdin
	m.mu.Unlock()
	buf, err := json.Marshal(Notification{JSONRPC: "2.0", Method: method, Params: mustMarshal(params)})
	if err != nil {
		return err
	}
	return writeMessage(stdin, buf)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// --- Circuit breaker ---

func (m *Manager) recordFailure() {
	m.circuitMu.Lock()
	defer m.circuitMu.Unlock()
	now := time.Now()
	m.failures = append(m.failures, now)
	cutoff := now.Add(-m.cfg.CircuitWindow)
	kept := m.failures[:0]
	for _, f := range m.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	m.failures = kept
	if len(m.failures) >= m.cfg.CircuitFailures {
		m.circuitOpenAt = now
		dlog.Printf("%s: circuit breaker tripped after %d failures", m.cfg.Language, len(m.failures))
	}
}

func (m *Manager) circuitOpen() bool {
	m.circuitMu.Lock()
	defer m.circuitMu.Unlock()
	if m.circuitOpenAt.IsZero() {
		return false
	}
	if time.Since(m.circuitOpenAt) > m.cfg.CircuitCooldown {
		m.circuitOpenAt = time.Time{}
		m.failures = nil
		return false
	}
	return true
}

// --- Supervision ---

func (m *Manager) markDead() {
	m.mu.Lock()
	m.alive = false
	pending := m.pending
	m.pending = make(map[int64]*pendingCall)
	m.mu.Unlock()

	for _, call := range pending {
		call.resultCh <- Response{Error: &RPCError{Message: "server died"}}
	}
	m.tracker.Reset()
}

// processRunning probes the child with a zero-signal, the usual liveness
// check that doesn't disturb the process or speak any protocol to it.
func (m *Manager) processRunning() bool {
	m.mu.Lock()
	cmd := m.cmd
	m.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	if cmd.ProcessState != nil {
		return false
	}
	return probeProcess(cmd.Process.Pid)
}

// IsAlive reports whether the child process is believed alive.
func (m *Manager) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// RestartCount reports how many times Restart has successfully relaunched
// the child.
func (m *Manager) RestartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restartCnt
}

// LastHealthy reports the last time a response was received from the
// child, used by the daemon front-end's status reporting.
func (m *Manager) LastHealthy() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHealthy
}

// Restart relaunches the child with exponential backoff, up to
// MaxRestarts. In-flight requests at the time of death already failed
// via markDead; the readiness tracker was reset so new requests queue
// until the relaunched child becomes ready again.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	attempt := m.restartCnt
	m.mu.Unlock()
	if attempt >= m.cfg.MaxRestarts {
		return fmt.Errorf("lspserver: %s exceeded max restarts (%d)", m.cfg.Language, m.cfg.MaxRestarts)
	}

	backoff := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := m.Spawn(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.restartCnt++
	m.mu.Unlock()
	return nil
}

// HealthCheck performs one supervision pass: verify the child process
// is alive, restarting it with backoff when it is not. Safe to call
// from an external watchdog loop as well as Watchdog below.
func (m *Manager) HealthCheck(ctx context.Context) {
	if m.closed.Load() {
		return
	}
	if !m.IsAlive() {
		if err := m.Restart(ctx); err != nil {
			dlog.Printf("%s: restart failed: %v", m.cfg.Language, err)
		}
		return
	}
	if !m.processRunning() {
		dlog.Printf("%s: watchdog observed dead process", m.cfg.Language)
		m.markDead()
		if err := m.Restart(ctx); err != nil {
			dlog.Printf("%s: restart failed: %v", m.cfg.Language, err)
		}
	}
}

// Watchdog runs until ctx is canceled, periodically checking that the
// child process is alive and restarting it when it is not.
func (m *Manager) Watchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.HealthCheck(ctx)
		}
	}
}

// Shutdown sends shutdown+exit, waits with a bounded timeout, then
// escalates to SIGTERM and finally SIGKILL.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, _ = m.sendRequest(shutdownCtx, "shutdown", nil, 5*time.Second)
	cancel()
	_ = m.sendNotification("exit", nil)

	if m.cancelReader != nil {
		m.cancelReader()
	}

	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = m.cmd.Process.Signal(syscallTerm())
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = m.cmd.Process.Kill()
			<-done
		}
	}
	m.mu.Lock()
	m.alive = false
	group := m.group
	m.mu.Unlock()
	if group != nil {
		_ = group.Wait()
	}
	return nil
}
