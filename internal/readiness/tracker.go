// Package readiness tracks when a language server is actually able to
// serve requests: a per-server state machine observing $/progress,
// custom notifications, and timeouts that gates request dispatch. The
// per-server-type predicates encode what each server family reports
// when its initial indexing completes, with CI-environment fallbacks
// for servers that stay silent there.
package readiness

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lspcore/mediator/internal/debug"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("READINESS")

// ServerType is the closed set of language-server families with distinct
// readiness predicates.
type ServerType int

const (
	RustAnalyzer ServerType = iota
	Gopls
	TypeScript
	Python
	Unknown
)

// ExpectedInitializationTimeout returns the experimentally-derived
// initialization timeout for st.
func (st ServerType) ExpectedInitializationTimeout() time.Duration {
	switch st {
	case RustAnalyzer:
		return 17 * time.Second
	case Gopls:
		return 5 * time.Second
	case TypeScript:
		return 2 * time.Second
	case Python:
		return 3 * time.Second
	default:
		return 10 * time.Second
	}
}

func isCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != ""
}

// ProgressToken tracks one window/workDoneProgress/create token's
// lifecycle through begin/report/end.
type ProgressToken struct {
	Token      string
	Title      string
	StartedAt  time.Time
	LastUpdate time.Time
	Complete   bool
	Percentage *int
}

// QueuedRequest is a request that arrived before the tracker reported
// Ready. The tracker releases queued requests one at a time, in enqueue
// order: a waiter blocks on Proceed, and the next waiter is not released
// until the previous one calls MarkSent.
type QueuedRequest struct {
	Method    string
	Params    any
	RequestID int64
	QueuedAt  time.Time

	proceed  chan struct{}
	dropped  chan struct{}
	sent     chan struct{}
	sentOnce sync.Once
}

// Proceed is closed when the tracker releases this request; the waiter
// may then send it to the server.
func (q *QueuedRequest) Proceed() <-chan struct{} { return q.proceed }

// Dropped is closed if the tracker is Reset before this request is
// released; the waiter must fail it with a ServerRestarting error.
func (q *QueuedRequest) Dropped() <-chan struct{} { return q.dropped }

// MarkSent tells the tracker this request is done with its ordered slot,
// releasing the next queued request. Waiters must call it exactly once
// after Proceed fires, on every path including errors and cancellation.
func (q *QueuedRequest) MarkSent() { q.sentOnce.Do(func() { close(q.sent) }) }

// maxQueuedRequests bounds the pre-Ready queue; requests beyond it are
// rejected rather than accumulated without limit.
const maxQueuedRequests = 128

// ErrQueueFull is returned by QueueRequest when the bounded pre-Ready
// queue is at capacity.
var ErrQueueFull = errors.New("readiness: request queue full")

// Status is the externally observable snapshot returned by Status().
type Status struct {
	ServerType          ServerType
	IsInitialized       bool
	IsReady             bool
	Elapsed             time.Duration
	ActiveProgressCount int
	RecentMessages      []string
	QueuedRequests      int
	ExpectedTimeout     time.Duration
}

// IsStalled reports whether the server has exceeded twice its expected
// initialization timeout without becoming ready. Stall is observational
// only: the server manager decides whether to act on it.
func (s Status) IsStalled() bool {
	return !s.IsReady && s.Elapsed > 2*s.ExpectedTimeout
}

// Tracker is the per-server readiness state machine. All fields are
// behind a single reader-biased lock, matching the "single writer (reader
// task), many readers" shape the concurrency model requires.
type Tracker struct {
	serverType      ServerType
	expectedTimeout time.Duration
	startTime       time.Time

	mu                 sync.RWMutex
	activeTokens       map[string]*ProgressToken
	recentMessages     []string
	customNotifs       map[string]any
	isInitialized      bool
	isReady            bool
	queue              []*QueuedRequest
	onReady            func([]QueuedRequest)
}

// New constructs a Tracker for serverType. onReady, if non-nil, is
// invoked with the drained queue (in enqueue order) when the tracker
// transitions to Ready with requests queued; it is not invoked when the
// queue is empty at that moment.
func New(serverType ServerType, onReady func([]QueuedRequest)) *Tracker {
	return NewWithTimeout(serverType, serverType.ExpectedInitializationTimeout(), onReady)
}

// NewWithTimeout constructs a Tracker whose expected initialization
// timeout overrides the server type's default, for configurations that
// know their workspace initializes slower or faster than usual.
func NewWithTimeout(serverType ServerType, expectedTimeout time.Duration, onReady func([]QueuedRequest)) *Tracker {
	if expectedTimeout <= 0 {
		expectedTimeout = serverType.ExpectedInitializationTimeout()
	}
	return &Tracker{
		serverType:      serverType,
		expectedTimeout: expectedTimeout,
		startTime:       time.Now(),
		activeTokens:    make(map[string]*ProgressToken),
		customNotifs:    make(map[string]any),
		onReady:         onReady,
	}
}

// MarkInitialized records that the daemon has sent the LSP `initialized`
// notification. Initialized always precedes Ready.
func (t *Tracker) MarkInitialized() {
	t.mu.Lock()
	t.isInitialized = true
	t.mu.Unlock()
	dlog.Printf("server marked initialized (%v)", t.serverType)
}

// IsInitialized reports whether MarkInitialized has been called since the
// last Reset.
func (t *Tracker) IsInitialized() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isInitialized
}

// IsReady evaluates and, if newly satisfied, latches the Ready state.
// Once true for a tracker run it remains true until Reset — the cached
// flag below, never re-derived to false, is what guarantees that
// monotonicity.
func (t *Tracker) IsReady() bool {
	t.mu.RLock()
	if !t.isInitialized {
		t.mu.RUnlock()
		return false
	}
	if t.isReady {
		t.mu.RUnlock()
		return true
	}
	t.mu.RUnlock()

	ready := t.evaluateReadiness()
	if !ready {
		return false
	}

	t.mu.Lock()
	wasReady := t.isReady
	t.isReady = true
	queued := t.queue
	t.queue = nil
	t.mu.Unlock()

	if !wasReady {
		dlog.Printf("server ready (%v) after %v", t.serverType, time.Since(t.startTime))
		t.release(queued)
	}
	return true
}

// release notifies the onReady observer and unblocks queued waiters one
// at a time in enqueue order. The walk happens off the caller's
// goroutine so IsReady never blocks on a slow waiter.
func (t *Tracker) release(queued []*QueuedRequest) {
	if len(queued) == 0 {
		return
	}
	if t.onReady != nil {
		snap := make([]QueuedRequest, len(queued))
		for i, q := range queued {
			snap[i] = QueuedRequest{Method: q.Method, Params: q.Params, RequestID: q.RequestID, QueuedAt: q.QueuedAt}
		}
		t.onReady(snap)
	}
	go func() {
		for _, q := range queued {
			close(q.proceed)
			<-q.sent
		}
	}()
}

// HandleProgressCreate processes window/workDoneProgress/create.
func (t *Tracker) HandleProgressCreate(token, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeTokens[token] = &ProgressToken{Token: token, Title: title, StartedAt: time.Now(), LastUpdate: time.Now()}
}

// HandleProgressBegin processes a $/progress notification of kind
// "begin", creating the token if window/workDoneProgress/create was not
// observed first (some servers skip the create step).
func (t *Tracker) HandleProgressBegin(token, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeTokens[token] = &ProgressToken{Token: token, Title: title, StartedAt: time.Now(), LastUpdate: time.Now()}
	if title != "" {
		t.recentMessages = append(t.recentMessages, title)
	}
}

// HandleProgressReport processes a $/progress notification of kind
// "report".
func (t *Tracker) HandleProgressReport(token string, percentage *int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.activeTokens[token]
	if !ok {
		return
	}
	pt.LastUpdate = time.Now()
	if percentage != nil {
		pt.Percentage = percentage
	}
	if message != "" {
		t.recentMessages = append(t.recentMessages, message)
	}
}

// HandleProgressEnd processes a $/progress notification of kind "end".
// Completion is monotonic: once true it never reverts. The end message is
// retained in recent messages only when it matches a server-specific
// relevance filter, so unrelated progress chatter never pollutes the
// readiness predicates.
func (t *Tracker) HandleProgressEnd(token, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.activeTokens[token]
	if !ok {
		return
	}
	pt.Complete = true
	pt.LastUpdate = time.Now()

	if message == "" {
		return
	}
	relevant := false
	switch t.serverType {
	case Gopls:
		relevant = strings.Contains(message, "Finished loading packages") || strings.Contains(message, "Loading packages")
	case RustAnalyzer:
		relevant = strings.Contains(message, "cachePriming") || strings.Contains(message, "Roots Scanned") || strings.Contains(message, "rustAnalyzer")
	}
	if relevant {
		t.recentMessages = append(t.recentMessages, message)
	}
}

// HandleCustomNotification records a server-custom notification verbatim
// and, for the notifications known to carry a readiness signal
// ($/typescriptVersion), latches Ready immediately.
func (t *Tracker) HandleCustomNotification(method string, params any) {
	t.mu.Lock()
	t.customNotifs[method] = params
	becameReady := false
	if method == "$/typescriptVersion" && !t.isReady {
		t.isReady = true
		becameReady = true
	}
	var queued []*QueuedRequest
	if becameReady {
		queued = t.queue
		t.queue = nil
	}
	t.mu.Unlock()

	if becameReady {
		dlog.Printf("typescript version notification observed, server ready")
		t.release(queued)
	}
}

// QueueRequest enqueues a request observed while !Ready and returns its
// release handle. Queued requests are released, in enqueue order, on the
// transition to Ready. Returns ErrQueueFull when the bounded queue is at
// capacity. If the tracker became Ready between the caller's check and
// this call, the returned request is already released.
func (t *Tracker) QueueRequest(method string, params any, requestID int64) (*QueuedRequest, error) {
	q := &QueuedRequest{
		Method:    method,
		Params:    params,
		RequestID: requestID,
		QueuedAt:  time.Now(),
		proceed:   make(chan struct{}),
		dropped:   make(chan struct{}),
		sent:      make(chan struct{}),
	}

	t.mu.Lock()
	if t.isReady {
		t.mu.Unlock()
		close(q.proceed)
		return q, nil
	}
	if len(t.queue) >= maxQueuedRequests {
		t.mu.Unlock()
		return nil, ErrQueueFull
	}
	t.queue = append(t.queue, q)
	t.mu.Unlock()
	return q, nil
}

// Status returns the current externally observable snapshot, including
// up to the 5 most recent messages in most-recent-first order.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	recent := make([]string, 0, 5)
	for i := len(t.recentMessages) - 1; i >= 0 && len(recent) < 5; i-- {
		recent = append(recent, t.recentMessages[i])
	}

	return Status{
		ServerType:          t.serverType,
		IsInitialized:       t.isInitialized,
		IsReady:             t.isReady,
		Elapsed:             time.Since(t.startTime),
		ActiveProgressCount: len(t.activeTokens),
		RecentMessages:      recent,
		QueuedRequests:      len(t.queue),
		ExpectedTimeout:     t.expectedTimeout,
	}
}

// Reset returns the tracker to its pre-Spawning-complete state, for
// server restart. Queued requests are dropped; the caller is expected to
// fail them with a ServerRestarting error.
func (t *Tracker) Reset() []QueuedRequest {
	t.mu.Lock()
	queued := t.queue

	t.isInitialized = false
	t.isReady = false
	t.activeTokens = make(map[string]*ProgressToken)
	t.recentMessages = nil
	t.customNotifs = make(map[string]any)
	t.queue = nil
	t.startTime = time.Now()
	t.mu.Unlock()

	dropped := make([]QueuedRequest, len(queued))
	for i, q := range queued {
		dropped[i] = QueuedRequest{Method: q.Method, Params: q.Params, RequestID: q.RequestID, QueuedAt: q.QueuedAt}
		close(q.dropped)
	}
	dlog.Printf("tracker reset (%v), dropping %d queued requests", t.serverType, len(dropped))
	return dropped
}

func (t *Tracker) evaluateReadiness() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch t.serverType {
	case RustAnalyzer:
		return t.rustAnalyzerReady()
	case Gopls:
		return t.goplsReady()
	case TypeScript:
		return t.typescriptReady()
	case Python:
		return time.Since(t.startTime) > 2*time.Second
	default:
		return t.unknownReady()
	}
}

func (t *Tracker) rustAnalyzerReady() bool {
	keyTokens := []string{"rustAnalyzer/Fetching", "rustAnalyzer/Roots Scanned"}
	for _, tok := range t.activeTokens {
		if !tok.Complete {
			continue
		}
		for _, key := range keyTokens {
			if strings.Contains(tok.Title, key) || strings.Contains(tok.Token, key) {
				return true
			}
		}
	}
	for _, msg := range t.recentMessages {
		if strings.Contains(msg, "cachePriming") || strings.Contains(msg, "Roots Scanned") {
			return true
		}
	}
	return false
}

func (t *Tracker) goplsReady() bool {
	for _, msg := range t.recentMessages {
		if strings.Contains(msg, "Finished loading packages") || strings.Contains(msg, "Loading packages") {
			return true
		}
	}
	for _, tok := range t.activeTokens {
		if tok.Complete && (strings.Contains(tok.Title, "Loading") || strings.Contains(tok.Title, "Indexing")) {
			return true
		}
	}
	if isCI() {
		allComplete := true
		for _, tok := range t.activeTokens {
			if !tok.Complete {
				allComplete = false
				break
			}
		}
		if allComplete && time.Since(t.startTime) > 10*time.Second {
			return true
		}
	}
	return false
}

func (t *Tracker) typescriptReady() bool {
	if _, ok := t.customNotifs["$/typescriptVersion"]; ok {
		return true
	}
	if isCI() && time.Since(t.startTime) > 5*time.Second {
		return true
	}
	return false
}

func (t *Tracker) unknownReady() bool {
	allComplete := true
	for _, tok := range t.activeTokens {
		if !tok.Complete {
			allComplete = false
			break
		}
	}
	return allComplete && time.Since(t.startTime) > 5*time.Second
}
