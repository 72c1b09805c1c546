package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/sync/semaphore"

	"github.com/lspcore/mediator/internal/codec"
	"github.com/lspcore/mediator/internal/config"
	"github.com/lspcore/mediator/internal/debug"
	lspcoreerrors "github.com/lspcore/mediator/internal/errors"
	"github.com/lspcore/mediator/internal/hybrid"
	"github.com/lspcore/mediator/internal/invalidate"
	"github.com/lspcore/mediator/internal/lspserver"
	"github.com/lspcore/mediator/internal/pipeline"
	"github.com/lspcore/mediator/internal/readiness"
	"github.com/lspcore/mediator/internal/ucache"
	"github.com/lspcore/mediator/internal/workspace"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("DAEMON")

// Daemon owns the socket listener and wires together the universal
// cache, the workspace router, the per-language server managers (each
// embedding its readiness tracker), hybrid extraction, the invalidation
// coordinator, and the indexing pipeline behind one request/response
// protocol.
type Daemon struct {
	cfg           config.Daemon
	serverConfigs map[string]config.ServerConfig

	cache       *ucache.Cache
	router      *workspace.Router
	coordinator *invalidate.Coordinator
	pipeline    *pipeline.Pipeline
	structural  hybrid.StructuralAnalyzer
	hybridCfg   hybrid.Config

	serversMu sync.Mutex
	servers   map[string]*lspserver.Manager

	connSem *semaphore.Weighted
	started time.Time

	strictValidation bool
	envelopeSchema   *jsonschema.Resolved
}

// Options bundles the already-constructed collaborators a Daemon wires
// together; cmd/mediator builds each from config and passes them here
// rather than the Daemon constructing its own dependency graph.
type Options struct {
	DaemonConfig  config.Daemon
	ServerConfigs map[string]config.ServerConfig
	Cache         *ucache.Cache
	Router        *workspace.Router
	Coordinator   *invalidate.Coordinator
	Pipeline      *pipeline.Pipeline
	// Structural is the tree-sitter side of hybrid extraction; the
	// semantic side is built per request from the file's language server.
	Structural   hybrid.StructuralAnalyzer
	HybridConfig hybrid.Config

	// StrictValidation enables jsonschema-go envelope validation; callers
	// typically wire this to debug.Enabled().
	StrictValidation bool
}

// New constructs a Daemon from already-built collaborators.
func New(opts Options) *Daemon {
	maxConns := opts.DaemonConfig.MaxConnections
	if maxConns <= 0 {
		maxConns = 64
	}
	d := &Daemon{
		cfg:              opts.DaemonConfig,
		serverConfigs:    opts.ServerConfigs,
		cache:            opts.Cache,
		router:           opts.Router,
		coordinator:      opts.Coordinator,
		pipeline:         opts.Pipeline,
		structural:       opts.Structural,
		hybridCfg:        opts.HybridConfig,
		servers:          make(map[string]*lspserver.Manager),
		connSem:          semaphore.NewWeighted(int64(maxConns)),
		started:          time.Now(),
		strictValidation: opts.StrictValidation,
	}
	if opts.StrictValidation {
		d.envelopeSchema = resolveEnvelopeSchema()
	}
	return d
}

// resolveEnvelopeSchema builds the strict-decode schema optional debug
// builds apply to every inbound frame before dispatch: every envelope
// must carry a non-empty kind and request_id, matching internal/codec's
// wire contract.
func resolveEnvelopeSchema() *jsonschema.Resolved {
	schema := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"kind", "request_id"},
		Properties: map[string]*jsonschema.Schema{
			"kind":       {Type: "string"},
			"request_id": {Type: "string"},
		},
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		dlog.Printf("envelope schema failed to resolve, disabling strict validation: %v", err)
		return nil
	}
	return resolved
}

// recoverToErr wraps a goroutine entry point, converting a recovered
// panic into the benign Io{"internal"} error so a single bad request
// can never take the daemon down.
func recoverToErr(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = lspcoreerrors.FromPanic(r)
		}
	}()
	return fn()
}

// Serve accepts connections on ln until ctx is canceled or ln.Accept
// fails. Each connection is handled on its own goroutine, gated by the
// daemon's connection semaphore; a connection that arrives while the
// semaphore is exhausted is refused immediately rather than queued.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go d.watchdogLoop(ctx)

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !d.connSem.TryAcquire(1) {
			conn.Close()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.connSem.Release(1)
			if err := recoverToErr(func() error {
				d.handleConn(ctx, conn)
				return nil
			}); err != nil {
				dlog.Printf("connection handler recovered: %v", err)
			}
		}()
	}
}

func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	c := codec.New(conn, codec.DefaultMaxFrameBytes)

	timeout := time.Duration(d.cfg.HandlerTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	for {
		deadline := time.Now().Add(timeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		conn.SetReadDeadline(deadline)
		env, err := c.ReadEnvelope()
		if err != nil {
			return
		}
		if d.strictValidation && d.envelopeSchema != nil {
			var v any
			if jerr := json.Unmarshal(env.Payload, &v); jerr == nil {
				if verr := d.envelopeSchema.Validate(v); verr != nil {
					c.WriteError(env.RequestID, codec.WireError{Kind: "Configuration", Message: fmt.Sprintf("envelope failed validation: %v", verr)})
					continue
				}
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		result, herr := d.dispatch(reqCtx, env)
		cancel()

		if herr != nil {
			kind, message := lspcoreerrors.Classify(herr)
			c.WriteError(env.RequestID, codec.WireError{Kind: kind, Message: message})
			continue
		}
		if err := c.WriteOK(env.RequestID, result); err != nil {
			return
		}
	}
}

// watchdogLoop independently supervises the spawned language servers:
// every watchdog interval it health-checks each one, restarting dead
// children with backoff. It runs for the lifetime of Serve.
func (d *Daemon) watchdogLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.WatchdogTimeoutSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.serversMu.Lock()
			servers := make([]*lspserver.Manager, 0, len(d.servers))
			for _, m := range d.servers {
				servers = append(servers, m)
			}
			d.serversMu.Unlock()
			for _, m := range servers {
				m.HealthCheck(ctx)
			}
		}
	}
}

// managerKey identifies one spawned server by language and workspace
// root; each workspace gets its own server process per language.
func managerKey(language, root string) string { return language + "|" + root }

// managerFor returns the Manager for (language, root), spawning one on
// demand from the configured server command if none exists yet.
func (d *Daemon) managerFor(ctx context.Context, language, root string) (*lspserver.Manager, error) {
	key := managerKey(language, root)

	d.serversMu.Lock()
	if m, ok := d.servers[key]; ok {
		d.serversMu.Unlock()
		return m, nil
	}
	d.serversMu.Unlock()

	sc, ok := d.serverConfigs[language]
	if !ok {
		return nil, &lspcoreerrors.UnsupportedLanguage{Language: language}
	}

	m := lspserver.New(lspserver.Config{
		Language:              language,
		WorkspaceRoot:         root,
		Command:               sc.Command,
		Args:                  sc.Args,
		ServerType:            serverTypeFor(sc.ServerType),
		InitializationTimeout: time.Duration(sc.InitializationTimeoutSec) * time.Second,
	})
	if err := m.Spawn(ctx); err != nil {
		return nil, &lspcoreerrors.Io{Message: fmt.Sprintf("spawn %s: %v", language, err)}
	}

	d.serversMu.Lock()
	if existing, ok := d.servers[key]; ok {
		d.serversMu.Unlock()
		m.Shutdown(context.Background())
		return existing, nil
	}
	d.servers[key] = m
	d.serversMu.Unlock()
	return m, nil
}

func serverTypeFor(s string) readiness.ServerType {
	switch s {
	case "rust-analyzer":
		return readiness.RustAnalyzer
	case "gopls":
		return readiness.Gopls
	case "typescript":
		return readiness.TypeScript
	case "python":
		return readiness.Python
	default:
		return readiness.Unknown
	}
}

// Bootstrap pre-spawns the language servers for root, used at startup
// when LSP bootstrap is not skipped. Languages with no configured
// server are silently ignored; a spawn failure only affects that
// language.
func (d *Daemon) Bootstrap(ctx context.Context, root string, languages []string) {
	for _, lang := range languages {
		if _, ok := d.serverConfigs[lang]; !ok {
			continue
		}
		if _, err := d.managerFor(ctx, lang, root); err != nil {
			dlog.Printf("bootstrap of %s failed: %v", lang, err)
		}
	}
}

// Shutdown gracefully stops every spawned language server.
func (d *Daemon) Shutdown(ctx context.Context) {
	d.serversMu.Lock()
	servers := make([]*lspserver.Manager, 0, len(d.servers))
	for _, m := range d.servers {
		servers = append(servers, m)
	}
	d.serversMu.Unlock()

	var wg sync.WaitGroup
	for _, m := range servers {
		wg.Add(1)
		go func(m *lspserver.Manager) {
			defer wg.Done()
			m.Shutdown(ctx)
		}(m)
	}
	wg.Wait()
}
