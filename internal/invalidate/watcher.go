package invalidate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lspcore/mediator/internal/debug"
)

// dlog tags this package's debug output.
var dlog = debug.NewLogger("INVALIDATE")

// Watcher monitors workspace directories for changes and feeds debounced
// events to the Coordinator. Editors commonly produce bursts of writes
// for a single save; the debouncer collapses each burst into one
// invalidation per file.
type Watcher struct {
	fs        *fsnotify.Watcher
	coord     *Coordinator
	debounce  time.Duration
	onResult  func(WatchEvent, Result, error)

	mu      sync.Mutex
	pending map[string]WatchEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher constructs a Watcher delivering debounced events to coord.
// onResult, if non-nil, observes every invalidation outcome.
func NewWatcher(coord *Coordinator, debounce time.Duration, onResult func(WatchEvent, Result, error)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &Watcher{
		fs:       fs,
		coord:    coord,
		debounce: debounce,
		onResult: onResult,
		pending:  make(map[string]WatchEvent),
	}, nil
}

// Watch registers root and every directory beneath it. Hidden and
// vendored directories are skipped; fsnotify does not recurse on its
// own.
func (w *Watcher) Watch(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "target" || name == "vendor") {
			return filepath.SkipDir
		}
		if werr := w.fs.Add(path); werr != nil {
			dlog.Printf("watch add failed for %s: %v", path, werr)
		}
		return nil
	})
}

// Start runs the event and flush loops until Stop is called.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.collectEvents(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.flushLoop(ctx)
	}()
}

// Stop shuts the watcher down and waits for in-flight flushes.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) collectEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			op := opString(ev.Op)
			if op == "" {
				continue
			}
			// A new directory must be added to the watch set before
			// events inside it can be observed.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.fs.Add(ev.Name)
					continue
				}
			}
			w.mu.Lock()
			w.pending[ev.Name] = WatchEvent{Path: ev.Name, Op: op}
			w.mu.Unlock()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			dlog.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

// flush drains the pending map and invalidates each file once.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]WatchEvent)
	w.mu.Unlock()

	for _, ev := range batch {
		res, err := w.coord.InvalidateFile(ev.Path)
		if err != nil {
			dlog.Printf("invalidate %s failed: %v", ev.Path, err)
		}
		if w.onResult != nil {
			w.onResult(ev, res, err)
		}
	}
}

func opString(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}
