// Package debug provides component-scoped debug logging. Each package
// constructs one Logger for its component; output is off unless enabled
// at build time (-ldflags "-X .../debug.EnableDebug=true") or via
// DEBUG=1, and a sink has been attached with SetOutput or OpenLogFile.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug is the build-time switch; override with
// go build -ldflags "-X github.com/lspcore/mediator/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// sink is the process-wide debug output: at most one writer, optionally
// backed by a log file, plus the quiet override that silences
// everything regardless of the enable switches.
type sink struct {
	mu    sync.Mutex
	w     io.Writer
	file  *os.File
	quiet bool
}

var out sink

// SetOutput attaches w as the debug sink; nil detaches it.
func SetOutput(w io.Writer) {
	out.mu.Lock()
	out.w = w
	out.mu.Unlock()
}

// SetQuiet silences all debug output while leaving the sink attached,
// for invocations whose stdout or stderr is machine-consumed.
func SetQuiet(quiet bool) {
	out.mu.Lock()
	out.quiet = quiet
	out.mu.Unlock()
}

// OpenLogFile creates a timestamped log file under the system temp
// directory and attaches it as the sink. Returns the file's path; call
// Close when done.
func OpenLogFile() (string, error) {
	dir := filepath.Join(os.TempDir(), "mediator-debug-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("create debug log file: %w", err)
	}

	out.mu.Lock()
	out.file = file
	out.w = file
	out.mu.Unlock()
	return path, nil
}

// Close closes the log file opened by OpenLogFile, if any, and detaches
// the sink.
func Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.file == nil {
		return nil
	}
	err := out.file.Close()
	out.file = nil
	out.w = nil
	return err
}

// Enabled reports whether debug logging is switched on, by build flag
// or by DEBUG=1/true in the environment.
func Enabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

// write emits one formatted line if logging is enabled, a sink is
// attached, and quiet mode is off.
func (s *sink) write(component, format string, args []any) {
	if !Enabled() {
		return
	}
	s.mu.Lock()
	w, quiet := s.w, s.quiet
	s.mu.Unlock()
	if w == nil || quiet {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] %s\n", component, fmt.Sprintf(format, args...))
}

// Logger tags every line it writes with its component. Loggers are
// cheap values; packages keep one at file scope.
type Logger struct {
	component string
}

// NewLogger returns a Logger for component (an upper-case short tag).
func NewLogger(component string) Logger {
	return Logger{component: component}
}

// Printf writes one line through the shared sink.
func (l Logger) Printf(format string, args ...any) {
	out.write(l.component, format, args)
}

// Enabled reports whether lines written through this Logger can reach a
// sink, for callers that want to skip expensive argument construction.
func (l Logger) Enabled() bool {
	return Enabled()
}
