//go:build windows

package lspserver

import "os"

// syscallTerm falls back to Kill on platforms without SIGTERM semantics.
func syscallTerm() os.Signal {
	return os.Kill
}

// probeProcess reports whether pid is still alive. Windows has no
// zero-signal probe; FindProcess always succeeds, so this only catches
// the case where the process table entry is gone entirely.
func probeProcess(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
