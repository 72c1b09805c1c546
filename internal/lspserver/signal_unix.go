//go:build !windows

package lspserver

import (
	"os"
	"syscall"
)

// syscallTerm returns the polite-termination signal used during the
// shutdown escalation ladder before falling back to Kill.
func syscallTerm() os.Signal {
	return syscall.SIGTERM
}

// probeProcess reports whether pid is still alive via a zero-signal,
// which the kernel validates without actually delivering anything.
func probeProcess(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
