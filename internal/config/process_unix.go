//go:build !windows

package config

import (
	"errors"
	"syscall"
)

// isProcessAlive reports whether pid names a running process. EPERM means
// the process exists but belongs to another user.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
