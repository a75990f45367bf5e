//go:build unix

package filelock

import (
	"errors"
	"syscall"
)

// processAlive reports whether pid names a running process. Signal 0
// checks for existence without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
