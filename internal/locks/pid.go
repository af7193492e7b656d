package locks

import (
	"os"
	"syscall"
)

// PIDAlive reports whether a process with the given pid exists.
// Signal 0 performs the permission and existence checks without
// delivering anything.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return err == syscall.EPERM
}
