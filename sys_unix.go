//go:build unix || linux || darwin

package nfslock

import (
	"os"
	"syscall"
)

// linkCount returns the hard-link count of the inode at path.
func linkCount(path string) (int, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return int(st.Nlink), nil
}

// pidAlive reports whether pid refers to a running process. Signal 0
// delivers nothing; it only checks existence and permission.
func pidAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
