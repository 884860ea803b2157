// Sentinel errors for programmatic handling. Callers can use errors.Is
// to distinguish contention (ErrConflict, ErrTimeout) from protocol
// failures (ErrStaleRetries) and misuse (ErrReleased, ErrNotHeld,
// ErrIsDirectory). Genuine filesystem failures — permission denied,
// missing directory — are returned unwrapped as *os.PathError or
// *os.LinkError and are never retried.
package nfslock

import (
	"errors"
	"sync"
)

var (
	ErrConflict     = errors.New("lock is held by another owner")
	ErrTimeout      = errors.New("blocking timeout elapsed before the lock was free")
	ErrStaleRetries = errors.New("stale lock recovery retry limit reached")
	ErrReleased     = errors.New("lock handle already released")
	ErrNotHeld      = errors.New("owner is not registered on this lock")
	ErrIsDirectory  = errors.New("cannot lock a directory")
	ErrNoHandle     = errors.New("no lock handle present in environment")
)

// lastErr is the process-wide last-error slot. Failed acquisitions
// record a descriptive reason here so callers following the
// check-then-ask-why pattern can recover it after a nil handle.
var lastErr struct {
	mu  sync.Mutex
	err error
}

func setLastError(err error) {
	lastErr.mu.Lock()
	lastErr.err = err
	lastErr.mu.Unlock()
}

// LastError returns the reason the most recent acquisition in this
// process failed, or nil if none has failed. The slot is overwritten by
// each failure; inspect it immediately after a nil Acquire result.
func LastError() error {
	lastErr.mu.Lock()
	defer lastErr.mu.Unlock()
	return lastErr.err
}
