// Stale lock detection and forced recovery.
//
// A holder that crashes or never releases leaves its lock object behind
// forever — the filesystem has no notion of process death on another
// host. The only cross-host signal available is age: a lock object
// whose mtime is older than the caller's stale timeout is presumed
// abandoned and may be forcibly removed. The timeout is policy, not
// mechanism; callers that cannot tolerate a false steal leave it unset
// and recover stale locks administratively.
package nfslock

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// isStale reports whether the lock object at lockpath has been
// untouched longer than timeout. A missing object is not stale — the
// holder released it and the caller simply retries.
func isStale(lockpath string, timeout time.Duration) (bool, error) {
	fi, err := os.Stat(lockpath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return time.Since(fi.ModTime()) > timeout, nil
}

// removeStale deletes an abandoned lock object. Losing the removal race
// to another recovering process is fine; both proceed to a fresh claim
// attempt and the hard link decides the winner.
func removeStale(lockpath string) error {
	if err := os.Remove(lockpath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
