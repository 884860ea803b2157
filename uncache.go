// Cache invalidation.
//
// An NFS client may serve attributes or data from its local cache long
// after another host has rewritten the file. Creating and removing a
// hard link to the path is a metadata-mutating round trip the client
// cannot satisfy from cache, and the server's reply carries fresh
// attributes that displace the stale ones. Acquire applies this to the
// target automatically; the standalone form is for other files a caller
// is about to read after coordinating through a lock.
package nfslock

import (
	"errors"
	"io/fs"
	"os"
)

// Uncache forces the client to discard cached metadata and data for
// path, so the next read reflects the most recent server state. A
// nonexistent path is a no-op success: there is nothing to refresh, and
// lock-then-create flows depend on that.
func Uncache(path string) error {
	tmp := uncacheToken(path)
	if err := os.Link(path, tmp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.Remove(tmp)
}

// Uncache invalidates the client cache for this handle's target.
func (l *Lock) Uncache() error {
	return Uncache(l.target)
}
