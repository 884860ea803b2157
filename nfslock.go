// Package nfslock provides advisory file locking for network filesystems
// whose native locking cannot be trusted. NFS historically does not
// guarantee flock or fcntl semantics across clients, and may silently
// drop or replay RPCs. This package builds mutual exclusion out of the
// two operations NFS servers are expected to honour atomically: hard-link
// creation and stat metadata.
//
// A held lock is an ordinary filesystem entry next to the protected file
// (<target><extension>, default ".NFSLock"), so it survives client
// reboots and is visible to every host mounting the same export. Each
// holder registers a uniquely named claim token hard-linked to the lock
// object; the link count encodes the number of holders. Exclusive claims
// install the lock object with a single token link. Shared claims link
// additional tokens onto the same inode, and an exclusive claim is never
// granted while any link remains.
//
// Because a shared filesystem offers no notification mechanism, blocking
// acquisition is a polling loop: the calling goroutine sleeps a jittered
// interval between attempts. No fairness is guaranteed; a late arrival
// may win a race against an earlier waiter.
//
// Acquisition automatically invalidates any client-side cache for the
// target via Uncache, so the protected file is fresh the moment the lock
// is obtained.
package nfslock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Handle states. A handle is constructed only in the held state;
// released is terminal and a released handle cannot be re-acquired.
const (
	stateHeld = iota + 1
	stateReleased
)

// Lock is a held claim on a target file. It is created by Acquire or
// Adopt and retired by Release. A Lock is safe for concurrent use.
type Lock struct {
	target   string
	lockpath string
	ext      string
	mode     Mode
	log      *zerolog.Logger

	mu     sync.Mutex
	state  int
	owners *registry

	// attemptHook, when set, runs before every claim attempt. Lets tests
	// interleave filesystem state with the acquisition loop.
	attemptHook func()
}

// Acquire claims the lock protecting target under the given options and
// returns a held handle. The target itself need not exist and is never
// modified; the claim lives in sibling filesystem entries. Acquisition
// failures are also recorded in the process-wide slot read by LastError.
func Acquire(target string, opts Options) (*Lock, error) {
	o := opts.withDefaults()

	if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		setLastError(fmt.Errorf("acquire %s lock on %s: %w", o.Mode, target, ErrIsDirectory))
		return nil, ErrIsDirectory
	}

	l := &Lock{
		target:   target,
		lockpath: lockPath(target, o.Extension),
		ext:      o.Extension,
		mode:     o.Mode,
		log:      o.Logger,
		owners:   newRegistry(),
	}

	if err := l.acquire(o); err != nil {
		setLastError(fmt.Errorf("acquire %s lock on %s: %w", o.Mode, target, err))
		return nil, err
	}
	l.state = stateHeld

	// Force the client to drop cached metadata for the file this lock
	// protects, so the first read under the lock sees server state.
	if err := Uncache(target); err != nil {
		l.log.Warn().Err(err).Str("path", target).Msg("uncache after acquire failed")
	}
	return l, nil
}

// Path returns the protected target path.
func (l *Lock) Path() string { return l.target }

// LockPath returns the lock object path (<target><extension>).
func (l *Lock) LockPath() string { return l.lockpath }

// Mode returns the claim mode of this handle.
func (l *Lock) Mode() Mode { return l.mode }

// Held reports whether the handle still holds its claim.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateHeld
}

// Release drops this process's claim. Owner records registered for
// other processes keep their token links; those processes release them
// independently. When no claim tokens remain linked, the lock object
// itself is removed. Release is idempotent: releasing an already
// released handle is a no-op, not an error. It is safe under defer on
// every exit path, which is the intended usage.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateHeld {
		return nil
	}

	var firstErr error
	self := ownerKey{host: hostname(), pid: os.Getpid()}
	if token, ok := l.owners.remove(self); ok {
		if err := os.Remove(token); err != nil && !errors.Is(err, fs.ErrNotExist) {
			firstErr = err
		}
	}
	l.owners.reset()

	// With only the lock object's own name left on the inode, no holder
	// remains anywhere, so retire it.
	if n, err := linkCount(l.lockpath); err == nil && n == 1 {
		if err := os.Remove(l.lockpath); err != nil && !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}

	l.state = stateReleased
	l.log.Debug().Str("lock", l.lockpath).Msg("released")
	return firstErr
}
