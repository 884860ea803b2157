// Acquisition driver: the polling loop, deadline handling and stale
// recovery sit here, feeding the claim primitives in claim.go.
//
// There is no notification mechanism on a shared filesystem, so
// blocking acquisition polls: one claim attempt, then a jittered sleep,
// until success, deadline or policy says stop. The jitter decorrelates
// waiters whose sleep cycles would otherwise align. No FIFO ordering is
// guaranteed among waiters; a late arrival may win.
package nfslock

import (
	"errors"
	"math/rand"
	"os"
	"time"
)

const (
	defaultPoll = time.Second
	pollJitter  = 250 * time.Millisecond

	// maxStaleRetries caps how many times one acquisition may remove a
	// stale lock and start over. Hitting it means the stale timeout is
	// misconfigured below the real contention interval; surfacing the
	// failure beats looping forever.
	maxStaleRetries = 10
)

// attempt makes one claim attempt with a fresh token and registers the
// owner on success. A failed attempt leaves the filesystem exactly as
// if it never happened.
func (l *Lock) attempt() error {
	token := attemptToken(l.target, l.ext)
	rec := newOwnerRecord(l.mode, hostname(), os.Getpid())

	var err error
	if l.mode == ModeShared {
		err = claimShared(l.lockpath, token, rec)
	} else {
		if err = writeToken(token, rec); err != nil {
			return err
		}
		if err = claimExclusive(l.lockpath, token); err != nil {
			os.Remove(token)
		}
	}
	if err != nil {
		return err
	}

	l.owners.add(ownerKey{host: rec.Host, pid: rec.PID}, token)
	return nil
}

// acquire drives attempts until success, terminal failure, or the
// caller's blocking policy is exhausted.
func (l *Lock) acquire(o Options) error {
	var deadline time.Time
	if !o.NonBlocking && o.BlockTimeout > 0 {
		deadline = time.Now().Add(o.BlockTimeout)
	}

	staleRemovals := 0
	for {
		if l.attemptHook != nil {
			l.attemptHook()
		}
		err := l.attempt()
		if err == nil {
			l.log.Debug().Str("lock", l.lockpath).Stringer("mode", l.mode).Msg("claim established")
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			// Filesystem errors are terminal, never silently retried.
			return err
		}

		if o.StaleTimeout > 0 {
			stale, serr := isStale(l.lockpath, o.StaleTimeout)
			if serr != nil {
				return serr
			}
			if stale {
				staleRemovals++
				if staleRemovals > maxStaleRetries {
					return ErrStaleRetries
				}
				l.log.Info().Str("lock", l.lockpath).Int("removal", staleRemovals).Msg("removing stale lock")
				if rerr := removeStale(l.lockpath); rerr != nil {
					return rerr
				}
				// Retry immediately; a fresh token is derived per attempt.
				continue
			}
		}

		if o.NonBlocking {
			return ErrConflict
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		l.log.Debug().Str("lock", l.lockpath).Dur("sleep", o.PollInterval).Msg("lock busy, polling")
		sleepPoll(o.PollInterval, deadline)
	}
}

// sleepPoll sleeps one jittered poll interval, clamped so the sleep
// never overshoots the deadline by more than the final attempt.
func sleepPoll(interval time.Duration, deadline time.Time) {
	d := interval + time.Duration(rand.Int63n(int64(pollJitter)))
	if !deadline.IsZero() {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}
	if d > 0 {
		time.Sleep(d)
	}
}
