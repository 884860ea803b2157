// Atomic hard-link claims.
//
// NFS may execute a LINK on the server and lose the reply, so a claim
// attempt never trusts a reported link failure on its own: the token's
// link count is consulted first, and two or more links means the claim
// went through. Trusting the raw error would turn a lost reply into a
// false conflict on this client while the claim stands on the server —
// the classic double-holder bug this package exists to avoid.
package nfslock

import (
	"errors"
	"io/fs"
	"os"
)

// writeToken creates a fresh claim token containing rec. O_EXCL
// guarantees each attempt owns its name; names carry a per-attempt
// nonce so collisions cannot happen between concurrent attempts.
func writeToken(token string, rec ownerRecord) error {
	f, err := os.OpenFile(token, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.Write(rec.encode())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(token)
		return werr
	}
	return nil
}

// claimExclusive links an existing, freshly created token to lockpath.
// The link succeeds only if lockpath does not exist, which is the
// mutual-exclusion step. Returns ErrConflict when another claim is in
// place, or the underlying error for genuine filesystem failures.
func claimExclusive(lockpath, token string) error {
	err := os.Link(token, lockpath)
	if err == nil {
		return nil
	}
	// The token is owned exclusively by this attempt, so a second link
	// on it can only mean our LINK executed and the reply was lost.
	if n, statErr := linkCount(token); statErr == nil && n >= 2 {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return ErrConflict
	}
	return err
}

// claimShared registers token as a holder of lockpath, creating the
// lock object when absent. Joining links the lock object to the token
// name, which raises the shared inode's link count by one. The regime
// recorded by the object's creator is checked after the join: landing
// on an exclusive inode backs out and reports ErrConflict.
func claimShared(lockpath, token string, rec ownerRecord) error {
	// The object can flap between the join and create paths when other
	// processes are creating and releasing it concurrently; a few laps
	// are enough, after which the conflict is reported and the retry
	// scheduler decides what to do.
	for i := 0; i < 5; i++ {
		err := os.Link(lockpath, token)
		if err == nil || linkedTo(lockpath, token) {
			if readMode(token) != ModeShared {
				os.Remove(token)
				return ErrConflict
			}
			// The record line is advisory; the link already registered us.
			_ = appendRecord(token, rec)
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		// No lock object yet. Seed one with our record and install it.
		os.Remove(token) // discard any junk left by a failed join
		if err := writeToken(token, rec); err != nil {
			return err
		}
		err = os.Link(token, lockpath)
		if err == nil {
			return nil
		}
		if n, statErr := linkCount(token); statErr == nil && n >= 2 {
			return nil
		}
		os.Remove(token)
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		// Lost the creation race; join the winner on the next lap.
	}
	return ErrConflict
}

// linkedTo reports whether token exists and shares its inode with
// lockpath. This resolves a lost LINK reply on the shared join path,
// where the token is a new name for the lock object's inode rather
// than a fresh file.
func linkedTo(lockpath, token string) bool {
	ti, err := os.Stat(token)
	if err != nil {
		return false
	}
	li, err := os.Stat(lockpath)
	if err != nil {
		return false
	}
	return os.SameFile(ti, li)
}
