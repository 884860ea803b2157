// Lock hand-off to child processes.
//
// A Go program cannot fork a running runtime, so the classic
// fork-while-holding-a-lock pattern is expressed as spawn-with-lock:
// the parent starts a child process with the handle description in its
// environment and registers the child as an additional owner; the child
// calls Adopt to reconstruct a held handle and register itself. Both
// registrations derive the same deterministic token name for the child
// pid, so they are idempotent against each other — either side may run
// first, or both concurrently, and exactly one token link results.
// Releasing from parent or child alone leaves the other's claim intact.
package nfslock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	json "github.com/goccy/go-json"
)

// handleEnv carries the hand-off description to the child.
const handleEnv = "NFSLOCK_HANDLE"

// handoff is the JSON payload stored in handleEnv.
type handoff struct {
	Target string `json:"t"`
	Ext    string `json:"x"`
	Mode   string `json:"m"`
}

// AddOwner registers pid on this host as an additional holder of the
// lock. Idempotent per pid: registering an already registered owner is
// a no-op success, so both sides of a hand-off may call it in any order
// or concurrently.
func (l *Lock) AddOwner(pid int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateHeld {
		return ErrReleased
	}
	return l.addOwnerLocked(pid)
}

func (l *Lock) addOwnerLocked(pid int) error {
	host := hostname()
	key := ownerKey{host: host, pid: pid}
	token := ownerToken(l.target, l.ext, host, pid)
	if !l.owners.add(key, token) {
		return nil
	}

	for i := 0; i < 5; i++ {
		err := os.Link(l.lockpath, token)
		if err == nil {
			_ = appendRecord(token, newOwnerRecord(l.mode, host, pid))
			l.log.Debug().Str("lock", l.lockpath).Int("pid", pid).Msg("owner registered")
			return nil
		}
		if linkedTo(l.lockpath, token) {
			// Either the other side of the hand-off registered this pid
			// first, or our LINK executed and the reply was lost. The
			// claim link is in place either way.
			l.log.Debug().Str("lock", l.lockpath).Int("pid", pid).Msg("owner registered")
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			l.owners.remove(key)
			return err
		}
		// The token name is taken by an ordinary file that does not
		// share the lock inode: a leftover from a dead run whose pid was
		// recycled. It carries no claim, so accepting it would register
		// an owner the link count knows nothing about. Discard it and
		// link again.
		os.Remove(token)
	}
	l.owners.remove(key)
	return ErrConflict
}

// RemoveOwner drops pid's registration from this handle. The filesystem
// claim survives while any owner remains; removing the last owner
// releases the handle, retiring the lock object if no other process
// holds a token.
func (l *Lock) RemoveOwner(pid int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateHeld {
		return ErrReleased
	}

	key := ownerKey{host: hostname(), pid: pid}
	token, ok := l.owners.remove(key)
	if !ok {
		return ErrNotHeld
	}
	if err := os.Remove(token); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if l.owners.size() == 0 {
		if n, err := linkCount(l.lockpath); err == nil && n == 1 {
			os.Remove(l.lockpath)
		}
		l.state = stateReleased
	}
	return nil
}

// SpawnChild starts cmd with the lock handed off through its
// environment and registers the child as an owner before returning the
// child pid. The child regains a held handle by calling Adopt. A start
// failure is propagated unchanged.
func (l *Lock) SpawnChild(cmd *exec.Cmd) (int, error) {
	l.mu.Lock()
	if l.state != stateHeld {
		l.mu.Unlock()
		return 0, ErrReleased
	}
	payload, err := json.Marshal(handoff{Target: l.target, Ext: l.ext, Mode: modeTag(l.mode)})
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}

	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, handleEnv+"="+string(payload))

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := l.AddOwner(pid); err != nil {
		return pid, err
	}
	return pid, nil
}

// Adopt reconstructs a held handle inside a process started by
// SpawnChild and registers this process as an owner. The registration
// is idempotent against the parent's AddOwner. Returns ErrNoHandle when
// the environment carries no hand-off.
func Adopt() (*Lock, error) {
	raw := os.Getenv(handleEnv)
	if raw == "" {
		return nil, ErrNoHandle
	}
	var h handoff
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", handleEnv, err)
	}
	mode, ok := tagMode(h.Mode)
	if !ok {
		return nil, fmt.Errorf("malformed %s: unknown mode %q", handleEnv, h.Mode)
	}

	l := &Lock{
		target:   h.Target,
		lockpath: lockPath(h.Target, h.Ext),
		ext:      h.Ext,
		mode:     mode,
		log:      nopLogger(),
		owners:   newRegistry(),
	}
	if _, err := os.Stat(l.lockpath); err != nil {
		// The claim vanished before adoption; nothing to inherit.
		return nil, err
	}
	l.state = stateHeld
	if err := l.AddOwner(os.Getpid()); err != nil {
		return nil, err
	}
	return l, nil
}
