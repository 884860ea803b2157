// Lock object inspection.
//
// The whole point of representing a lock as a filesystem object is that
// any host mounting the export can examine it. Inspect reads the
// externally visible state: existence, link count (1 + holders), age,
// and the advisory owner records in the inode content. For owners
// registered from this host it also probes whether the recorded pid is
// still alive, which makes abandoned locks easy to attribute.
package nfslock

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// Owner is one advisory owner record read from a lock object.
type Owner struct {
	Host  string    // registering host
	PID   int       // registering process
	Mode  Mode      // mode recorded at registration
	Since time.Time // registration time
	Local bool      // registered from this host
	Alive bool      // pid liveness; meaningful only when Local
}

// Status describes the externally visible state of a lock object.
type Status struct {
	Path    string        // lock object path
	Exists  bool          // whether any claim is active
	Mode    Mode          // regime recorded by the creator
	Links   int           // hard links on the inode (1 + holders)
	Holders int           // Links - 1
	Age     time.Duration // time since the inode was last touched
	Owners  []Owner       // advisory records; link count is authoritative
}

// Inspect reports the current state of the lock protecting target. A
// missing lock object yields Exists false, not an error; only genuine
// filesystem failures are returned.
func Inspect(target string, opts Options) (*Status, error) {
	o := opts.withDefaults()
	lp := lockPath(target, o.Extension)
	st := &Status{Path: lp}

	fi, err := os.Stat(lp)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return nil, err
	}
	st.Exists = true
	st.Age = time.Since(fi.ModTime())

	if n, err := linkCount(lp); err == nil {
		st.Links = n
		st.Holders = n - 1
	}

	data, err := os.ReadFile(lp)
	if err != nil {
		// Records are advisory; report what stat gave us.
		return st, nil
	}
	host := hostname()
	for i, r := range decodeOwners(data) {
		m, _ := tagMode(r.Mode)
		if i == 0 {
			st.Mode = m
		}
		ow := Owner{
			Host:  r.Host,
			PID:   r.PID,
			Mode:  m,
			Since: time.UnixMilli(r.Time),
			Local: r.Host == host,
		}
		if ow.Local {
			ow.Alive = pidAlive(r.PID)
		}
		st.Owners = append(st.Owners, ow)
	}
	return st, nil
}
