// Acquisition options and process-wide defaults.
//
// Options follows the zero-value-is-useful pattern: the empty struct
// requests an exclusive, blocking, wait-forever acquisition with the
// default lock extension and no stale recovery. Defaults are filled at
// Acquire time, never mutated on the caller's copy.
package nfslock

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects shared (read) or exclusive (write) claims.
type Mode int

const (
	ModeExclusive Mode = iota
	ModeShared
)

func (m Mode) String() string {
	if m == ModeShared {
		return "shared"
	}
	return "exclusive"
}

// defaultExt holds the process-wide lock extension. It is read on every
// acquisition that does not override Options.Extension.
var defaultExt atomic.Value

func init() {
	defaultExt.Store(".NFSLock")
}

// DefaultExtension returns the process-wide lock object suffix.
func DefaultExtension() string {
	return defaultExt.Load().(string)
}

// SetDefaultExtension changes the process-wide lock object suffix.
// Intended to be called once at startup, before any locks exist.
// Changing it mid-run only affects subsequently acquired locks;
// existing lock objects keep their original names.
func SetDefaultExtension(ext string) {
	if ext != "" {
		defaultExt.Store(ext)
	}
}

// Options configures one acquisition.
type Options struct {
	Mode         Mode            // ModeExclusive or ModeShared (default exclusive)
	NonBlocking  bool            // single attempt, immediate ErrConflict on contention
	BlockTimeout time.Duration   // wall-clock deadline for blocking acquisition; 0 waits indefinitely
	StaleTimeout time.Duration   // age beyond which a conflicting lock is presumed abandoned; 0 disables recovery
	PollInterval time.Duration   // sleep between blocking attempts (default 1s, jittered)
	Extension    string          // lock object suffix (default DefaultExtension())
	Logger       *zerolog.Logger // acquisition trace logging (default disabled)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPoll
	}
	if o.Extension == "" {
		o.Extension = DefaultExtension()
	}
	if o.Logger == nil {
		o.Logger = nopLogger()
	}
	return o
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
