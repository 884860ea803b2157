// Command nfslock runs a command while holding an advisory lock on a
// file shared over NFS, in the spirit of flock(1) but using the
// hard-link protocol that works where flock does not.
//
// Usage:
//
//	nfslock [flags] FILE CMD [ARGS...]
//	nfslock -uncache FILE
//
// The lock is acquired on FILE, CMD runs with the handle exported to
// its environment (an nfslock-aware child may Adopt it), and the lock
// is released when CMD exits. Exit status is CMD's own; 1 means the
// lock could not be acquired, 2 a usage or filesystem error.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/jpl-au/nfslock"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		shared   = flag.Bool("shared", false, "acquire a shared lock instead of exclusive")
		nonblock = flag.Bool("nonblock", false, "fail immediately instead of waiting")
		timeout  = flag.Duration("timeout", 0, "give up waiting after this long (0 waits forever)")
		stale    = flag.Duration("stale", 0, "steal conflicting locks older than this (0 never steals)")
		poll     = flag.Duration("poll", 0, "sleep between blocking attempts (default 1s)")
		ext      = flag.String("ext", "", "lock object suffix (default .NFSLock)")
		uncache  = flag.Bool("uncache", false, "invalidate the client cache for FILE and exit")
		verbose  = flag.Bool("verbose", false, "log acquisition progress")
	)
	flag.Usage = usage
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	args := flag.Args()

	if *uncache {
		if len(args) != 1 {
			usage()
			return 2
		}
		if err := nfslock.Uncache(args[0]); err != nil {
			logger.Error().Err(err).Str("path", args[0]).Msg("uncache failed")
			return 2
		}
		return 0
	}

	if len(args) < 2 {
		usage()
		return 2
	}
	target := args[0]

	opts := nfslock.Options{
		NonBlocking:  *nonblock,
		BlockTimeout: *timeout,
		StaleTimeout: *stale,
		PollInterval: *poll,
		Extension:    *ext,
		Logger:       &logger,
	}
	if *shared {
		opts.Mode = nfslock.ModeShared
	}

	lock, err := nfslock.Acquire(target, opts)
	if err != nil {
		if errors.Is(err, nfslock.ErrConflict) || errors.Is(err, nfslock.ErrTimeout) {
			logger.Warn().Err(nfslock.LastError()).Msg("lock busy")
			return 1
		}
		logger.Error().Err(err).Str("path", target).Msg("acquire failed")
		return 2
	}
	defer lock.Release()

	cmd := exec.Command(args[1], args[2:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	pid, err := lock.SpawnChild(cmd)
	if err != nil {
		logger.Error().Err(err).Str("cmd", args[1]).Msg("start failed")
		return 2
	}
	logger.Debug().Int("pid", pid).Str("lock", lock.LockPath()).Msg("command running under lock")

	waitErr := cmd.Wait()

	// Reap the child's registration; a no-op when the child adopted the
	// handle and released it itself.
	if err := lock.RemoveOwner(pid); err != nil && !errors.Is(err, nfslock.ErrNotHeld) {
		logger.Warn().Err(err).Int("pid", pid).Msg("remove child owner failed")
	}
	if err := lock.Release(); err != nil {
		logger.Warn().Err(err).Msg("release failed")
	}

	if waitErr != nil {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			return ee.ExitCode()
		}
		logger.Error().Err(waitErr).Msg("wait failed")
		return 2
	}
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  nfslock [flags] FILE CMD [ARGS...]   run CMD while holding FILE's lock
  nfslock -uncache FILE                drop the client cache for FILE

flags:
`)
	flag.PrintDefaults()
}
