// Lock object and claim token naming.
//
// The lock object lives next to the target as <target><extension>.
// Claim tokens share the directory and embed a 16 hex character digest
// of the absolute target path, the local hostname, a pid and — for
// acquisition attempts — a random nonce, so no two concurrent attempts
// collide on a name even when the same process retries. Owner tokens
// created during lock hand-off omit the nonce on purpose: parent and
// child derive the same name for the same pid, which is what makes
// ownership propagation idempotent.
package nfslock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// digest returns a 16 hex character identifier for a target path.
// Token names carry the digest instead of the target's base name so
// they stay within NAME_MAX even for long filenames.
func digest(target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return fmt.Sprintf("%016x", xxh3.HashString(abs))
}

// hostname returns the local host identity recorded in owner records
// and token names. Separators are stripped so the result is always a
// single path element.
func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		h = "localhost"
	}
	h = strings.ReplaceAll(h, "/", "_")
	return strings.ReplaceAll(h, string(filepath.Separator), "_")
}

// nonce returns a short random disambiguator for one attempt.
func nonce() string {
	return uuid.NewString()[:8]
}

// lockPath derives the lock object path for a target.
func lockPath(target, ext string) string {
	return target + ext
}

// attemptToken derives a unique claim token path for one acquisition
// attempt. Each retry derives a fresh one; tokens from failed attempts
// are never reused.
func attemptToken(target, ext string) string {
	name := fmt.Sprintf(".%s.%s.%d.%s%s", digest(target), hostname(), os.Getpid(), nonce(), ext)
	return filepath.Join(filepath.Dir(target), name)
}

// ownerToken derives the deterministic token path registering pid as an
// additional holder of target's lock.
func ownerToken(target, ext, host string, pid int) string {
	name := fmt.Sprintf(".%s.%s.%d%s", digest(target), host, pid, ext)
	return filepath.Join(filepath.Dir(target), name)
}

// uncacheToken derives a throwaway hard link name used by Uncache.
func uncacheToken(path string) string {
	name := fmt.Sprintf(".%s.uncache.%s", digest(path), nonce())
	return filepath.Join(filepath.Dir(path), name)
}
