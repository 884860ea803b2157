// Owner records and the in-process owner registry.
//
// Every claim token hard-linked to a lock object shares its inode, so
// the inode's content is visible under all names at once. The content
// is a sequence of single-line JSON owner records, one appended per
// registered holder. The hard-link count is the authoritative holder
// signal; the record lines are advisory — they let any host see who
// claimed the lock, in which mode, and when. A crashed writer can leave
// a torn trailing line, so decoding skips anything that does not parse.
package nfslock

import (
	"bytes"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Mode tags recorded on disk.
const (
	modeTagExclusive = "ex"
	modeTagShared    = "sh"
)

func modeTag(m Mode) string {
	if m == ModeShared {
		return modeTagShared
	}
	return modeTagExclusive
}

func tagMode(tag string) (Mode, bool) {
	switch tag {
	case modeTagExclusive:
		return ModeExclusive, true
	case modeTagShared:
		return ModeShared, true
	}
	return ModeExclusive, false
}

// ownerRecord is one line in a lock inode's content.
type ownerRecord struct {
	Mode string `json:"_m"`  // "ex" or "sh"
	Host string `json:"_h"`  // registering host
	PID  int    `json:"_p"`  // registering process
	Time int64  `json:"_ts"` // unix milliseconds at registration
}

func newOwnerRecord(m Mode, host string, pid int) ownerRecord {
	return ownerRecord{Mode: modeTag(m), Host: host, PID: pid, Time: time.Now().UnixMilli()}
}

// encode renders the record as a single newline-terminated JSON line.
func (r ownerRecord) encode() []byte {
	b, _ := json.Marshal(r)
	return append(b, '\n')
}

// decodeOwners parses the record lines in data, skipping torn or
// foreign lines.
func decodeOwners(data []byte) []ownerRecord {
	var recs []ownerRecord
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r ownerRecord
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		if _, ok := tagMode(r.Mode); !ok {
			continue
		}
		recs = append(recs, r)
	}
	return recs
}

// readMode returns the claim regime recorded in the inode reachable at
// path. The first record is the creator's and fixes the regime. When no
// record parses the fallback is exclusive — the safe direction, since
// an unreadable regime then refuses shared joiners.
func readMode(path string) Mode {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModeExclusive
	}
	recs := decodeOwners(data)
	if len(recs) == 0 {
		return ModeExclusive
	}
	m, _ := tagMode(recs[0].Mode)
	return m
}

// appendRecord adds an owner line to the inode at path. The write also
// refreshes the inode mtime, which keeps an actively joined lock from
// looking stale.
func appendRecord(path string, r ownerRecord) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.Write(r.encode())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

// ownerKey identifies one holder.
type ownerKey struct {
	host string
	pid  int
}

// registry tracks the owner records a handle is responsible for and the
// claim token backing each one. All updates are serialized by its
// mutex so concurrent add/remove calls from goroutines or signal
// handlers cannot lose registrations.
type registry struct {
	mu     sync.Mutex
	tokens map[ownerKey]string
}

func newRegistry() *registry {
	return &registry{tokens: make(map[ownerKey]string)}
}

// add records key with its token path. Returns false if the key was
// already registered, which callers treat as idempotent success.
func (r *registry) add(k ownerKey, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[k]; ok {
		return false
	}
	r.tokens[k] = token
	return true
}

// remove drops key and returns the token path it was registered with.
func (r *registry) remove(k ownerKey) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[k]
	if ok {
		delete(r.tokens, k)
	}
	return token, ok
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// reset drops all in-memory registrations without touching the
// filesystem. Used by Release after the handle's own token is gone:
// remaining entries belong to other processes.
func (r *registry) reset() {
	r.mu.Lock()
	r.tokens = make(map[ownerKey]string)
	r.mu.Unlock()
}
