package nfslock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockPath(t *testing.T) {
	if got := lockPath("/mnt/share/data", ".NFSLock"); got != "/mnt/share/data.NFSLock" {
		t.Errorf("lockPath = %q", got)
	}
	if got := lockPath("rel/file", ".Other"); got != "rel/file.Other" {
		t.Errorf("lockPath = %q", got)
	}
}

func TestDigest(t *testing.T) {
	d := digest("/mnt/share/data")
	if len(d) != 16 {
		t.Fatalf("digest length = %d, want 16", len(d))
	}
	if d != digest("/mnt/share/data") {
		t.Error("digest is not stable for the same path")
	}
	if d == digest("/mnt/share/other") {
		t.Error("digest collides for different paths")
	}
}

func TestAttemptTokenUnique(t *testing.T) {
	target := filepath.Join(t.TempDir(), "data")
	a := attemptToken(target, ".NFSLock")
	b := attemptToken(target, ".NFSLock")
	if a == b {
		t.Fatalf("two attempts derived the same token name %q", a)
	}
	for _, tok := range []string{a, b} {
		if filepath.Dir(tok) != filepath.Dir(target) {
			t.Errorf("token %q is not in the target's directory", tok)
		}
		if !strings.HasSuffix(tok, ".NFSLock") {
			t.Errorf("token %q missing lock extension", tok)
		}
		if !strings.Contains(tok, digest(target)) {
			t.Errorf("token %q missing target digest", tok)
		}
	}
}

func TestOwnerTokenDeterministic(t *testing.T) {
	target := filepath.Join(t.TempDir(), "data")
	a := ownerToken(target, ".NFSLock", "hostA", 1234)
	b := ownerToken(target, ".NFSLock", "hostA", 1234)
	if a != b {
		t.Fatalf("owner token not deterministic: %q vs %q", a, b)
	}
	if a == ownerToken(target, ".NFSLock", "hostA", 1235) {
		t.Error("owner tokens collide across pids")
	}
	if a == ownerToken(target, ".NFSLock", "hostB", 1234) {
		t.Error("owner tokens collide across hosts")
	}
}

func TestHostname(t *testing.T) {
	h := hostname()
	if h == "" {
		t.Fatal("empty hostname")
	}
	if strings.ContainsRune(h, os.PathSeparator) || strings.Contains(h, "/") {
		t.Errorf("hostname %q contains a path separator", h)
	}
}
