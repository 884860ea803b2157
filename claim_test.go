package nfslock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testPaths(t *testing.T) (target, lockpath string) {
	t.Helper()
	target = filepath.Join(t.TempDir(), "data")
	return target, lockPath(target, ".NFSLock")
}

func TestClaimExclusive(t *testing.T) {
	target, lp := testPaths(t)

	token := attemptToken(target, ".NFSLock")
	if err := writeToken(token, newOwnerRecord(ModeExclusive, "h", 1)); err != nil {
		t.Fatal(err)
	}
	if err := claimExclusive(lp, token); err != nil {
		t.Fatalf("claim on free lock: %v", err)
	}

	n, err := linkCount(lp)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("lock object link count = %d, want 2", n)
	}

	// A second attempt must observe a conflict.
	token2 := attemptToken(target, ".NFSLock")
	if err := writeToken(token2, newOwnerRecord(ModeExclusive, "h", 2)); err != nil {
		t.Fatal(err)
	}
	if err := claimExclusive(lp, token2); !errors.Is(err, ErrConflict) {
		t.Fatalf("claim on held lock = %v, want ErrConflict", err)
	}
	os.Remove(token2)
}

func TestClaimExclusiveLostReply(t *testing.T) {
	// Simulate NFS executing the LINK server-side and losing the
	// acknowledgement: the link is already in place when the claim call
	// reports failure. The link-count recheck must report success, not
	// conflict.
	target, lp := testPaths(t)

	token := attemptToken(target, ".NFSLock")
	if err := writeToken(token, newOwnerRecord(ModeExclusive, "h", 1)); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(token, lp); err != nil {
		t.Fatal(err)
	}

	if err := claimExclusive(lp, token); err != nil {
		t.Fatalf("lost-reply claim = %v, want success via link count", err)
	}
}

func TestClaimSharedCreatesAndJoins(t *testing.T) {
	target, lp := testPaths(t)

	tokenA := attemptToken(target, ".NFSLock")
	if err := claimShared(lp, tokenA, newOwnerRecord(ModeShared, "h", 1)); err != nil {
		t.Fatalf("first shared claim: %v", err)
	}
	tokenB := attemptToken(target, ".NFSLock")
	if err := claimShared(lp, tokenB, newOwnerRecord(ModeShared, "h", 2)); err != nil {
		t.Fatalf("second shared claim: %v", err)
	}

	n, err := linkCount(lp)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("link count with two shared holders = %d, want 3", n)
	}

	// Both tokens are names for the lock object's inode.
	for _, tok := range []string{tokenA, tokenB} {
		if !linkedTo(lp, tok) {
			t.Errorf("token %q not linked to lock object", tok)
		}
	}
}

func TestClaimSharedJoinLostReply(t *testing.T) {
	target, lp := testPaths(t)

	tokenA := attemptToken(target, ".NFSLock")
	if err := claimShared(lp, tokenA, newOwnerRecord(ModeShared, "h", 1)); err != nil {
		t.Fatal(err)
	}

	// The join link is applied server-side before the claim call runs.
	tokenB := attemptToken(target, ".NFSLock")
	if err := os.Link(lp, tokenB); err != nil {
		t.Fatal(err)
	}
	if err := claimShared(lp, tokenB, newOwnerRecord(ModeShared, "h", 2)); err != nil {
		t.Fatalf("lost-reply join = %v, want success", err)
	}
}

func TestClaimSharedRefusedByExclusive(t *testing.T) {
	target, lp := testPaths(t)

	token := attemptToken(target, ".NFSLock")
	if err := writeToken(token, newOwnerRecord(ModeExclusive, "h", 1)); err != nil {
		t.Fatal(err)
	}
	if err := claimExclusive(lp, token); err != nil {
		t.Fatal(err)
	}

	shared := attemptToken(target, ".NFSLock")
	if err := claimShared(lp, shared, newOwnerRecord(ModeShared, "h", 2)); !errors.Is(err, ErrConflict) {
		t.Fatalf("shared claim on exclusive lock = %v, want ErrConflict", err)
	}

	// The refused join must back out its link.
	if n, err := linkCount(lp); err != nil || n != 2 {
		t.Errorf("link count after refused join = %d (%v), want 2", n, err)
	}
	if _, err := os.Stat(shared); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("refused shared token left behind: %v", err)
	}
}

func TestClaimExclusiveRefusedByShared(t *testing.T) {
	target, lp := testPaths(t)

	shared := attemptToken(target, ".NFSLock")
	if err := claimShared(lp, shared, newOwnerRecord(ModeShared, "h", 1)); err != nil {
		t.Fatal(err)
	}

	token := attemptToken(target, ".NFSLock")
	if err := writeToken(token, newOwnerRecord(ModeExclusive, "h", 2)); err != nil {
		t.Fatal(err)
	}
	if err := claimExclusive(lp, token); !errors.Is(err, ErrConflict) {
		t.Fatalf("exclusive claim on shared lock = %v, want ErrConflict", err)
	}
}
