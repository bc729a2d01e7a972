package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"resume-matcher/infrastructure"
)

func newTestLifecycle(t *testing.T, ttl time.Duration) (*Lifecycle, *Sessions, string) {
	t.Helper()
	store := infrastructure.NewMemoryStore(24*time.Hour, 1<<20)
	sessions := NewSessions(store, 16*1024)
	staging := t.TempDir()
	return NewLifecycle(sessions, ttl, staging, zap.NewNop()), sessions, staging
}

func TestTeardownRemovesSessionAndStaging(t *testing.T) {
	lc, sessions, staging := newTestLifecycle(t, time.Hour)
	intake := NewIntake(sessions, &stubExtractor{}, 10, 3*1024*1024, staging, zap.NewNop())
	ctx := context.Background()

	if _, err := intake.Admit(ctx, "sess", []FileUpload{upload("a.txt", "x")}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	sessionDir := filepath.Join(staging, "sess")
	if err := os.MkdirAll(filepath.Join(sessionDir, "uploads"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := lc.Teardown(ctx, "sess"); err != nil {
		t.Fatalf("teardown: %v", err)
	}

	env, err := sessions.View(ctx, "sess")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if env != nil {
		t.Fatalf("envelope survived teardown")
	}
	if _, err := os.Stat(sessionDir); !os.IsNotExist(err) {
		t.Fatalf("staging dir survived teardown: %v", err)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, time.Hour)
	ctx := context.Background()

	for n := 0; n < 2; n++ {
		if err := lc.Teardown(ctx, "never-existed"); err != nil {
			t.Fatalf("teardown call %d: %v", n+1, err)
		}
	}
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	lc, sessions, staging := newTestLifecycle(t, time.Hour)
	intake := NewIntake(sessions, &stubExtractor{}, 10, 3*1024*1024, staging, zap.NewNop())
	ctx := context.Background()

	if _, err := intake.Admit(ctx, "stale", []FileUpload{upload("a.txt", "x")}); err != nil {
		t.Fatalf("admit stale: %v", err)
	}
	if _, err := intake.Admit(ctx, "fresh", []FileUpload{upload("a.txt", "x")}); err != nil {
		t.Fatalf("admit fresh: %v", err)
	}

	// Backdate the stale session past the TTL; the fresh one keeps its
	// recent last_touched.
	env, err := sessions.View(ctx, "stale")
	if err != nil || env == nil {
		t.Fatalf("load stale: %v", err)
	}
	env.LastTouched = time.Now().Add(-2 * time.Hour)
	if err := sessions.Store().Save(ctx, "stale", env); err != nil {
		t.Fatalf("backdate stale: %v", err)
	}

	removed, err := lc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed < 1 {
		t.Fatalf("sweep removed %d sessions, want at least 1", removed)
	}

	if env, _ := sessions.View(ctx, "stale"); env != nil {
		t.Fatalf("expired session survived the sweep")
	}
	if env, _ := sessions.View(ctx, "fresh"); env == nil {
		t.Fatalf("live session was swept")
	}
}

func TestSweepReclaimsOrphanedStaging(t *testing.T) {
	lc, _, staging := newTestLifecycle(t, time.Hour)
	ctx := context.Background()

	orphan := filepath.Join(staging, "gone-session", "uploads")
	if err := os.MkdirAll(orphan, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(orphan, "leftover.pdf"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := lc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := os.Stat(filepath.Join(staging, "gone-session")); !os.IsNotExist(err) {
		t.Fatalf("orphaned staging dir survived the sweep: %v", err)
	}
}

func TestSweepKeepsLiveSessions(t *testing.T) {
	lc, sessions, staging := newTestLifecycle(t, time.Hour)
	intake := NewIntake(sessions, &stubExtractor{}, 10, 3*1024*1024, staging, zap.NewNop())
	ctx := context.Background()

	if _, err := intake.Admit(ctx, "live", []FileUpload{upload("a.txt", "x")}); err != nil {
		t.Fatalf("admit: %v", err)
	}

	removed, err := lc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("sweep removed %d live sessions, want 0", removed)
	}
	if env, _ := sessions.View(ctx, "live"); env == nil {
		t.Fatalf("live session vanished")
	}
}
