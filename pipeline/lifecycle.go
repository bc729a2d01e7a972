package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Lifecycle enforces the per-session TTL. A periodic sweep tears down
// expired envelopes together with their staged files; an explicit clear from
// the client converges on the same Teardown.
type Lifecycle struct {
	sessions   *Sessions
	ttl        time.Duration
	stagingDir string
	logger     *zap.Logger
	now        func() time.Time
}

func NewLifecycle(sessions *Sessions, ttl time.Duration, stagingDir string, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		sessions:   sessions,
		ttl:        ttl,
		stagingDir: stagingDir,
		logger:     logger,
		now:        time.Now,
	}
}

// Teardown removes the session's envelope, blobs and staging directory.
// Idempotent: tearing down an absent session is a no-op.
func (l *Lifecycle) Teardown(ctx context.Context, sessionID string) error {
	if err := l.sessions.Remove(ctx, sessionID); err != nil {
		return err
	}
	dir := filepath.Join(l.stagingDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	l.logger.Debug("session torn down", zap.String("session_id", sessionID))
	return nil
}

// Sweep tears down every expired session and reclaims staging directories
// whose envelope already vanished (redis expiry beats the sweeper there).
// Returns the number of sessions removed.
func (l *Lifecycle) Sweep(ctx context.Context) (int, error) {
	ids, err := l.sessions.Store().SessionIDs(ctx)
	if err != nil {
		return 0, err
	}

	live := make(map[string]bool, len(ids))
	removed := 0
	now := l.now()
	for _, id := range ids {
		env, err := l.sessions.View(ctx, id)
		if err != nil {
			l.logger.Warn("sweep: load failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if env != nil && !env.Expired(now, l.ttl) {
			live[id] = true
			continue
		}
		if err := l.Teardown(ctx, id); err != nil {
			l.logger.Warn("sweep: teardown failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		removed++
	}

	l.sweepOrphanedStaging(live)

	if removed > 0 {
		l.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
	return removed, nil
}

// sweepOrphanedStaging deletes staging directories with no live envelope,
// so staged files never outlive their session.
func (l *Lifecycle) sweepOrphanedStaging(live map[string]bool) {
	entries, err := os.ReadDir(l.stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("sweep: reading staging dir failed", zap.Error(err))
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || live[entry.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.stagingDir, entry.Name())); err != nil {
			l.logger.Warn("sweep: removing orphaned staging dir failed",
				zap.String("session_id", entry.Name()), zap.Error(err))
		}
	}
}

// Start runs the sweep on a fixed interval until ctx is cancelled.
func (l *Lifecycle) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := l.Sweep(ctx); err != nil {
					l.logger.Error("background sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// TTL exposes the configured session lifetime.
func (l *Lifecycle) TTL() time.Duration { return l.ttl }
