package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"resume-matcher/domain"
	"resume-matcher/infrastructure"
)

// flakyStore fails the first failSaves writes and counts every attempt.
type flakyStore struct {
	infrastructure.SessionStore
	failSaves int
	saves     int
}

func (s *flakyStore) Save(ctx context.Context, sessionID string, env *domain.Envelope) error {
	s.saves++
	if s.saves <= s.failSaves {
		return &domain.StorageError{Err: errors.New("write refused")}
	}
	return s.SessionStore.Save(ctx, sessionID, env)
}

func TestUpdateRetriesSaveOnce(t *testing.T) {
	store := &flakyStore{
		SessionStore: infrastructure.NewMemoryStore(time.Hour, 1<<20),
		failSaves:    1,
	}
	sessions := NewSessions(store, 16*1024)
	ctx := context.Background()

	env, err := sessions.Update(ctx, "sess", true, func(env *domain.Envelope) error {
		env.Batch.JobDescription = "survives one write hiccup"
		return nil
	})
	if err != nil {
		t.Fatalf("update should absorb a single save failure: %v", err)
	}
	if env == nil {
		t.Fatalf("expected envelope")
	}
	if store.saves != 2 {
		t.Fatalf("made %d save attempts, want 2", store.saves)
	}

	loaded, err := sessions.View(ctx, "sess")
	if err != nil || loaded == nil {
		t.Fatalf("retried write did not land: %v", err)
	}
	if loaded.Batch.JobDescription != "survives one write hiccup" {
		t.Fatalf("retried write lost the mutation")
	}
}

func TestUpdateSurfacesStorageErrorAfterRetry(t *testing.T) {
	store := &flakyStore{
		SessionStore: infrastructure.NewMemoryStore(time.Hour, 1<<20),
		failSaves:    2,
	}
	sessions := NewSessions(store, 16*1024)

	_, err := sessions.Update(context.Background(), "sess", true, func(env *domain.Envelope) error {
		return nil
	})
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError after two failed saves, got %v", err)
	}
	if store.saves != 2 {
		t.Fatalf("made %d save attempts, want exactly 2", store.saves)
	}
}
