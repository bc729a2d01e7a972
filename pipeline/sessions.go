package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"resume-matcher/domain"
	"resume-matcher/infrastructure"
)

// Sessions serializes access to each session's envelope. The transport only
// offers load/save of a whole serialized envelope, so read-modify-write
// cycles for the same session must not interleave; a per-session mutex
// registry provides that without coupling sessions to each other.
type Sessions struct {
	store           infrastructure.SessionStore
	inlineTextLimit int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessions(store infrastructure.SessionStore, inlineTextLimit int) *Sessions {
	return &Sessions{
		store:           store,
		inlineTextLimit: inlineTextLimit,
		locks:           make(map[string]*sync.Mutex),
	}
}

func (s *Sessions) Store() infrastructure.SessionStore { return s.store }

func (s *Sessions) lock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *Sessions) dropLock(sessionID string) {
	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()
}

// Update runs fn against the session's envelope under the session lock and
// writes the result back, touching last_touched. With create set, a session
// without a batch gets one lazily; otherwise ErrNoBatch. An error from fn
// aborts the write. A failed save is retried once before surfacing as a
// StorageError.
func (s *Sessions) Update(ctx context.Context, sessionID string, create bool, fn func(env *domain.Envelope) error) (*domain.Envelope, error) {
	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	env, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		if !create {
			return nil, domain.ErrNoBatch
		}
		env = domain.NewEnvelope()
	}

	if err := fn(env); err != nil {
		return nil, err
	}

	env.Touch(time.Now())
	if err := s.store.Save(ctx, sessionID, env); err != nil {
		if err = s.store.Save(ctx, sessionID, env); err != nil {
			var storageErr *domain.StorageError
			if errors.As(err, &storageErr) {
				return nil, err
			}
			return nil, &domain.StorageError{Err: err}
		}
	}
	return env, nil
}

// View loads the envelope without writing anything back. Pure reads must not
// refresh the TTL; only mutating operations count as session activity.
func (s *Sessions) View(ctx context.Context, sessionID string) (*domain.Envelope, error) {
	return s.store.Load(ctx, sessionID)
}

// Remove deletes the envelope and its blobs, and drops the session lock.
func (s *Sessions) Remove(ctx context.Context, sessionID string) error {
	l := s.lock(sessionID)
	l.Lock()
	err := s.store.Delete(ctx, sessionID)
	l.Unlock()
	if err != nil {
		return err
	}
	s.dropLock(sessionID)
	return nil
}

// StoreText attaches extracted text to a resume, spilling it to a blob key
// when it would bloat the envelope past the inline limit (arena+index: the
// envelope keeps only the reference).
func (s *Sessions) StoreText(ctx context.Context, sessionID string, r *domain.Resume, text string) error {
	if s.inlineTextLimit > 0 && len(text) > s.inlineTextLimit {
		if err := s.store.PutBlob(ctx, sessionID, r.ID, text); err != nil {
			return err
		}
		r.TextRef = r.ID
		return nil
	}
	r.Text = text
	return nil
}

// ResolveText returns the resume's extracted text, following the blob
// reference when the text was spilled.
func (s *Sessions) ResolveText(ctx context.Context, sessionID string, r *domain.Resume) (string, error) {
	if r.TextRef != "" {
		return s.store.GetBlob(ctx, sessionID, r.TextRef)
	}
	return r.Text, nil
}
