package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"resume-matcher/domain"
)

// SessionStore is the session transport: one bounded-size serialized batch
// envelope per opaque session id, plus overflow text blobs that share the
// session's lifetime. Implementations enforce the TTL and the envelope size
// ceiling.
type SessionStore interface {
	// Load returns the envelope, or nil when the session has no batch.
	Load(ctx context.Context, sessionID string) (*domain.Envelope, error)
	// Save serializes and writes the envelope, refreshing the TTL.
	Save(ctx context.Context, sessionID string, env *domain.Envelope) error
	// Delete removes the envelope and every blob of the session. Removing
	// an absent session is a no-op.
	Delete(ctx context.Context, sessionID string) error
	// SessionIDs lists the sessions currently holding an envelope.
	SessionIDs(ctx context.Context) ([]string, error)

	PutBlob(ctx context.Context, sessionID, key, text string) error
	GetBlob(ctx context.Context, sessionID, key string) (string, error)
}

// MemoryStore keeps marshaled envelopes in process memory. Storing bytes
// rather than pointers gives the same copy semantics as a real transport:
// a loaded envelope is always a fully-written snapshot, never shared state.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	maxBytes int
	now      func() time.Time

	envelopes map[string]memoryEntry
	blobs     map[string]map[string]string
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration, maxBytes int) *MemoryStore {
	return &MemoryStore{
		ttl:       ttl,
		maxBytes:  maxBytes,
		now:       time.Now,
		envelopes: make(map[string]memoryEntry),
		blobs:     make(map[string]map[string]string),
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*domain.Envelope, error) {
	s.mu.RLock()
	entry, ok := s.envelopes[sessionID]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, nil
	}
	var env domain.Envelope
	if err := json.Unmarshal(entry.data, &env); err != nil {
		return nil, &domain.StorageError{Err: fmt.Errorf("unmarshal envelope: %w", err)}
	}
	return &env, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, env *domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return &domain.StorageError{Err: fmt.Errorf("marshal envelope: %w", err)}
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return &domain.StorageError{Err: domain.ErrEnvelopeTooLarge}
	}
	s.mu.Lock()
	s.envelopes[sessionID] = memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.envelopes, sessionID)
	delete(s.blobs, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SessionIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.envelopes))
	for id := range s.envelopes {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) PutBlob(_ context.Context, sessionID, key, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs[sessionID] == nil {
		s.blobs[sessionID] = make(map[string]string)
	}
	s.blobs[sessionID][key] = text
	return nil
}

func (s *MemoryStore) GetBlob(_ context.Context, sessionID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.blobs[sessionID][key]
	if !ok {
		return "", &domain.StorageError{Err: fmt.Errorf("blob %s not found for session %s", key, sessionID)}
	}
	return text, nil
}
