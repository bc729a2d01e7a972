package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"resume-matcher/domain"
)

const redisKeyPrefix = "resume-matcher:sess:"

// RedisStore is the redis-backed session transport. Envelope and blob keys
// share the session TTL, so an idle session vanishes from redis on its own;
// the lifecycle sweep still runs to reclaim staged files on disk.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	maxBytes int
}

func NewRedisStore(addr, password string, db int, ttl time.Duration, maxBytes int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb, ttl: ttl, maxBytes: maxBytes}
}

func envelopeKey(sessionID string) string {
	return redisKeyPrefix + sessionID + ":env"
}

func blobKey(sessionID, key string) string {
	return redisKeyPrefix + sessionID + ":blob:" + key
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*domain.Envelope, error) {
	val, err := s.client.Get(ctx, envelopeKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Err: err}
	}
	var env domain.Envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, &domain.StorageError{Err: fmt.Errorf("unmarshal envelope: %w", err)}
	}
	return &env, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, env *domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return &domain.StorageError{Err: fmt.Errorf("marshal envelope: %w", err)}
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return &domain.StorageError{Err: domain.ErrEnvelopeTooLarge}
	}
	if err := s.client.Set(ctx, envelopeKey(sessionID), data, s.ttl).Err(); err != nil {
		return &domain.StorageError{Err: err}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	keys, err := s.scanKeys(ctx, redisKeyPrefix+sessionID+":*")
	if err != nil {
		return &domain.StorageError{Err: err}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return &domain.StorageError{Err: err}
	}
	return nil
}

func (s *RedisStore) SessionIDs(ctx context.Context) ([]string, error) {
	keys, err := s.scanKeys(ctx, redisKeyPrefix+"*:env")
	if err != nil {
		return nil, &domain.StorageError{Err: err}
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(k, redisKeyPrefix), ":env")
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *RedisStore) PutBlob(ctx context.Context, sessionID, key, text string) error {
	if err := s.client.Set(ctx, blobKey(sessionID, key), text, s.ttl).Err(); err != nil {
		return &domain.StorageError{Err: err}
	}
	return nil
}

func (s *RedisStore) GetBlob(ctx context.Context, sessionID, key string) (string, error) {
	val, err := s.client.Get(ctx, blobKey(sessionID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", &domain.StorageError{Err: fmt.Errorf("blob %s not found for session %s", key, sessionID)}
	}
	if err != nil {
		return "", &domain.StorageError{Err: err}
	}
	return val, nil
}

func (s *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
