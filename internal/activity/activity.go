// Package activity tracks which conversations still have a live
// consumer. The executor polls the flag at iteration boundaries; the
// transport flips it off when the client disconnects or issues a stop.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the conversation liveness flag store.
type Store interface {
	// Active reports whether the conversation still has a live consumer.
	Active(ctx context.Context, conversationID string) bool
	// SetActive marks the conversation live.
	SetActive(ctx context.Context, conversationID string) error
	// Deactivate clears the flag.
	Deactivate(ctx context.Context, conversationID string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	active map[string]struct{}
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{active: make(map[string]struct{})}
}

func (s *MemoryStore) Active(ctx context.Context, conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[conversationID]
	return ok
}

func (s *MemoryStore) SetActive(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[conversationID] = struct{}{}
	return nil
}

func (s *MemoryStore) Deactivate(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, conversationID)
	return nil
}

// RedisStore keeps liveness flags in redis so multiple instances can
// observe a stop issued on any of them. Flags carry a TTL as a safety
// net against instances dying without cleanup.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a RedisStore. ttl bounds how long a flag can
// outlive its run; zero means one hour.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "activity_store")),
	}
}

func key(conversationID string) string {
	return "conversation:active:" + conversationID
}

// Active treats redis errors as "still active": a flaky flag store must
// not kill healthy runs.
func (s *RedisStore) Active(ctx context.Context, conversationID string) bool {
	n, err := s.client.Exists(ctx, key(conversationID)).Result()
	if err != nil {
		s.logger.Warn("liveness check failed, assuming active",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return true
	}
	return n > 0
}

func (s *RedisStore) SetActive(ctx context.Context, conversationID string) error {
	return s.client.Set(ctx, key(conversationID), "1", s.ttl).Err()
}

func (s *RedisStore) Deactivate(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, key(conversationID)).Err()
}
