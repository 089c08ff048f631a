package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/antinvestor/reviewer/internal/githost"
)

// DedupStore guarantees at most one in-flight run per exact
// (unit, revision) pair. TryBegin is the admission gate: true means the
// caller owns the key until End.
type DedupStore interface {
	TryBegin(ctx context.Context, key string) (bool, error)
	End(ctx context.Context, key string) error
}

// dedupKey is the (unit, revision) identity of a run.
func dedupKey(unit githost.Unit, revision githost.Revision) string {
	return fmt.Sprintf("%s/%s#%d@%s", unit.Owner, unit.Repo, unit.Number, revision)
}

// InMemoryDedupStore tracks in-flight runs for a single process.
type InMemoryDedupStore struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewInMemoryDedupStore creates an in-memory dedup store.
func NewInMemoryDedupStore() *InMemoryDedupStore {
	return &InMemoryDedupStore{inflight: make(map[string]struct{})}
}

// TryBegin implements DedupStore.
func (s *InMemoryDedupStore) TryBegin(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[key]; ok {
		return false, nil
	}
	s.inflight[key] = struct{}{}
	return true, nil
}

// End implements DedupStore.
func (s *InMemoryDedupStore) End(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	return nil
}

const (
	redisDedupPrefix     = "review:inflight:"
	defaultRedisDedupTTL = 2 * time.Hour
)

// RedisDedupStore coordinates dedup across replicas. The TTL bounds
// how long a crashed replica can hold a key hostage; it should exceed
// the run deadline.
type RedisDedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedupStore creates a Redis-backed dedup store.
func NewRedisDedupStore(client *redis.Client, ttl time.Duration) *RedisDedupStore {
	if ttl <= 0 {
		ttl = defaultRedisDedupTTL
	}
	return &RedisDedupStore{client: client, ttl: ttl}
}

// TryBegin implements DedupStore.
func (s *RedisDedupStore) TryBegin(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, redisDedupPrefix+key, time.Now().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup acquire: %w", err)
	}
	return ok, nil
}

// End implements DedupStore.
func (s *RedisDedupStore) End(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisDedupPrefix+key).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}
