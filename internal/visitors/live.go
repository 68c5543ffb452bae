package visitors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LiveUniqueSet keeps an incremental set of visitor fingerprints per calendar day.
// It is an optimization only: the SQL recompute in daily_stats is authoritative and the
// reconciliation job reports any drift between the two.
type LiveUniqueSet interface {
	Add(ctx context.Context, day, fingerprint string) error
	Count(ctx context.Context, day string) (int64, error)
	Close() error
}

// TTLLiveUniqueDaily keeps a day's set around long enough to cover the reporting window.
const TTLLiveUniqueDaily = 8 * 24 * time.Hour

const keyLiveUniqueDaily = "%s:visitors:unique:daily:%s" // metalise-production:visitors:unique:daily:2024-01-15

// RedisUniqueSet stores the per-day sets in Redis.
type RedisUniqueSet struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisUniqueSet connects to Redis and verifies the connection.
func NewRedisUniqueSet(redisURL, environment string) (*RedisUniqueSet, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = 0
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisUniqueSet{rdb: rdb, prefix: "metalise-" + environment}, nil
}

func (s *RedisUniqueSet) key(day string) string {
	return fmt.Sprintf(keyLiveUniqueDaily, s.prefix, day)
}

// Add records the fingerprint in the day's set.
func (s *RedisUniqueSet) Add(ctx context.Context, day, fingerprint string) error {
	key := s.key(day)
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, fingerprint)
	pipe.Expire(ctx, key, TTLLiveUniqueDaily)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add live unique visitor: %w", err)
	}
	return nil
}

// Count returns the cardinality of the day's set, 0 when the day has no visits.
func (s *RedisUniqueSet) Count(ctx context.Context, day string) (int64, error) {
	n, err := s.rdb.SCard(ctx, s.key(day)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count live unique visitors: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection
func (s *RedisUniqueSet) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}

// MemoryUniqueSet is the in-process LiveUniqueSet used when no Redis URL is configured.
type MemoryUniqueSet struct {
	mu   sync.Mutex
	days map[string]map[string]struct{}
}

func NewMemoryUniqueSet() *MemoryUniqueSet {
	return &MemoryUniqueSet{days: make(map[string]map[string]struct{})}
}

func (s *MemoryUniqueSet) Add(_ context.Context, day, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.days[day]
	if !ok {
		set = make(map[string]struct{})
		s.days[day] = set
	}
	set[fingerprint] = struct{}{}
	return nil
}

func (s *MemoryUniqueSet) Count(_ context.Context, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.days[day])), nil
}

// Forget drops every day strictly before the given one.
func (s *MemoryUniqueSet) Forget(before string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for day := range s.days {
		if day < before {
			delete(s.days, day)
		}
	}
}

func (s *MemoryUniqueSet) Close() error {
	return nil
}
