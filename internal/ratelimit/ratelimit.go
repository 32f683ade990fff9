package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"datachat-backend/internal/config"
	"datachat-backend/internal/logger"
)

// Decision is the outcome of one check-and-increment call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Store is an atomic per-key counter with a window TTL. Implementations
// must be safe for concurrent use; two requests for the same key must never
// both observe the last free slot.
type Store interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// RedisStore counts requests in a shared redis instance so accounting holds
// across multiple worker processes.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opt)}, nil
}

// NewRedisStoreFromClient wraps an existing client (used in tests).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}
	if count > int64(limit) {
		// Put the counter back so a throttled call leaves it unchanged.
		s.client.Decr(ctx, key)
		retry := window
		if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retry = ttl
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Remaining: limit - int(count)}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Limiter applies per-endpoint-class policies on top of a Store and decides
// what to do when the store itself is unreachable.
type Limiter struct {
	store    Store
	policies map[string]config.RatePolicy
	failOpen bool
	log      *logger.Logger
}

func NewLimiter(store Store, policies map[string]config.RatePolicy, failOpen bool) *Limiter {
	return &Limiter{
		store:    store,
		policies: policies,
		failOpen: failOpen,
		log:      logger.New("ratelimit"),
	}
}

// Check consumes one slot for (clientID, endpoint). When the store errors,
// the configured policy decides: fail-open admits the request, fail-closed
// throttles it with a full-window retry hint.
func (l *Limiter) Check(ctx context.Context, clientID, endpoint string) (Decision, error) {
	policy, ok := l.policies[endpoint]
	if !ok || policy.Requests <= 0 || policy.Window <= 0 {
		return Decision{}, fmt.Errorf("no rate policy for endpoint %q", endpoint)
	}
	key := fmt.Sprintf("ratelimit:%s:%s", endpoint, clientID)
	decision, err := l.store.CheckAndIncrement(ctx, key, policy.Requests, policy.Window)
	if err != nil {
		l.log.Error(clientID, "", "rate limit store unreachable", map[string]any{
			"endpoint": endpoint, "fail_open": l.failOpen, "error": err.Error(),
		})
		if l.failOpen {
			return Decision{Allowed: true}, nil
		}
		return Decision{Allowed: false, RetryAfter: policy.Window}, nil
	}
	return decision, nil
}
