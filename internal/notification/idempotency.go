package notification

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/clock"
)

// Guard records delivered notifications so a redelivered
// (ticket, message) pair is dropped.
type Guard interface {
	// Seen reports whether key was already marked delivered.
	Seen(ctx context.Context, key string) (bool, error)
	// MarkDelivered records key. It reports false when another worker
	// marked it first.
	MarkDelivered(ctx context.Context, key string) (bool, error)
}

const idempotencyPrefix = "inquiry:notified:"

// RedisGuard shares delivery marks across replicas with SETNX.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGuard builds a guard whose marks expire after ttl.
func NewRedisGuard(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl, logger: logger}
}

func (g *RedisGuard) Seen(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisGuard) MarkDelivered(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, idempotencyPrefix+key, "1", g.ttl).Result()
	if err != nil {
		g.logger.Warn("failed to record notification delivery", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return ok, nil
}

// MemoryGuard keeps delivery marks in process.
type MemoryGuard struct {
	mu    sync.Mutex
	marks map[string]time.Time
	ttl   time.Duration
	clock clock.Clock
}

// NewMemoryGuard builds an in-process guard.
func NewMemoryGuard(ttl time.Duration, clk clock.Clock) *MemoryGuard {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryGuard{marks: make(map[string]time.Time), ttl: ttl, clock: clk}
}

func (g *MemoryGuard) Seen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.liveLocked(key), nil
}

func (g *MemoryGuard) MarkDelivered(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.liveLocked(key) {
		return false, nil
	}
	g.marks[key] = g.clock.Now()
	return true, nil
}

func (g *MemoryGuard) liveLocked(key string) bool {
	at, ok := g.marks[key]
	if !ok {
		return false
	}
	if g.ttl > 0 && g.clock.Now().Sub(at) >= g.ttl {
		delete(g.marks, key)
		return false
	}
	return true
}
