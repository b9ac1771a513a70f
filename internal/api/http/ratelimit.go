package http

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/inquirydesk/inquiry-service/internal/auth"
	apperrors "github.com/inquirydesk/inquiry-service/pkg/util/errorutil"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ActorRateLimiter applies a token bucket per authenticated caller,
// falling back to the client IP.
type ActorRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastPrune time.Time
	now       func() time.Time
}

// NewActorRateLimiter builds a limiter. A non-positive rps disables it.
func NewActorRateLimiter(rps float64, burst int) *ActorRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ActorRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Handle rejects callers that exceed their bucket.
func (l *ActorRateLimiter) Handle(c *fiber.Ctx) error {
	if l.limit <= 0 {
		return c.Next()
	}
	key := "ip:" + c.IP()
	if principal, ok := auth.PrincipalFromContext(c); ok {
		key = "user:" + principal.UserID
	}
	if !l.allow(key) {
		return apperrors.NewRateLimited()
	}
	return c.Next()
}

func (l *ActorRateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > limiterIdleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastPrune = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
