package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultGuardTTL bounds how long an abandoned submission blocks its key.
const DefaultGuardTTL = 5 * time.Minute

// Guard debounces duplicate submissions of the same operation.
type Guard interface {
	// Acquire fails with ErrOperationInFlight while key is held. release is
	// idempotent.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type MemoryGuard struct {
	mu    sync.Mutex
	seq   uint64
	ttl   time.Duration
	held  map[string]memoryLease
	nowFn func() time.Time
}

type memoryLease struct {
	token   uint64
	expires time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &MemoryGuard{ttl: ttl, held: make(map[string]memoryLease), nowFn: time.Now}
}

func (g *MemoryGuard) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFn()
	if l, ok := g.held[key]; ok && now.Before(l.expires) {
		return nil, fmt.Errorf("%s: %w", key, ErrOperationInFlight)
	}
	g.seq++
	token := g.seq
	g.held[key] = memoryLease{token: token, expires: now.Add(g.ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if l, ok := g.held[key]; ok && l.token == token {
				delete(g.held, key)
			}
			g.mu.Unlock()
		})
	}, nil
}

// Deletes the key only while it still holds our token, so an expired lease
// never releases its successor.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares in-flight state between processes.
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(rdb *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	if prefix == "" {
		prefix = "microloan:inflight:"
	}
	return &RedisGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	k := g.prefix + key
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, k, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrOperationInFlight)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, g.rdb, []string{k}, token).Err()
		})
	}, nil
}
