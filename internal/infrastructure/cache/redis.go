package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DialTimeout bounds the dial, each command and the startup ping.
const DialTimeout = 3 * time.Second

// OpenRedis connects and pings. The client is closed again when the ping
// fails, so callers can fall back to in-process state without leaking it.
func OpenRedis(addr string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis: empty address")
	}
	r := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  DialTimeout,
		ReadTimeout:  DialTimeout,
		WriteTimeout: DialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return r, nil
}
