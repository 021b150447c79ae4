// Package cooldown limits how often a keyed action may run.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oooz/oooz-bot/src/data/store"
)

// Limiter reports whether key may act at now. When it may not, the remaining
// wait is returned. An allowed call starts a new cooldown window.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

// StoreLimiter keeps last-use timestamps in a store map, so cooldowns
// survive restarts with the snapshot.
type StoreLimiter struct {
	store    *store.Store
	mapKey   string
	cooldown func() time.Duration
}

// NewStoreLimiter keeps timestamps under mapKey (e.g. "xp_last_gain").
func NewStoreLimiter(s *store.Store, mapKey string, cooldown func() time.Duration) *StoreLimiter {
	return &StoreLimiter{store: s, mapKey: mapKey, cooldown: cooldown}
}

func (l *StoreLimiter) Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error) {
	var (
		ok   bool
		wait time.Duration
	)
	err := l.store.Update(ctx, func(_ context.Context, tx *store.Tx) error {
		last := tx.Map(l.mapKey)
		if t, seen := store.AsTime(last[key]); seen {
			if elapsed := now.Sub(t); elapsed < l.cooldown() {
				wait = l.cooldown() - elapsed
				return nil
			}
		}
		last[key] = now
		ok = true
		return nil
	})
	return ok, wait, err
}

// Last returns the last allowed use of key.
func (l *StoreLimiter) Last(ctx context.Context, key string) (time.Time, bool) {
	var (
		t  time.Time
		ok bool
	)
	_ = l.store.View(ctx, func(_ context.Context, tx *store.Tx) error {
		t, ok = store.AsTime(tx.Map(l.mapKey)[key])
		return nil
	})
	return t, ok
}

// RedisLimiter stores one expiring key per window, for deployments that
// share cooldowns across restarts without the snapshot.
type RedisLimiter struct {
	rdb      redis.UniversalClient
	prefix   string
	cooldown func() time.Duration
}

func NewRedisLimiter(rdb redis.UniversalClient, prefix string, cooldown func() time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, cooldown: cooldown}
}

// Open parses url and returns a RedisLimiter on a fresh client.
func Open(url, prefix string, cooldown func() time.Duration) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cooldown: redis: %w", err)
	}
	return NewRedisLimiter(redis.NewClient(opt), prefix, cooldown), nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error) {
	d := l.cooldown()
	if d <= 0 {
		return true, 0, nil
	}
	k := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, k, now.UnixMilli(), d).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown: setnx %s: %w", k, err)
	}
	if ok {
		return true, 0, nil
	}
	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown: pttl %s: %w", k, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return false, ttl, nil
}

func (l *RedisLimiter) Close() error { return l.rdb.Close() }
