package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker serialises booking writes for one doctor slot across API replicas.
type Locker interface {
	WithSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error
}

// SlotLocker holds a Redis key per (doctor, slot start) for the duration of a
// booking write. Contention fails fast; callers report it as a conflict.
type SlotLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisSlotLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *SlotLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotLocker{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// SlotKey is the Redis key guarding a doctor's slot starting at at. The slot
// start is rendered in UTC so every clinic replica derives the same key.
func SlotKey(doctorID uuid.UUID, at time.Time) string {
	return "clinic:slot-lock:" + doctorID.String() + ":" + at.UTC().Format("20060102T1504Z")
}

// WithSlotLock runs fn while holding the slot key. fn gets a context bounded by
// the lock TTL so it cannot outlive the key.
func (l *SlotLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	key := SlotKey(doctorID, at)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !acquired {
		return fmt.Errorf("%s: %w", key, ErrLockNotAcquired)
	}

	defer l.release(context.WithoutCancel(ctx), key, token)

	bounded, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(bounded)
}

// compare-and-delete so an expired holder never removes a successor's key
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *SlotLocker) release(ctx context.Context, key, token string) {
	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	switch {
	case err != nil && !errors.Is(err, redis.Nil):
		l.logger.Warn("release slot lock", zap.String("key", key), zap.Error(err))
	case deleted == 0:
		l.logger.Warn("slot lock expired before release", zap.String("key", key), zap.Duration("ttl", l.ttl))
	}
}
