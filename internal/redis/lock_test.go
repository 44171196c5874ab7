package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hackgods/clinic-appointments/internal/config"
)

func TestSlotKey(t *testing.T) {
	doctor := uuid.MustParse("7c4f1f0e-2d7b-4a53-9b0e-1d1b1f2e3a4b")
	at := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "clinic:slot-lock:7c4f1f0e-2d7b-4a53-9b0e-1d1b1f2e3a4b:20250106T0900Z", SlotKey(doctor, at))

	// the same instant in another zone maps to the same key
	loc := time.FixedZone("UTC-5", -5*3600)
	assert.Equal(t, SlotKey(doctor, at), SlotKey(doctor, at.In(loc)))
	assert.NotEqual(t, SlotKey(doctor, at), SlotKey(doctor, at.Add(30*time.Minute)))
	assert.NotEqual(t, SlotKey(doctor, at), SlotKey(uuid.New(), at))
}

func TestOptions(t *testing.T) {
	opts := Options(config.Config{RedisAddr: "cache:6380", RedisUsername: "bob", RedisPassword: "pw"})

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "bob", opts.Username)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
}

func newTestLocker(t *testing.T, ttl time.Duration) (*SlotLocker, *miniredis.Miniredis, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zap.WarnLevel)
	return NewRedisSlotLocker(client, ttl, zap.New(core)), mr, logs
}

func TestWithSlotLock_HoldsKeyWhileRunning(t *testing.T) {
	locker, mr, logs := newTestLocker(t, 5*time.Second)
	doctor := uuid.New()
	at := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
	key := SlotKey(doctor, at)

	called := false
	err := locker.WithSlotLock(context.Background(), doctor, at, func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists(key))
		assert.Equal(t, 5*time.Second, mr.TTL(key))

		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists(key), "key must be released after fn returns")
	assert.Zero(t, logs.Len())
}

func TestWithSlotLock_Contention(t *testing.T) {
	locker, mr, _ := newTestLocker(t, 5*time.Second)
	doctor := uuid.New()
	at := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
	key := SlotKey(doctor, at)

	require.NoError(t, mr.Set(key, "other-replica"))

	called := false
	err := locker.WithSlotLock(context.Background(), doctor, at, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)

	// the holder's key is left alone
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-replica", got)
}

func TestWithSlotLock_ReleaseKeepsSuccessorKey(t *testing.T) {
	locker, mr, logs := newTestLocker(t, 5*time.Second)
	doctor := uuid.New()
	at := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
	key := SlotKey(doctor, at)

	err := locker.WithSlotLock(context.Background(), doctor, at, func(context.Context) error {
		// our key expires and another replica takes the slot
		mr.FastForward(6 * time.Second)
		require.False(t, mr.Exists(key))
		require.NoError(t, mr.Set(key, "successor"))
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "successor", got)
	assert.Equal(t, 1, logs.FilterMessage("slot lock expired before release").Len())
}

func TestWithSlotLock_PropagatesFnError(t *testing.T) {
	locker, mr, _ := newTestLocker(t, 5*time.Second)
	doctor := uuid.New()
	at := time.Date(2025, time.January, 6, 9, 30, 0, 0, time.UTC)
	boom := errors.New("insert failed")

	err := locker.WithSlotLock(context.Background(), doctor, at, func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(SlotKey(doctor, at)))
}

func TestWithSlotLock_RedisDown(t *testing.T) {
	locker, mr, _ := newTestLocker(t, 5*time.Second)
	mr.Close()

	err := locker.WithSlotLock(context.Background(), uuid.New(), time.Now(), func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
	assert.Contains(t, err.Error(), "acquire clinic:slot-lock:")
}
