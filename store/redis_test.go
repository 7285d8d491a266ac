package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reportsync "github.com/AnandSundar/go-reportsync"
)

type statusError struct {
	msg  string
	code int
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) HTTPStatus() int { return e.code }

// setupTestRedis creates a mock Redis server for testing
func setupTestRedis(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, opts...)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return store, mr
}

func TestRedisStore_PutAndGet(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	entry := &reportsync.Entry{
		Status:      reportsync.StatusComplete,
		Data:        costReport(100),
		RequestedAt: now,
		SettledAt:   now.Add(time.Second),
		Token:       42,
	}

	require.NoError(t, store.Put(ctx, costKey, entry))
	assert.True(t, mr.Exists("reportsync:aws/cost?filter[resolution]=monthly"))

	cached, err := store.Get(ctx, costKey)
	require.NoError(t, err)
	assert.Equal(t, reportsync.StatusComplete, cached.Status)
	assert.Equal(t, uint64(42), cached.Token)
	assert.True(t, now.Equal(cached.RequestedAt))
	require.NotNil(t, cached.Data.TotalCost())
	assert.Equal(t, 100.0, cached.Data.TotalCost().Value)
	assert.Nil(t, cached.Err)
}

func TestRedisStore_StatusIsText(t *testing.T) {
	store, mr := setupTestRedis(t)

	require.NoError(t, store.Put(context.Background(), cpuKey, &reportsync.Entry{Status: reportsync.StatusInProgress}))

	raw, err := mr.Get("reportsync:ocp/cpu")
	require.NoError(t, err)
	assert.Contains(t, raw, `"status":"inProgress"`)
}

func TestRedisStore_ErrorRoundTrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	entry := &reportsync.Entry{
		Status: reportsync.StatusError,
		Data:   costReport(50),
		Err:    &statusError{msg: "forbidden", code: 403},
	}
	require.NoError(t, store.Put(ctx, costKey, entry))

	cached, err := store.Get(ctx, costKey)
	require.NoError(t, err)

	var remote *reportsync.RemoteError
	require.ErrorAs(t, cached.Err, &remote)
	assert.Equal(t, "forbidden", remote.Message)
	assert.Equal(t, 403, remote.HTTPStatus())
	assert.Equal(t, 50.0, cached.Data.TotalCost().Value)
}

func TestRedisStore_GetNotFound(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Get(context.Background(), costKey)
	assert.ErrorIs(t, err, reportsync.ErrNotFound)
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("reportsync:ocp/cpu", "{not json"))

	_, err := store.Get(context.Background(), cpuKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, reportsync.ErrNotFound)
}

func TestRedisStore_Expiration(t *testing.T) {
	store, mr := setupTestRedis(t, WithTTL(100*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, costKey, &reportsync.Entry{Status: reportsync.StatusComplete}))

	// Fast-forward time in miniredis
	mr.FastForward(150 * time.Millisecond)

	_, err := store.Get(ctx, costKey)
	assert.ErrorIs(t, err, reportsync.ErrNotFound)
}

func TestRedisStore_ResetKeepsOtherKeys(t *testing.T) {
	store, mr := setupTestRedis(t, WithPrefix("dash:"))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, costKey, &reportsync.Entry{}))
	require.NoError(t, store.Put(ctx, cpuKey, &reportsync.Entry{}))
	require.NoError(t, mr.Set("unrelated", "1"))

	require.NoError(t, store.Reset(ctx))

	_, err := store.Get(ctx, costKey)
	assert.ErrorIs(t, err, reportsync.ErrNotFound)
	_, err = store.Get(ctx, cpuKey)
	assert.ErrorIs(t, err, reportsync.ErrNotFound)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisStore_ResetDropsClaims(t *testing.T) {
	store, mr := setupTestRedis(t, WithPrefix("dash:"))
	ctx := context.Background()
	lockKey := "lock:dash:aws/cost?filter[resolution]=monthly"

	oldRelease, err := store.Claim(ctx, costKey, time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists(lockKey))

	require.NoError(t, store.Reset(ctx))
	assert.False(t, mr.Exists(lockKey))

	newRelease, err := store.Claim(ctx, costKey, time.Minute)
	require.NoError(t, err)

	// the claim taken before Reset must not release the new one
	oldRelease()
	assert.True(t, mr.Exists(lockKey))

	_, err = store.Claim(ctx, costKey, time.Minute)
	assert.ErrorIs(t, err, reportsync.ErrRequestInProgress)

	newRelease()
	assert.False(t, mr.Exists(lockKey))
}

func TestRedisStore_Claim(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	release1, err := store.Claim(ctx, costKey, 30*time.Second)
	require.NoError(t, err)

	// Second claim should fail
	_, err = store.Claim(ctx, costKey, 30*time.Second)
	assert.ErrorIs(t, err, reportsync.ErrRequestInProgress)

	// Other keys are independent
	release3, err := store.Claim(ctx, cpuKey, 30*time.Second)
	require.NoError(t, err)
	release3()

	release1()

	// After release, should succeed
	release2, err := store.Claim(ctx, costKey, 30*time.Second)
	require.NoError(t, err)
	release2()
}

func TestRedisStore_ClaimAutoExpires(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	stale, err := store.Claim(ctx, costKey, 30*time.Second)
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	// Should be able to claim again
	fresh, err := store.Claim(ctx, costKey, 30*time.Second)
	require.NoError(t, err)

	// Releasing the expired claim must not drop the new one
	stale()
	_, err = store.Claim(ctx, costKey, 30*time.Second)
	assert.ErrorIs(t, err, reportsync.ErrRequestInProgress)

	fresh()
	release, err := store.Claim(ctx, costKey, 30*time.Second)
	require.NoError(t, err)
	release()
}

func TestRedisStore_ConcurrentClaims(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	const numGoroutines = 10
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			_, err := store.Claim(ctx, costKey, time.Minute)
			results <- err
		}()
	}

	granted := 0
	for i := 0; i < numGoroutines; i++ {
		if err := <-results; err == nil {
			granted++
		} else {
			assert.ErrorIs(t, err, reportsync.ErrRequestInProgress)
		}
	}
	assert.Equal(t, 1, granted)
}

// TestRedisStore_RealRedis tests against a real Redis instance
// Skip this test if Redis is not available
func TestRedisStore_RealRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping real Redis test in short mode")
	}

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	prefix := "test:reportsync:" + time.Now().Format("20060102150405") + ":"
	store := NewRedisStore(client, WithPrefix(prefix), WithTTL(10*time.Second))

	require.NoError(t, store.Put(ctx, costKey, &reportsync.Entry{Status: reportsync.StatusComplete, Data: costReport(1)}))

	cached, err := store.Get(ctx, costKey)
	require.NoError(t, err)
	assert.Equal(t, reportsync.StatusComplete, cached.Status)

	require.NoError(t, store.Reset(ctx))
}
