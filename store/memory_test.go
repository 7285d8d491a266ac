package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reportsync "github.com/AnandSundar/go-reportsync"
	"github.com/AnandSundar/go-reportsync/report"
)

var (
	costKey = reportsync.Key{
		Category: report.Category{Provider: report.ProviderAWS, Type: report.TypeCost},
		Query:    "filter[resolution]=monthly",
	}
	cpuKey = reportsync.Key{
		Category: report.Category{Provider: report.ProviderOCP, Type: report.TypeCPU},
	}
)

func costReport(value float64) *report.Report {
	return &report.Report{Meta: report.Meta{Total: &report.Total{
		Cost: &report.Value{Value: value, Units: "USD"},
	}}}
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &reportsync.Entry{
		Status:      reportsync.StatusComplete,
		Data:        costReport(100),
		RequestedAt: time.Now(),
		Token:       7,
	}

	require.NoError(t, store.Put(ctx, costKey, entry))

	cached, err := store.Get(ctx, costKey)
	require.NoError(t, err)
	assert.Equal(t, reportsync.StatusComplete, cached.Status)
	assert.Equal(t, uint64(7), cached.Token)
	assert.Same(t, entry.Data, cached.Data)
}

func TestMemoryStore_CopiesEntries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &reportsync.Entry{Status: reportsync.StatusInProgress, Token: 1}
	require.NoError(t, store.Put(ctx, costKey, entry))

	entry.Status = reportsync.StatusError
	got, err := store.Get(ctx, costKey)
	require.NoError(t, err)
	assert.Equal(t, reportsync.StatusInProgress, got.Status)

	got.Token = 99
	again, err := store.Get(ctx, costKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), again.Token)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), cpuKey)
	assert.ErrorIs(t, err, reportsync.ErrNotFound)
}

func TestMemoryStore_KeysAreDistinct(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	other := costKey
	other.Query = "filter[resolution]=daily"

	require.NoError(t, store.Put(ctx, costKey, &reportsync.Entry{Token: 1}))
	require.NoError(t, store.Put(ctx, other, &reportsync.Entry{Token: 2}))

	a, err := store.Get(ctx, costKey)
	require.NoError(t, err)
	b, err := store.Get(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.Token)
	assert.Equal(t, uint64(2), b.Token)
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, costKey, &reportsync.Entry{}))
	require.NoError(t, store.Put(ctx, cpuKey, &reportsync.Entry{}))
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Reset(ctx))
	assert.Equal(t, 0, store.Len())

	_, err := store.Get(ctx, costKey)
	assert.ErrorIs(t, err, reportsync.ErrNotFound)
}

func TestMemoryStore_Expiration(t *testing.T) {
	store := NewMemoryStore(WithMemoryTTL(100 * time.Millisecond))
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, costKey, &reportsync.Entry{Status: reportsync.StatusComplete}))

	time.Sleep(150 * time.Millisecond)

	_, err := store.Get(ctx, costKey)
	assert.ErrorIs(t, err, reportsync.ErrNotFound)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 20*time.Millisecond)
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	store := NewMemoryStore(WithMemoryTTL(time.Minute))
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
