package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUNR153/room-time/internal/domain/availability"
)

func testSnapshot(resourceID string, date time.Time) *availability.Snapshot {
	return &availability.Snapshot{
		ResourceID:   resourceID,
		ResourceName: "会議室A",
		Date:         availability.DateKey(date),
		Slots: []availability.SlotSummary{
			{
				StartsAt:    date.Add(9 * time.Hour),
				EndsAt:      date.Add(10 * time.Hour),
				Status:      "available",
				IsAvailable: true,
			},
		},
		AvailableSlots: 1,
		TotalSlots:     1,
		ComputedAt:     time.Now(),
	}
}

func TestAvailabilityCache_GetSet(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewAvailabilityCache(client, 10*time.Minute)
	ctx := context.Background()
	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	t.Run("キャッシュミス時はErrCacheMissを返す", func(t *testing.T) {
		_, err := cache.Get(ctx, "cache-res-miss", date)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("保存したスナップショットを取得できる", func(t *testing.T) {
		snap := testSnapshot("cache-res-1", date)
		require.NoError(t, cache.Set(ctx, "cache-res-1", date, snap, 30*time.Second))

		got, err := cache.Get(ctx, "cache-res-1", date)
		require.NoError(t, err)
		assert.Equal(t, snap.ResourceID, got.ResourceID)
		assert.Equal(t, snap.Date, got.Date)
		assert.Equal(t, 1, got.TotalSlots)
		assert.Len(t, got.Slots, 1)
	})

	t.Run("TTL経過後はキャッシュミスになる", func(t *testing.T) {
		snap := testSnapshot("cache-res-ttl", date)
		require.NoError(t, cache.Set(ctx, "cache-res-ttl", date, snap, 100*time.Millisecond))

		time.Sleep(150 * time.Millisecond)
		_, err := cache.Get(ctx, "cache-res-ttl", date)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestAvailabilityCache_Invalidate(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewAvailabilityCache(client, 10*time.Minute)
	ctx := context.Background()
	day1 := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	t.Run("指定日付のみ無効化される", func(t *testing.T) {
		resourceID := "cache-res-dates"
		require.NoError(t, cache.Set(ctx, resourceID, day1, testSnapshot(resourceID, day1), 30*time.Second))
		require.NoError(t, cache.Set(ctx, resourceID, day2, testSnapshot(resourceID, day2), 30*time.Second))

		require.NoError(t, cache.Invalidate(ctx, resourceID, day1))

		_, err := cache.Get(ctx, resourceID, day1)
		assert.ErrorIs(t, err, ErrCacheMiss)
		_, err = cache.Get(ctx, resourceID, day2)
		assert.NoError(t, err)
	})

	t.Run("既に存在しないエントリの無効化はエラーにならない", func(t *testing.T) {
		assert.NoError(t, cache.Invalidate(ctx, "cache-res-none", day1))
	})
}

func TestAvailabilityCache_InvalidateAll(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewAvailabilityCache(client, 10*time.Minute)
	ctx := context.Background()
	day1 := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	t.Run("全日付が削除されマーカーが書き込まれる", func(t *testing.T) {
		resourceID := "cache-res-all"
		t.Cleanup(func() { cache.ClearInvalidationMarker(ctx, resourceID) })

		require.NoError(t, cache.Set(ctx, resourceID, day1, testSnapshot(resourceID, day1), 30*time.Second))
		require.NoError(t, cache.Set(ctx, resourceID, day2, testSnapshot(resourceID, day2), 30*time.Second))

		before := time.Now()
		require.NoError(t, cache.InvalidateAll(ctx, resourceID))

		_, err := cache.Get(ctx, resourceID, day1)
		assert.ErrorIs(t, err, ErrCacheMiss)
		_, err = cache.Get(ctx, resourceID, day2)
		assert.ErrorIs(t, err, ErrCacheMiss)

		invalidated, err := cache.InvalidatedSince(ctx, resourceID, before)
		require.NoError(t, err)
		assert.True(t, invalidated)
	})

	t.Run("マーカー書き込み前に開始した計算は古いと判定される", func(t *testing.T) {
		resourceID := "cache-res-marker"
		t.Cleanup(func() { cache.ClearInvalidationMarker(ctx, resourceID) })

		computationStart := time.Now()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, cache.InvalidateAll(ctx, resourceID))

		stale, err := cache.InvalidatedSince(ctx, resourceID, computationStart)
		require.NoError(t, err)
		assert.True(t, stale)

		// マーカー書き込み後に開始した計算は有効
		fresh, err := cache.InvalidatedSince(ctx, resourceID, time.Now())
		require.NoError(t, err)
		assert.False(t, fresh)
	})

	t.Run("マーカーがなければ無効化されていない", func(t *testing.T) {
		invalidated, err := cache.InvalidatedSince(ctx, "cache-res-nomarker", time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.False(t, invalidated)
	})
}

func TestAvailabilityCache_Stats(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewAvailabilityCache(client, 10*time.Minute)
	ctx := context.Background()
	day1 := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	resA := "stats-res-a"
	resB := "stats-res-b"
	t.Cleanup(func() {
		cache.InvalidateAll(ctx, resA)
		cache.InvalidateAll(ctx, resB)
		cache.ClearInvalidationMarker(ctx, resA)
		cache.ClearInvalidationMarker(ctx, resB)
	})

	require.NoError(t, cache.Set(ctx, resA, day1, testSnapshot(resA, day1), 30*time.Second))
	require.NoError(t, cache.Set(ctx, resA, day2, testSnapshot(resA, day2), 30*time.Second))
	require.NoError(t, cache.Set(ctx, resB, day1, testSnapshot(resB, day1), 30*time.Second))

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalEntries, 3)
	assert.Equal(t, 2, stats.Resources[resA])
	assert.Equal(t, 1, stats.Resources[resB])
}
