package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SUNR153/room-time/internal/domain/availability"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

const (
	availabilityKeyPrefix = "avail"
	invalidationKeyPrefix = "avail_invalid"

	scanBatchSize = 100
)

// CacheStats は空き状況キャッシュの統計情報
type CacheStats struct {
	TotalEntries int            `json:"total_cached_dates"`
	Resources    map[string]int `json:"resources"`
}

// AvailabilityCache は (リソース, 日付) ごとの空き状況スナップショットを管理する
// 権威データではないため、書き込み失敗は呼び出し側でログのみとし処理を継続してよい
type AvailabilityCache struct {
	client    *redis.Client
	markerTTL time.Duration
}

// NewAvailabilityCache は新しいAvailabilityCacheを作成する
// markerTTL は無効化マーカーの生存期間
func NewAvailabilityCache(client *redis.Client, markerTTL time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, markerTTL: markerTTL}
}

// Get はスナップショットをキャッシュから取得する
func (c *AvailabilityCache) Get(ctx context.Context, resourceID string, date time.Time) (*availability.Snapshot, error) {
	key := c.availabilityKey(resourceID, date)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var snap availability.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("キャッシュのデコードに失敗: %w", err)
	}
	return &snap, nil
}

// Set はスナップショットをキャッシュに保存する
func (c *AvailabilityCache) Set(ctx context.Context, resourceID string, date time.Time, snap *availability.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗: %w", err)
	}
	key := c.availabilityKey(resourceID, date)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は指定日付のキャッシュエントリを削除する
// 既に存在しないエントリの削除は no-op であり、再配信されても安全
func (c *AvailabilityCache) Invalidate(ctx context.Context, resourceID string, dates ...time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = c.availabilityKey(resourceID, d)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

// InvalidateAll はリソースの全日付のキャッシュを削除し、無効化マーカーを書き込む
// マーカーにより、無効化直前に開始された再計算が古いデータを
// キャッシュに書き戻すことを防ぐ
func (c *AvailabilityCache) InvalidateAll(ctx context.Context, resourceID string) error {
	pattern := fmt.Sprintf("%s:%s:*", availabilityKeyPrefix, resourceID)
	if err := c.deleteByPattern(ctx, pattern); err != nil {
		return err
	}

	marker := time.Now().Format(time.RFC3339Nano)
	if err := c.client.Set(ctx, c.invalidationKey(resourceID), marker, c.markerTTL).Err(); err != nil {
		return fmt.Errorf("無効化マーカー書き込みに失敗: %w", err)
	}
	return nil
}

// InvalidatedSince はリソースが since 以降に無効化されたかを返す
// 再計算開始時刻を渡すことで、計算結果が古くなっていないか判定できる
func (c *AvailabilityCache) InvalidatedSince(ctx context.Context, resourceID string, since time.Time) (bool, error) {
	val, err := c.client.Get(ctx, c.invalidationKey(resourceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("無効化マーカー取得に失敗: %w", err)
	}

	markedAt, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		// 壊れたマーカーは無効化済みとして扱う（安全側に倒す）
		return true, nil
	}
	return markedAt.After(since), nil
}

// ClearInvalidationMarker は無効化マーカーを削除する
func (c *AvailabilityCache) ClearInvalidationMarker(ctx context.Context, resourceID string) error {
	return c.client.Del(ctx, c.invalidationKey(resourceID)).Err()
}

// Stats はキャッシュ済み (リソース, 日付) エントリ数をリソースごとに集計する
func (c *AvailabilityCache) Stats(ctx context.Context) (*CacheStats, error) {
	pattern := fmt.Sprintf("%s:*", availabilityKeyPrefix)
	stats := &CacheStats{Resources: make(map[string]int)}

	iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), ":")
		if len(parts) < 3 {
			continue
		}
		stats.Resources[parts[1]]++
		stats.TotalEntries++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("キャッシュ統計の取得に失敗: %w", err)
	}
	return stats, nil
}

func (c *AvailabilityCache) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("キー列挙に失敗: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("パターン削除に失敗: %w", err)
		}
	}
	return nil
}

func (c *AvailabilityCache) availabilityKey(resourceID string, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s", availabilityKeyPrefix, resourceID, availability.DateKey(date))
}

func (c *AvailabilityCache) invalidationKey(resourceID string) string {
	return fmt.Sprintf("%s:%s", invalidationKeyPrefix, resourceID)
}
