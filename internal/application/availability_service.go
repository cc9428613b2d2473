package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SUNR153/room-time/internal/config"
	"github.com/SUNR153/room-time/internal/domain/availability"
	"github.com/SUNR153/room-time/internal/domain/resource"
	"github.com/SUNR153/room-time/internal/domain/slot"
	redisinfra "github.com/SUNR153/room-time/internal/infrastructure/redis"
	"github.com/SUNR153/room-time/internal/pkg/logger"
	"github.com/SUNR153/room-time/internal/pkg/metrics"
	"go.uber.org/zap"
)

// AvailabilityCacheStore は空き状況スナップショットのキャッシュ操作
// *redis.AvailabilityCache が実装する
type AvailabilityCacheStore interface {
	Get(ctx context.Context, resourceID string, date time.Time) (*availability.Snapshot, error)
	Set(ctx context.Context, resourceID string, date time.Time, snap *availability.Snapshot, ttl time.Duration) error
	InvalidatedSince(ctx context.Context, resourceID string, since time.Time) (bool, error)
	Stats(ctx context.Context) (*redisinfra.CacheStats, error)
}

// AvailabilityService は空き状況照会のユースケースを実装する
type AvailabilityService struct {
	slotRepo     slot.Repository
	resourceRepo resource.Repository
	cache        AvailabilityCacheStore
	cfg          config.CacheConfig
}

// NewAvailabilityService は新しいAvailabilityServiceを作成する
// cache は nil を許容する（キャッシュなしで常に再計算する）
func NewAvailabilityService(
	slotRepo slot.Repository,
	resourceRepo resource.Repository,
	cache AvailabilityCacheStore,
	cfg config.CacheConfig,
) *AvailabilityService {
	return &AvailabilityService{
		slotRepo:     slotRepo,
		resourceRepo: resourceRepo,
		cache:        cache,
		cfg:          cfg,
	}
}

// GetResourceAvailability はリソースの指定日の空き状況を返す
//
// キャッシュがヒットすればそれを返し、しなければタイムスロットから再計算して
// キャッシュに書き戻す。再計算の開始後に無効化マーカーが立っていた場合、
// 古いデータの書き戻しを避けるためキャッシュには保存しない
func (s *AvailabilityService) GetResourceAvailability(ctx context.Context, resourceID string, date time.Time) (*availability.Snapshot, error) {
	res, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsActive {
		return nil, resource.ErrResourceNotFound
	}

	if s.cache != nil {
		snap, err := s.cache.Get(ctx, resourceID, date)
		if err == nil {
			observeCache("hit")
			return snap, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			// キャッシュ障害は照会を止めない。再計算にフォールバックする
			observeCache("error")
			logger.Warn("空き状況キャッシュの取得に失敗",
				zap.String("resource_id", resourceID),
				zap.Error(err),
			)
		} else {
			observeCache("miss")
		}
	}

	computedAt := time.Now()
	snap, err := s.computeSnapshot(ctx, res, date, computedAt)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		// 再計算中に無効化が走っていれば、このスナップショットは既に古い可能性がある
		invalidated, err := s.cache.InvalidatedSince(ctx, resourceID, computedAt)
		if err != nil {
			logger.Warn("無効化マーカーの確認に失敗",
				zap.String("resource_id", resourceID),
				zap.Error(err),
			)
			return snap, nil
		}
		if invalidated {
			logger.Debug("無効化マーカー検出によりキャッシュ保存をスキップ",
				zap.String("resource_id", resourceID),
				zap.String("date", availability.DateKey(date)),
			)
			return snap, nil
		}
		if err := s.cache.Set(ctx, resourceID, date, snap, s.cfg.AvailabilityTTL); err != nil {
			logger.Warn("空き状況キャッシュの保存に失敗",
				zap.String("resource_id", resourceID),
				zap.Error(err),
			)
		}
	}

	return snap, nil
}

// CacheStats は空き状況キャッシュの統計を返す
func (s *AvailabilityService) CacheStats(ctx context.Context) (*redisinfra.CacheStats, error) {
	if s.cache == nil {
		return &redisinfra.CacheStats{Resources: map[string]int{}}, nil
	}
	return s.cache.Stats(ctx)
}

func (s *AvailabilityService) computeSnapshot(ctx context.Context, res *resource.Resource, date time.Time, computedAt time.Time) (*availability.Snapshot, error) {
	slots, err := s.slotRepo.GetByResourceAndDate(ctx, res.ID, date)
	if err != nil {
		return nil, fmt.Errorf("タイムスロットの取得に失敗: %w", err)
	}

	summaries := make([]availability.SlotSummary, len(slots))
	availableCount := 0
	for i, ts := range slots {
		summaries[i] = availability.SlotSummary{
			StartsAt:    ts.StartsAt,
			EndsAt:      ts.EndsAt,
			Status:      string(ts.Status),
			IsAvailable: ts.IsAvailable(),
		}
		if ts.IsAvailable() {
			availableCount++
		}
	}

	return &availability.Snapshot{
		ResourceID:     res.ID,
		ResourceName:   res.Name,
		Date:           availability.DateKey(date),
		Slots:          summaries,
		AvailableSlots: availableCount,
		TotalSlots:     len(slots),
		ComputedAt:     computedAt,
	}, nil
}

func observeCache(result string) {
	if m := metrics.Get(); m != nil {
		m.AvailabilityCacheTotal.WithLabelValues(result).Inc()
	}
}
