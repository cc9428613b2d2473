package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SUNR153/room-time/internal/domain/availability"
	"github.com/SUNR153/room-time/internal/pkg/logger"
	"github.com/SUNR153/room-time/internal/pkg/metrics"
)

// EntityKind は変更イベントの発生元エンティティの種別
type EntityKind string

const (
	KindResource EntityKind = "resource"
	KindSlot     EntityKind = "slot"
	KindBooking  EntityKind = "booking"
)

// ChangeEvent はエンティティ変更の通知
// StartsAt/EndsAt が設定されている場合、影響範囲はその区間が跨る日付に限られる。
// ゼロ値の場合（リソース自体の変更等）はリソースの全日付が影響を受ける
type ChangeEvent struct {
	Kind       EntityKind
	ResourceID string
	StartsAt   time.Time
	EndsAt     time.Time
}

// Invalidator は変更イベントを受け取るインターフェース
// 予約状態を変更する操作が、変更の確定後に明示的に呼び出す
type Invalidator interface {
	Dispatch(ctx context.Context, ev ChangeEvent)
}

// availabilityInvalidator はキャッシュ無効化操作のインターフェース
// *redis.AvailabilityCache が実装する
type availabilityInvalidator interface {
	Invalidate(ctx context.Context, resourceID string, dates ...time.Time) error
	InvalidateAll(ctx context.Context, resourceID string) error
}

// InvalidationDispatcher はエンティティ変更イベントを空き状況キャッシュの
// 無効化呼び出しに変換する。冪等であり、同一イベントの再配信は安全
type InvalidationDispatcher struct {
	cache availabilityInvalidator
}

// NewInvalidationDispatcher は新しいディスパッチャーを作成する
func NewInvalidationDispatcher(cache availabilityInvalidator) *InvalidationDispatcher {
	return &InvalidationDispatcher{cache: cache}
}

// Dispatch はイベントから影響日付を計算しキャッシュを無効化する
// キャッシュはTTLで自然に失効するため、失敗はログのみとし呼び出し元には伝播しない
func (d *InvalidationDispatcher) Dispatch(ctx context.Context, ev ChangeEvent) {
	if d.cache == nil || ev.ResourceID == "" {
		return
	}

	if ev.StartsAt.IsZero() || ev.EndsAt.IsZero() {
		// リソースレベルの変更：全日付を無効化しマーカーを書き込む
		if err := d.cache.InvalidateAll(ctx, ev.ResourceID); err != nil {
			logger.Warn("キャッシュ全体無効化に失敗",
				zap.String("kind", string(ev.Kind)),
				zap.String("resource_id", ev.ResourceID),
				zap.Error(err),
			)
			return
		}
		if m := metrics.Get(); m != nil {
			m.CacheInvalidationsTotal.WithLabelValues("resource").Inc()
		}
		logger.Debug("キャッシュを全日付無効化",
			zap.String("kind", string(ev.Kind)),
			zap.String("resource_id", ev.ResourceID),
		)
		return
	}

	dates := availability.DatesCovered(ev.StartsAt, ev.EndsAt)
	if err := d.cache.Invalidate(ctx, ev.ResourceID, dates...); err != nil {
		logger.Warn("キャッシュ無効化に失敗",
			zap.String("kind", string(ev.Kind)),
			zap.String("resource_id", ev.ResourceID),
			zap.Int("dates", len(dates)),
			zap.Error(err),
		)
		return
	}
	if m := metrics.Get(); m != nil {
		m.CacheInvalidationsTotal.WithLabelValues("dates").Inc()
	}
	logger.Debug("キャッシュを無効化",
		zap.String("kind", string(ev.Kind)),
		zap.String("resource_id", ev.ResourceID),
		zap.Int("dates", len(dates)),
	)
}

var _ Invalidator = (*InvalidationDispatcher)(nil)
