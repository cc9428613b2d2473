package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SUNR153/room-time/internal/pkg/logger"
)

// HoldExpirer は期限切れホールドをキャンセルするインターフェース
type HoldExpirer interface {
	CancelExpiredHolds(ctx context.Context) (int, error)
}

// ExpiredHoldCleaner は期限切れホールドをクリーンアップするワーカー
// 確定されないまま期限を過ぎた pending 予約を定期的に掃除し、
// 対応するタイムスロットを解放する
type ExpiredHoldCleaner struct {
	bookingService HoldExpirer
	interval       time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewExpiredHoldCleaner は新しいクリーナーを作成
func NewExpiredHoldCleaner(bs HoldExpirer, interval time.Duration) *ExpiredHoldCleaner {
	return &ExpiredHoldCleaner{
		bookingService: bs,
		interval:       interval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start はクリーナーを開始
func (c *ExpiredHoldCleaner) Start(ctx context.Context) {
	logger.Info("期限切れホールドクリーナー開始",
		zap.Duration("interval", c.interval),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れホールドクリーナー停止（コンテキストキャンセル）")
			return
		case <-c.stopCh:
			logger.Info("期限切れホールドクリーナー停止（シグナル受信）")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// Stop はクリーナーを停止
func (c *ExpiredHoldCleaner) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// cleanup は期限切れホールドをキャンセル
func (c *ExpiredHoldCleaner) cleanup(ctx context.Context) {
	log := logger.Get()
	log.Debug("期限切れホールドのクリーンアップ開始")

	count, err := c.bookingService.CancelExpiredHolds(ctx)
	if err != nil {
		log.Error("期限切れホールドのクリーンアップ失敗", zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("期限切れホールドをキャンセル", zap.Int("count", count))
	} else {
		log.Debug("期限切れホールドなし")
	}
}
