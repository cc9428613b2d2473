package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SUNR153/room-time/internal/config"
	"github.com/SUNR153/room-time/internal/domain/availability"
	"github.com/SUNR153/room-time/internal/domain/booking"
	"github.com/SUNR153/room-time/internal/domain/resource"
	"github.com/SUNR153/room-time/internal/domain/slot"
	"github.com/SUNR153/room-time/internal/domain/transaction"
	redisinfra "github.com/SUNR153/room-time/internal/infrastructure/redis"
	"github.com/SUNR153/room-time/internal/pkg/logger"
	"github.com/SUNR153/room-time/internal/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingService は予約のユースケースを実装する
type BookingService struct {
	txManager    transaction.Manager
	bookingRepo  booking.Repository
	slotRepo     slot.Repository
	resourceRepo resource.Repository
	lockManager  redisinfra.LockManagerInterface
	dispatcher   Invalidator
	cfg          config.BookingConfig
}

// NewBookingService は新しいBookingServiceを作成する
// lockManager と dispatcher は nil を許容する（単体テスト用）
func NewBookingService(
	txManager transaction.Manager,
	bookingRepo booking.Repository,
	slotRepo slot.Repository,
	resourceRepo resource.Repository,
	lockManager redisinfra.LockManagerInterface,
	dispatcher Invalidator,
	cfg config.BookingConfig,
) *BookingService {
	return &BookingService{
		txManager:    txManager,
		bookingRepo:  bookingRepo,
		slotRepo:     slotRepo,
		resourceRepo: resourceRepo,
		lockManager:  lockManager,
		dispatcher:   dispatcher,
		cfg:          cfg,
	}
}

// RequestHoldInput はホールド要求の入力
type RequestHoldInput struct {
	UserID     string
	ResourceID string
	StartsAt   time.Time
	EndsAt     time.Time
}

// Hold はホールドの結果。HoldKey は確定時に提示するトークンで、
// 区間を保護する分散ロックの所有者であることの証明になる
type Hold struct {
	Booking   *booking.Booking
	HoldKey   string
	ExpiresAt time.Time
}

// RequestHold はリソースの時間区間に対するホールドを作成する
//
// 区間が跨る日付ごとのロックキーを一括取得するため、重なる区間の
// 要求は必ず少なくとも1つのキーで衝突し、直列化される。ロックのTTLは
// ホールドのTTLと同一で、クラッシュしたホルダーのロックは自然回収される
func (s *BookingService) RequestHold(ctx context.Context, input RequestHoldInput) (*Hold, error) {
	b := booking.NewBooking(input.UserID, input.ResourceID, input.StartsAt, input.EndsAt, s.cfg.HoldTTL)
	if err := b.Validate(); err != nil {
		return nil, err
	}

	res, err := s.resourceRepo.GetByID(ctx, input.ResourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsActive {
		return nil, resource.ErrResourceNotFound
	}

	keys := lockKeysFor(input.ResourceID, input.StartsAt, input.EndsAt)

	// 分散ロックの取得。ここで取得したトークンがホールドハンドルになる
	holdKey := uuid.New().String()
	var lock redisinfra.Lock
	if s.lockManager != nil {
		started := time.Now()
		lock, err = s.lockManager.AcquireAllWithRetry(ctx, keys, s.cfg.HoldTTL, s.cfg.LockRetries, s.cfg.LockRetryDelay)
		if err != nil {
			observeLock("acquire", "failed", started)
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				observeHold("contended")
				return nil, booking.ErrIntervalContended
			}
			// ロックストアに到達できない場合はフェイルクローズ
			observeHold("error")
			return nil, fmt.Errorf("分散ロックの取得に失敗: %w", err)
		}
		observeLock("acquire", "success", started)
		holdKey = lock.Token()
	}

	committed := false
	defer func() {
		if !committed && lock != nil {
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				logger.Warn("ホールド失敗時のロック解放に失敗", zap.Error(releaseErr))
			}
		}
	}()

	// ロックは予約テーブルの状態を検証しないため、重複を明示的に確認する
	overlapping, err := s.slotRepo.GetOverlapping(ctx, input.ResourceID, input.StartsAt, input.EndsAt,
		[]slot.Status{slot.StatusHold, slot.StatusBooked})
	if err != nil {
		observeHold("error")
		return nil, fmt.Errorf("重複スロットの確認に失敗: %w", err)
	}
	if len(overlapping) > 0 {
		// スロットが塞がっていても、対応する予約が全て失効していれば残骸にすぎない
		active, err := s.bookingRepo.CountActiveOverlapping(ctx, nil, input.ResourceID, input.StartsAt, input.EndsAt, "")
		if err != nil {
			observeHold("error")
			return nil, fmt.Errorf("有効予約の確認に失敗: %w", err)
		}
		if active > 0 {
			observeHold("conflict")
			logger.Warn("区間重複によりホールドを拒否",
				zap.String("resource_id", input.ResourceID),
				zap.Time("starts_at", input.StartsAt),
				zap.Time("ends_at", input.EndsAt),
			)
			return nil, slot.ErrSlotConflict
		}
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		observeHold("error")
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.slotRepo.HoldSlot(ctx, tx, input.ResourceID, input.StartsAt, input.EndsAt); err != nil {
		if errors.Is(err, slot.ErrSlotConflict) {
			// 同一区間に期限切れホールドの残骸がある場合は解放して取り直す
			if relErr := s.slotRepo.ReleaseSlot(ctx, tx, input.ResourceID, input.StartsAt, input.EndsAt); relErr != nil {
				observeHold("conflict")
				return nil, slot.ErrSlotConflict
			}
			if _, retryErr := s.slotRepo.HoldSlot(ctx, tx, input.ResourceID, input.StartsAt, input.EndsAt); retryErr != nil {
				observeHold("conflict")
				return nil, slot.ErrSlotConflict
			}
		} else {
			observeHold("error")
			return nil, fmt.Errorf("スロットのホールドに失敗: %w", err)
		}
	}

	if err := s.bookingRepo.Create(ctx, tx, b); err != nil {
		observeHold("error")
		return nil, fmt.Errorf("予約の作成に失敗: %w", err)
	}

	if err := tx.Commit(); err != nil {
		observeHold("error")
		return nil, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	committed = true

	observeHold("success")
	if m := metrics.Get(); m != nil {
		m.ActiveHolds.Inc()
	}
	logger.Info("ホールドを作成",
		zap.String("booking_id", b.ID),
		zap.String("resource_id", b.ResourceID),
		zap.String("user_id", b.UserID),
		zap.Time("expires_at", b.ExpiresAt),
	)

	s.emit(ctx, KindSlot, b.ResourceID, b.StartsAt, b.EndsAt)

	return &Hold{Booking: b, HoldKey: holdKey, ExpiresAt: b.ExpiresAt}, nil
}

// ConfirmHoldInput はホールド確定の入力
type ConfirmHoldInput struct {
	BookingID      string
	HoldKey        string
	IdempotencyKey string
}

// ConfirmHold はホールドを確定して予約を成立させる
//
// 同じ冪等性キーでの再実行は、確定済みの予約を副作用なしでそのまま返す。
// ホールドキーが現在もロックの所有者でない場合（TTL切れ後に別の呼び出し元が
// 取得した場合を含む）は ErrHoldExpired を返す
func (s *BookingService) ConfirmHold(ctx context.Context, input ConfirmHoldInput) (*booking.Booking, error) {
	// 冪等リプレイの検出を最初に行う。確定処理そのものより先でなければ、
	// リトライが ErrBookingNotPending で失敗してしまう
	if input.IdempotencyKey != "" {
		existing, err := s.bookingRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
		if err == nil {
			if existing.IsConfirmed() {
				observeConfirm("replayed")
				logger.Info("冪等リプレイ: 確定済み予約を返却",
					zap.String("booking_id", existing.ID),
					zap.String("idempotency_key", input.IdempotencyKey),
				)
				return existing, nil
			}
			if existing.ID != input.BookingID {
				observeConfirm("error")
				return nil, booking.ErrIdempotencyKeyConflict
			}
		} else if !errors.Is(err, booking.ErrBookingNotFound) {
			observeConfirm("error")
			return nil, fmt.Errorf("冪等性キーの確認に失敗: %w", err)
		}
	}

	b, err := s.bookingRepo.GetByID(ctx, input.BookingID)
	if err != nil {
		observeConfirm("error")
		return nil, err
	}

	if !b.IsPending() {
		if b.IsConfirmed() && input.IdempotencyKey != "" && b.IdempotencyKey == input.IdempotencyKey {
			observeConfirm("replayed")
			return b, nil
		}
		observeConfirm("error")
		return nil, booking.ErrBookingNotPending
	}

	if b.IsExpired() {
		// 期限切れをその場で確定させる（スイープを待たない）
		if _, expErr := s.expireHold(ctx, b); expErr != nil {
			logger.Error("期限切れホールドの失効処理に失敗",
				zap.String("booking_id", b.ID),
				zap.Error(expErr),
			)
		}
		observeConfirm("expired")
		return nil, booking.ErrHoldExpired
	}

	// ホールドキーが今もロックの所有者であることを確認する。
	// TTL切れ後に別の呼び出し元が同じキーを取得していた場合、ここで拒否される
	if s.lockManager != nil {
		keys := lockKeysFor(b.ResourceID, b.StartsAt, b.EndsAt)
		held, err := s.lockManager.Held(ctx, keys, input.HoldKey)
		if err != nil {
			observeConfirm("error")
			return nil, fmt.Errorf("ロック所有権の確認に失敗: %w", err)
		}
		if !held {
			observeConfirm("expired")
			return nil, booking.ErrHoldExpired
		}
	}

	if err := b.Confirm(input.IdempotencyKey); err != nil {
		if errors.Is(err, booking.ErrHoldExpired) {
			observeConfirm("expired")
		} else {
			observeConfirm("error")
		}
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		observeConfirm("error")
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.slotRepo.BookSlot(ctx, tx, b.ResourceID, b.StartsAt, b.EndsAt); err != nil {
		observeConfirm("error")
		return nil, fmt.Errorf("スロットの確定に失敗: %w", err)
	}

	if err := s.bookingRepo.Update(ctx, tx, b); err != nil {
		if errors.Is(err, booking.ErrIdempotencyKeyConflict) {
			observeConfirm("error")
			return nil, err
		}
		observeConfirm("error")
		return nil, fmt.Errorf("予約の更新に失敗: %w", err)
	}

	if err := tx.Commit(); err != nil {
		observeConfirm("error")
		return nil, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}

	// ロックの解放は永続化の完了後。失敗してもTTLで自然回収されるためログのみ
	if s.lockManager != nil {
		started := time.Now()
		keys := lockKeysFor(b.ResourceID, b.StartsAt, b.EndsAt)
		if err := s.lockManager.ReleaseToken(ctx, keys, input.HoldKey); err != nil {
			observeLock("release", "failed", started)
			logger.Warn("確定後のロック解放に失敗",
				zap.String("booking_id", b.ID),
				zap.Error(err),
			)
		} else {
			observeLock("release", "success", started)
		}
	}

	observeConfirm("success")
	if m := metrics.Get(); m != nil {
		m.ActiveHolds.Dec()
	}
	logger.Info("ホールドを確定",
		zap.String("booking_id", b.ID),
		zap.String("resource_id", b.ResourceID),
		zap.String("idempotency_key", b.IdempotencyKey),
	)

	s.emit(ctx, KindBooking, b.ResourceID, b.StartsAt, b.EndsAt)

	return b, nil
}

// CancelBooking は予約をキャンセルする。キャンセル済みの予約に対しては冪等で、
// 現在の状態をそのまま返す
//
// 保留中の予約には区間を保護する分散ロックが残っている。呼び出し元が
// holdKey を提示した場合はそのロックも解放し、同区間を即座に再予約できるようにする。
// holdKey が空の場合、ロックはTTLで自然回収されるまで残る
func (s *BookingService) CancelBooking(ctx context.Context, id, holdKey string) (*booking.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	wasPending := b.IsPending()
	if err := b.Cancel(); err != nil {
		if errors.Is(err, booking.ErrBookingAlreadyCancelled) {
			return b, nil
		}
		return nil, err
	}

	if err := s.releaseAndUpdate(ctx, b); err != nil {
		return nil, err
	}

	if wasPending {
		if m := metrics.Get(); m != nil {
			m.ActiveHolds.Dec()
		}
		if holdKey != "" && s.lockManager != nil {
			started := time.Now()
			keys := lockKeysFor(b.ResourceID, b.StartsAt, b.EndsAt)
			if err := s.lockManager.ReleaseToken(ctx, keys, holdKey); err != nil {
				observeLock("release", "failed", started)
				logger.Warn("キャンセル後のロック解放に失敗",
					zap.String("booking_id", b.ID),
					zap.Error(err),
				)
			} else {
				observeLock("release", "success", started)
			}
		}
	}
	logger.Info("予約をキャンセル",
		zap.String("booking_id", b.ID),
		zap.String("resource_id", b.ResourceID),
	)

	s.emit(ctx, KindBooking, b.ResourceID, b.StartsAt, b.EndsAt)

	return b, nil
}

// CancelExpiredHolds は期限切れの保留中予約を失効させ、処理件数を返す
// ワーカーから定期的に呼ばれる
func (s *BookingService) CancelExpiredHolds(ctx context.Context) (int, error) {
	expired, err := s.bookingRepo.GetExpiredPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("期限切れホールドの取得に失敗: %w", err)
	}

	count := 0
	for _, b := range expired {
		done, err := s.expireHold(ctx, b)
		if err != nil {
			logger.Error("期限切れホールドの失効処理に失敗",
				zap.String("booking_id", b.ID),
				zap.Error(err),
			)
			continue
		}
		if done {
			count++
		}
	}

	if count > 0 {
		logger.Info("期限切れホールドを失効", zap.Int("count", count))
	}
	return count, nil
}

// GetBooking はIDから予約を取得する
func (s *BookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

// GetUserBookings はユーザーの予約一覧を取得する
func (s *BookingService) GetUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookingRepo.GetByUserID(ctx, userID, limit, offset)
}

// expireHold は単一のホールドを失効させる。実際に失効させた場合に true を返す
//
// 状態遷移は pending の行に限った条件付き更新で行う。スイープが古い行を
// 掴んでいる間に確定処理が先にコミットした場合、更新対象の行は存在しない
// ため何も変更せずに戻る。確定済みの予約とスロットを巻き戻してはならない
func (s *BookingService) expireHold(ctx context.Context, b *booking.Booking) (bool, error) {
	if err := b.Cancel(); err != nil {
		if errors.Is(err, booking.ErrBookingAlreadyCancelled) {
			return false, nil
		}
		return false, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	cancelled, err := s.bookingRepo.CancelIfPending(ctx, tx, b)
	if err != nil {
		return false, fmt.Errorf("予約の失効に失敗: %w", err)
	}
	if !cancelled {
		logger.Info("失効をスキップ: 予約は既にpendingではない", zap.String("booking_id", b.ID))
		return false, nil
	}

	active, err := s.bookingRepo.CountActiveOverlapping(ctx, tx, b.ResourceID, b.StartsAt, b.EndsAt, b.ID)
	if err != nil {
		return false, fmt.Errorf("有効予約の確認に失敗: %w", err)
	}
	if active == 0 {
		if err := s.slotRepo.ReleaseSlot(ctx, tx, b.ResourceID, b.StartsAt, b.EndsAt); err != nil {
			if !errors.Is(err, slot.ErrSlotNotFound) {
				return false, fmt.Errorf("スロットの解放に失敗: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}

	if m := metrics.Get(); m != nil {
		m.ActiveHolds.Dec()
	}

	s.emit(ctx, KindBooking, b.ResourceID, b.StartsAt, b.EndsAt)
	return true, nil
}

// releaseAndUpdate はキャンセル済みの予約を永続化し、他に有効な予約が
// 残っていなければスロットを解放する
func (s *BookingService) releaseAndUpdate(ctx context.Context, b *booking.Booking) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	active, err := s.bookingRepo.CountActiveOverlapping(ctx, tx, b.ResourceID, b.StartsAt, b.EndsAt, b.ID)
	if err != nil {
		return fmt.Errorf("有効予約の確認に失敗: %w", err)
	}
	if active == 0 {
		if err := s.slotRepo.ReleaseSlot(ctx, tx, b.ResourceID, b.StartsAt, b.EndsAt); err != nil {
			if !errors.Is(err, slot.ErrSlotNotFound) {
				return fmt.Errorf("スロットの解放に失敗: %w", err)
			}
		}
	}

	if err := s.bookingRepo.Update(ctx, tx, b); err != nil {
		return fmt.Errorf("予約の更新に失敗: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}

// lockKeysFor は区間が跨る日付ごとのロックキーを返す
// 同一リソースの重なる区間は必ず少なくとも1つのキーを共有する
func lockKeysFor(resourceID string, startsAt, endsAt time.Time) []string {
	dates := availability.DatesCovered(startsAt, endsAt)
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = fmt.Sprintf("hold:%s:%s", resourceID, availability.DateKey(d))
	}
	return keys
}

func observeHold(status string) {
	if m := metrics.Get(); m != nil {
		m.HoldsTotal.WithLabelValues(status).Inc()
	}
}

func observeConfirm(status string) {
	if m := metrics.Get(); m != nil {
		m.ConfirmationsTotal.WithLabelValues(status).Inc()
	}
}

func observeLock(operation, status string, started time.Time) {
	if m := metrics.Get(); m != nil {
		m.DistributedLockDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
	}
}

func (s *BookingService) emit(ctx context.Context, kind EntityKind, resourceID string, startsAt, endsAt time.Time) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, ChangeEvent{
		Kind:       kind,
		ResourceID: resourceID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
	})
}
