package booking

import (
	"context"
	"time"

	"github.com/SUNR153/room-time/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByIdempotencyKey は冪等性キーから予約を取得する
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)

	// GetByUserID はユーザーIDから予約一覧を取得する
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*Booking, error)

	// Update は予約を更新する（トランザクション必須）
	// 冪等性キーの一意制約違反は ErrIdempotencyKeyConflict を返す
	Update(ctx context.Context, tx transaction.Tx, b *Booking) error

	// CancelIfPending は pending のままの予約だけを cancelled に遷移させる（トランザクション必須）
	// 並行する確定が先に完了していた場合は行を変更せず false を返す
	CancelIfPending(ctx context.Context, tx transaction.Tx, b *Booking) (bool, error)

	// GetExpiredPending は期限切れの保留中予約を取得する
	GetExpiredPending(ctx context.Context) ([]*Booking, error)

	// CountActiveOverlapping は区間と重なる有効な予約（confirmed と期限内の pending）の件数を返す
	// excludeID が空でない場合はその予約を除外する。tx が nil の場合は通常接続で実行する
	CountActiveOverlapping(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time, excludeID string) (int, error)
}
