package slot

import (
	"context"
	"time"

	"github.com/SUNR153/room-time/internal/domain/transaction"
)

// Repository はタイムスロットリポジトリのインターフェース
type Repository interface {
	// Create は新しいタイムスロットを作成する
	Create(ctx context.Context, s *TimeSlot) error

	// GetByID はIDからタイムスロットを取得する
	GetByID(ctx context.Context, id string) (*TimeSlot, error)

	// GetByResourceAndDate はリソースの指定日のタイムスロット一覧を取得する
	GetByResourceAndDate(ctx context.Context, resourceID string, date time.Time) ([]*TimeSlot, error)

	// GetOverlapping は区間 [startsAt, endsAt) と重なる指定状態のスロットを取得する
	GetOverlapping(ctx context.Context, resourceID string, startsAt, endsAt time.Time, statuses []Status) ([]*TimeSlot, error)

	// HoldSlot はスロットをホールド状態で作成または更新する（トランザクション必須）
	// 既存スロットが available でない場合は ErrSlotConflict を返す
	HoldSlot(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time) (*TimeSlot, error)

	// BookSlot はホールド中のスロットを予約確定状態に更新する（トランザクション必須）
	BookSlot(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time) error

	// ReleaseSlot はスロットを解放する（トランザクション必須）
	ReleaseSlot(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time) error
}
