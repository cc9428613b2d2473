package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound         = errors.New("予約が見つかりません")
	ErrBookingNotPending       = errors.New("予約は保留中ではありません")
	ErrHoldExpired             = errors.New("ホールドの有効期限が切れています")
	ErrBookingAlreadyCancelled = errors.New("予約は既にキャンセルされています")
	ErrIntervalContended       = errors.New("指定時間帯は他のユーザーが処理中です")
	ErrIdempotencyKeyConflict  = errors.New("同じ冪等性キーの予約が既に存在します")
	ErrUserIDRequired          = errors.New("ユーザーIDは必須です")
	ErrResourceIDRequired      = errors.New("リソースIDは必須です")
	ErrInvalidTimeRange        = errors.New("開始時刻は終了時刻より前である必要があります")
	ErrStartInPast             = errors.New("過去の時刻は予約できません")
)
