package slot

import "errors"

// TimeSlot ドメインのエラー定義
var (
	ErrSlotNotFound       = errors.New("タイムスロットが見つかりません")
	ErrSlotNotAvailable   = errors.New("タイムスロットは予約できません")
	ErrSlotNotHeld        = errors.New("タイムスロットはホールドされていません")
	ErrSlotConflict       = errors.New("重複するタイムスロットが既に存在します")
	ErrResourceIDRequired = errors.New("リソースIDは必須です")
	ErrInvalidTimeRange   = errors.New("開始時刻は終了時刻より前である必要があります")
	ErrStartInPast        = errors.New("過去の時刻のスロットは作成できません")
)
