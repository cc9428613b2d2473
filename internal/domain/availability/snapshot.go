package availability

import "time"

// DateFormat はキャッシュキーおよびAPIで使用する日付フォーマット
const DateFormat = "2006-01-02"

// SlotSummary はスナップショット内の1スロットの要約
type SlotSummary struct {
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"`
	IsAvailable bool      `json:"is_available"`
}

// Snapshot は (リソース, 日付) の空き状況の導出データ
// 権威データではなく、常にタイムスロットから再計算できる
type Snapshot struct {
	ResourceID     string        `json:"resource_id"`
	ResourceName   string        `json:"resource_name"`
	Date           string        `json:"date"`
	Slots          []SlotSummary `json:"slots"`
	AvailableSlots int           `json:"available_slots"`
	TotalSlots     int           `json:"total_slots"`
	ComputedAt     time.Time     `json:"computed_at"`
}

// DateKey は日付をキャッシュキー用の文字列に変換する（UTC基準）
func DateKey(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// Day は時刻をUTCの日付境界（その日の00:00 UTC）に切り詰める。
// ロックキー・キャッシュキー・日付照会はすべてこの正規化を共有する。
// リクエストのタイムスタンプは任意のオフセットを持ちうるため、
// 同一時刻が綴りの違いで別の日付に割れてはならない
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DatesCovered は区間が跨るUTC日付の一覧を返す（[start.date, end.date] の両端を含む）
func DatesCovered(startsAt, endsAt time.Time) []time.Time {
	start := Day(startsAt)
	end := Day(endsAt)

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}
