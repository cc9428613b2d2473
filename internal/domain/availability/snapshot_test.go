package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateKey(t *testing.T) {
	d := time.Date(2026, 9, 10, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-09-10", DateKey(d))

	t.Run("オフセット付きの時刻はUTCの日付に正規化される", func(t *testing.T) {
		jst := time.FixedZone("JST", 9*60*60)
		// 2026-09-01T00:30+09:00 はUTCでは 2026-08-31T15:30
		d := time.Date(2026, 9, 1, 0, 30, 0, 0, jst)
		assert.Equal(t, "2026-08-31", DateKey(d))
		assert.Equal(t, DateKey(d.UTC()), DateKey(d))
	})
}

func TestDay(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	utc := time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)
	sameInstant := utc.In(jst)

	// 同一時刻は綴りに関わらず同じ日付境界に落ちる
	assert.Equal(t, Day(utc), Day(sameInstant))
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), Day(sameInstant))
}

func TestDatesCovered(t *testing.T) {
	tests := []struct {
		name     string
		startsAt time.Time
		endsAt   time.Time
		want     []string
	}{
		{
			name:     "同一日内の区間",
			startsAt: time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC),
			endsAt:   time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC),
			want:     []string{"2026-09-10"},
		},
		{
			name:     "日を跨ぐ区間",
			startsAt: time.Date(2026, 9, 10, 23, 0, 0, 0, time.UTC),
			endsAt:   time.Date(2026, 9, 11, 1, 0, 0, 0, time.UTC),
			want:     []string{"2026-09-10", "2026-09-11"},
		},
		{
			name:     "3日間にわたる区間",
			startsAt: time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC),
			endsAt:   time.Date(2026, 9, 12, 9, 0, 0, 0, time.UTC),
			want:     []string{"2026-09-10", "2026-09-11", "2026-09-12"},
		},
		{
			name:     "月を跨ぐ区間",
			startsAt: time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC),
			endsAt:   time.Date(2026, 10, 1, 1, 0, 0, 0, time.UTC),
			want:     []string{"2026-09-30", "2026-10-01"},
		},
		{
			name:     "オフセット付きの区間はUTCの日付になる",
			startsAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.FixedZone("JST", 9*60*60)),
			endsAt:   time.Date(2026, 9, 1, 2, 0, 0, 0, time.FixedZone("JST", 9*60*60)),
			want:     []string{"2026-08-31"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates := DatesCovered(tt.startsAt, tt.endsAt)
			require.Len(t, dates, len(tt.want))
			for i, d := range dates {
				assert.Equal(t, tt.want[i], DateKey(d))
			}
		})
	}

	t.Run("同一時刻は綴りが違っても同じ日付集合になる", func(t *testing.T) {
		jst := time.FixedZone("JST", 9*60*60)
		start := time.Date(2026, 9, 1, 0, 0, 0, 0, jst)
		end := start.Add(2 * time.Hour)

		assert.Equal(t, DatesCovered(start.UTC(), end.UTC()), DatesCovered(start, end))
	})
}
