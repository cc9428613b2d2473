package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAvailabilityInvalidator implements availabilityInvalidator
type MockAvailabilityInvalidator struct {
	mock.Mock
}

func (m *MockAvailabilityInvalidator) Invalidate(ctx context.Context, resourceID string, dates ...time.Time) error {
	args := m.Called(ctx, resourceID, dates)
	return args.Error(0)
}

func (m *MockAvailabilityInvalidator) InvalidateAll(ctx context.Context, resourceID string) error {
	args := m.Called(ctx, resourceID)
	return args.Error(0)
}

func TestInvalidationDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 9, 10, 22, 0, 0, 0, time.UTC)

	t.Run("単一日の区間", func(t *testing.T) {
		cache := new(MockAvailabilityInvalidator)
		d := NewInvalidationDispatcher(cache)

		cache.On("Invalidate", ctx, "room-1", mock.AnythingOfType("[]time.Time")).Return(nil)

		d.Dispatch(ctx, ChangeEvent{
			Kind:       KindSlot,
			ResourceID: "room-1",
			StartsAt:   start,
			EndsAt:     start.Add(1 * time.Hour),
		})

		cache.AssertExpectations(t)
		dates := cache.Calls[0].Arguments.Get(2).([]time.Time)
		require.Len(t, dates, 1)
		assert.Equal(t, 10, dates[0].Day())
	})

	t.Run("日を跨ぐ区間は全ての日付を無効化する", func(t *testing.T) {
		cache := new(MockAvailabilityInvalidator)
		d := NewInvalidationDispatcher(cache)

		cache.On("Invalidate", ctx, "room-1", mock.AnythingOfType("[]time.Time")).Return(nil)

		d.Dispatch(ctx, ChangeEvent{
			Kind:       KindBooking,
			ResourceID: "room-1",
			StartsAt:   start,
			EndsAt:     start.Add(4 * time.Hour), // 翌日 02:00 まで
		})

		dates := cache.Calls[0].Arguments.Get(2).([]time.Time)
		require.Len(t, dates, 2)
		assert.Equal(t, 10, dates[0].Day())
		assert.Equal(t, 11, dates[1].Day())
	})

	t.Run("時間範囲なしはリソース全体を無効化する", func(t *testing.T) {
		cache := new(MockAvailabilityInvalidator)
		d := NewInvalidationDispatcher(cache)

		cache.On("InvalidateAll", ctx, "room-1").Return(nil)

		d.Dispatch(ctx, ChangeEvent{Kind: KindResource, ResourceID: "room-1"})

		cache.AssertExpectations(t)
		cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("リソースIDなしは何もしない", func(t *testing.T) {
		cache := new(MockAvailabilityInvalidator)
		d := NewInvalidationDispatcher(cache)

		d.Dispatch(ctx, ChangeEvent{Kind: KindSlot})

		cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything, mock.Anything)
		cache.AssertNotCalled(t, "InvalidateAll", mock.Anything, mock.Anything)
	})

	t.Run("無効化エラーは呼び出し元に伝播しない", func(t *testing.T) {
		cache := new(MockAvailabilityInvalidator)
		d := NewInvalidationDispatcher(cache)

		cache.On("Invalidate", ctx, "room-1", mock.AnythingOfType("[]time.Time")).
			Return(errors.New("redis connection error"))

		// パニックもエラーも発生しない
		d.Dispatch(ctx, ChangeEvent{
			Kind:       KindSlot,
			ResourceID: "room-1",
			StartsAt:   start,
			EndsAt:     start.Add(1 * time.Hour),
		})
	})

	t.Run("同一イベントの再配信は安全", func(t *testing.T) {
		cache := new(MockAvailabilityInvalidator)
		d := NewInvalidationDispatcher(cache)

		cache.On("Invalidate", ctx, "room-1", mock.AnythingOfType("[]time.Time")).Return(nil)

		ev := ChangeEvent{
			Kind:       KindSlot,
			ResourceID: "room-1",
			StartsAt:   start,
			EndsAt:     start.Add(1 * time.Hour),
		}
		d.Dispatch(ctx, ev)
		d.Dispatch(ctx, ev)

		cache.AssertNumberOfCalls(t, "Invalidate", 2)
	})
}
