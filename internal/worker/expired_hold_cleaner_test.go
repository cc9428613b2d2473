package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockHoldExpirer はHoldExpirerのモック
type MockHoldExpirer struct {
	mock.Mock
}

func (m *MockHoldExpirer) CancelExpiredHolds(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestNewExpiredHoldCleaner(t *testing.T) {
	mockService := new(MockHoldExpirer)
	interval := 30 * time.Second

	cleaner := NewExpiredHoldCleaner(mockService, interval)

	assert.NotNil(t, cleaner)
	assert.Equal(t, interval, cleaner.interval)
	assert.NotNil(t, cleaner.stopCh)
	assert.NotNil(t, cleaner.doneCh)
}

func TestExpiredHoldCleaner_StopChannels(t *testing.T) {
	mockService := new(MockHoldExpirer)
	cleaner := NewExpiredHoldCleaner(mockService, 1*time.Second)

	// チャンネルが初期化されていることを確認
	assert.NotNil(t, cleaner.stopCh)
	assert.NotNil(t, cleaner.doneCh)

	// チャンネルがブロッキングされていないことを確認（送信可能）
	select {
	case <-cleaner.stopCh:
		t.Fatal("stopCh should not be closed initially")
	default:
		// 期待通り
	}
}

func TestExpiredHoldCleaner_Cleanup(t *testing.T) {
	t.Run("正常にクリーンアップが実行される", func(t *testing.T) {
		mockService := new(MockHoldExpirer)
		mockService.On("CancelExpiredHolds", mock.Anything).Return(5, nil)

		cleaner := &ExpiredHoldCleaner{
			bookingService: mockService,
			interval:       1 * time.Minute,
			stopCh:         make(chan struct{}),
			doneCh:         make(chan struct{}),
		}

		cleaner.cleanup(context.Background())

		mockService.AssertExpectations(t)
	})

	t.Run("キャンセル対象がない場合も正常に動作する", func(t *testing.T) {
		mockService := new(MockHoldExpirer)
		mockService.On("CancelExpiredHolds", mock.Anything).Return(0, nil)

		cleaner := &ExpiredHoldCleaner{
			bookingService: mockService,
			interval:       1 * time.Minute,
			stopCh:         make(chan struct{}),
			doneCh:         make(chan struct{}),
		}

		cleaner.cleanup(context.Background())

		mockService.AssertExpectations(t)
	})

	t.Run("エラーが発生しても継続する", func(t *testing.T) {
		mockService := new(MockHoldExpirer)
		mockService.On("CancelExpiredHolds", mock.Anything).Return(0, assert.AnError)

		cleaner := &ExpiredHoldCleaner{
			bookingService: mockService,
			interval:       1 * time.Minute,
			stopCh:         make(chan struct{}),
			doneCh:         make(chan struct{}),
		}

		// パニックしないことを確認
		cleaner.cleanup(context.Background())

		mockService.AssertExpectations(t)
	})
}

func TestExpiredHoldCleaner_StartStop(t *testing.T) {
	t.Run("開始と停止が正常に動作する", func(t *testing.T) {
		mockService := new(MockHoldExpirer)
		// cleanup が呼ばれる可能性があるので、任意回数マッチさせる
		mockService.On("CancelExpiredHolds", mock.Anything).Return(0, nil).Maybe()

		cleaner := NewExpiredHoldCleaner(mockService, 50*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// バックグラウンドで開始
		go cleaner.Start(ctx)

		// 少し待機
		time.Sleep(120 * time.Millisecond)

		// 停止
		cleaner.Stop()

		// Stop後はdoneChがcloseされている
		select {
		case <-cleaner.doneCh:
			// 正常に終了
		case <-time.After(1 * time.Second):
			t.Error("cleaner did not stop in time")
		}
	})

	t.Run("コンテキストキャンセルで停止する", func(t *testing.T) {
		mockService := new(MockHoldExpirer)
		mockService.On("CancelExpiredHolds", mock.Anything).Return(0, nil).Maybe()

		cleaner := NewExpiredHoldCleaner(mockService, 50*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			cleaner.Start(ctx)
			close(done)
		}()

		// 少し待機してからコンテキストをキャンセル
		time.Sleep(80 * time.Millisecond)
		cancel()

		// 終了を待機
		select {
		case <-done:
			// 正常に終了
		case <-time.After(1 * time.Second):
			t.Error("cleaner did not stop after context cancel")
		}
	})
}
