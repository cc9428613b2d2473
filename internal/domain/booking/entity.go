package booking

import "time"

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking は予約エンティティを表す
// pending の予約はホールドであり、expires_at までに確定されなければ失効する
type Booking struct {
	ID             string
	UserID         string
	ResourceID     string
	StartsAt       time.Time
	EndsAt         time.Time
	Status         Status
	IdempotencyKey string // 空文字は未設定（DB上はNULL）
	ExpiresAt      time.Time
	ConfirmedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewBooking は新しい保留中の予約（ホールド）を作成する
func NewBooking(userID, resourceID string, startsAt, endsAt time.Time, holdTTL time.Duration) *Booking {
	now := time.Now()
	return &Booking{
		UserID:     userID,
		ResourceID: resourceID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
		Status:     StatusPending,
		ExpiresAt:  now.Add(holdTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsExpired はホールドの有効期限が切れているかを返す
func (b *Booking) IsExpired() bool {
	return time.Now().After(b.ExpiresAt)
}

// IsPending は予約が保留中かを返す
func (b *Booking) IsPending() bool {
	return b.Status == StatusPending
}

// IsConfirmed は予約が確定済みかを返す
func (b *Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}

// Confirm はホールドを確定する。冪等性キーは確定時に永続化される
func (b *Booking) Confirm(idempotencyKey string) error {
	if b.Status != StatusPending {
		return ErrBookingNotPending
	}
	if b.IsExpired() {
		return ErrHoldExpired
	}
	now := time.Now()
	b.Status = StatusConfirmed
	b.ConfirmedAt = &now
	if idempotencyKey != "" {
		b.IdempotencyKey = idempotencyKey
	}
	b.UpdatedAt = now
	return nil
}

// Cancel は予約をキャンセルする。pending と confirmed の両方から遷移できる
func (b *Booking) Cancel() error {
	if b.Status == StatusCancelled {
		return ErrBookingAlreadyCancelled
	}
	b.Status = StatusCancelled
	b.UpdatedAt = time.Now()
	return nil
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if b.ResourceID == "" {
		return ErrResourceIDRequired
	}
	if !b.StartsAt.Before(b.EndsAt) {
		return ErrInvalidTimeRange
	}
	if b.StartsAt.Before(time.Now()) {
		return ErrStartInPast
	}
	return nil
}
