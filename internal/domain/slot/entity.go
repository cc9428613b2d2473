package slot

import "time"

// Status はタイムスロットの状態を表す
type Status string

const (
	StatusAvailable Status = "available"
	StatusHold      Status = "hold"
	StatusBooked    Status = "booked"
)

// TimeSlot はリソースの予約可能な時間帯エンティティを表す
type TimeSlot struct {
	ID         string
	ResourceID string
	StartsAt   time.Time
	EndsAt     time.Time
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTimeSlot は新しいタイムスロットを作成する
func NewTimeSlot(resourceID string, startsAt, endsAt time.Time) *TimeSlot {
	now := time.Now()
	return &TimeSlot{
		ResourceID: resourceID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
		Status:     StatusAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsAvailable はスロットが予約可能かを返す
func (s *TimeSlot) IsAvailable() bool {
	return s.Status == StatusAvailable
}

// Overlaps はスロットが指定区間 [startsAt, endsAt) と重なるかを返す
func (s *TimeSlot) Overlaps(startsAt, endsAt time.Time) bool {
	return s.StartsAt.Before(endsAt) && s.EndsAt.After(startsAt)
}

// Hold はスロットをホールド状態にする
func (s *TimeSlot) Hold() error {
	if s.Status != StatusAvailable {
		return ErrSlotNotAvailable
	}
	s.Status = StatusHold
	s.UpdatedAt = time.Now()
	return nil
}

// Book はスロットを予約確定状態にする
func (s *TimeSlot) Book() error {
	if s.Status != StatusHold {
		return ErrSlotNotHeld
	}
	s.Status = StatusBooked
	s.UpdatedAt = time.Now()
	return nil
}

// Release はスロットを解放する
func (s *TimeSlot) Release() {
	s.Status = StatusAvailable
	s.UpdatedAt = time.Now()
}

// Validate はスロットの検証を行う
func (s *TimeSlot) Validate() error {
	if s.ResourceID == "" {
		return ErrResourceIDRequired
	}
	if !s.StartsAt.Before(s.EndsAt) {
		return ErrInvalidTimeRange
	}
	if s.StartsAt.Before(time.Now()) {
		return ErrStartInPast
	}
	return nil
}
