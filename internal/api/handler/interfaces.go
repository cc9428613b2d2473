package handler

import (
	"context"
	"time"

	"github.com/SUNR153/room-time/internal/application"
	"github.com/SUNR153/room-time/internal/domain/availability"
	"github.com/SUNR153/room-time/internal/domain/booking"
	redisinfra "github.com/SUNR153/room-time/internal/infrastructure/redis"
)

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	RequestHold(ctx context.Context, input application.RequestHoldInput) (*application.Hold, error)
	ConfirmHold(ctx context.Context, input application.ConfirmHoldInput) (*booking.Booking, error)
	CancelBooking(ctx context.Context, id, holdKey string) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	GetUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error)
}

// AvailabilityServiceInterface は空き状況サービスのインターフェース
type AvailabilityServiceInterface interface {
	GetResourceAvailability(ctx context.Context, resourceID string, date time.Time) (*availability.Snapshot, error)
	CacheStats(ctx context.Context) (*redisinfra.CacheStats, error)
}
