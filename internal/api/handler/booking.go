package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/SUNR153/room-time/internal/application"
	"github.com/SUNR153/room-time/internal/domain/booking"
	"github.com/SUNR153/room-time/internal/domain/resource"
	"github.com/SUNR153/room-time/internal/domain/slot"
	redisinfra "github.com/SUNR153/room-time/internal/infrastructure/redis"
)

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type HoldRequest struct {
	ResourceID string    `json:"resource_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	EndsAt     time.Time `json:"ends_at" validate:"required"`
}

type CancelRequest struct {
	HoldKey string `json:"hold_key" example:"550e8400-e29b-41d4-a716-446655440000"`
}

type ConfirmRequest struct {
	BookingID      string `json:"booking_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	HoldKey        string `json:"hold_key" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" example:"order-2026-001"`
}

type BookingResponse struct {
	ID             string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID         string     `json:"user_id" example:"user-123"`
	ResourceID     string     `json:"resource_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         time.Time  `json:"ends_at"`
	Status         string     `json:"status" example:"pending"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type HoldResponse struct {
	Booking   BookingResponse `json:"booking"`
	HoldKey   string          `json:"hold_key"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, UserID: b.UserID, ResourceID: b.ResourceID,
		StartsAt: b.StartsAt, EndsAt: b.EndsAt, Status: string(b.Status),
		IdempotencyKey: b.IdempotencyKey, ExpiresAt: b.ExpiresAt,
		ConfirmedAt: b.ConfirmedAt, CreatedAt: b.CreatedAt,
	}
}

// bookingErrorToHTTP はドメインエラーをHTTPステータスに変換する
func bookingErrorToHTTP(err error) error {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound), errors.Is(err, resource.ErrResourceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrIntervalContended),
		errors.Is(err, booking.ErrHoldExpired),
		errors.Is(err, booking.ErrBookingNotPending),
		errors.Is(err, booking.ErrIdempotencyKeyConflict),
		errors.Is(err, slot.ErrSlotConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrUserIDRequired),
		errors.Is(err, booking.ErrResourceIDRequired),
		errors.Is(err, booking.ErrInvalidTimeRange),
		errors.Is(err, booking.ErrStartInPast):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, redisinfra.ErrStoreUnavailable):
		// ロックストアに到達できない間は安全側に倒して拒否する
		return echo.NewHTTPError(http.StatusServiceUnavailable, "一時的に予約を受け付けられません")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Hold godoc
// @Summary 時間帯をホールド
// @Description リソースの時間帯を仮押さえします（確定までの猶予はhold TTL）
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body HoldRequest true "ホールド要求"
// @Success 201 {object} HoldResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string "時間帯が競合中または予約済み"
// @Failure 503 {object} map[string]string "ロックストア障害"
// @Router /bookings/hold [post]
func (h *BookingHandler) Hold(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req HoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	hold, err := h.service.RequestHold(c.Request().Context(), application.RequestHoldInput{
		UserID: userID, ResourceID: req.ResourceID, StartsAt: req.StartsAt, EndsAt: req.EndsAt,
	})
	if err != nil {
		return bookingErrorToHTTP(err)
	}
	return c.JSON(http.StatusCreated, HoldResponse{
		Booking:   toBookingResponse(hold.Booking),
		HoldKey:   hold.HoldKey,
		ExpiresAt: hold.ExpiresAt,
	})
}

// Confirm godoc
// @Summary ホールドを確定
// @Description 仮押さえ中の予約を確定します。同じ冪等性キーでの再実行は同じ予約を返します
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body ConfirmRequest true "確定要求"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "ホールド期限切れ"
// @Router /bookings/confirm [post]
func (h *BookingHandler) Confirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	b, err := h.service.ConfirmHold(c.Request().Context(), application.ConfirmHoldInput{
		BookingID: req.BookingID, HoldKey: req.HoldKey, IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return bookingErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、時間帯を解放します。再実行しても安全です。保留中の予約ではhold_keyを渡すと区間のロックも即座に解放されます
// @Tags bookings
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body CancelRequest false "ホールドキー（保留中の予約の場合）"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	id := c.Param("id")
	var req CancelRequest
	// ボディは任意。確定済み予約のキャンセルにはホールドキーが存在しない
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
		}
	}
	b, err := h.service.CancelBooking(c.Request().Context(), id, req.HoldKey)
	if err != nil {
		return bookingErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	id := c.Param("id")
	b, err := h.service.GetBooking(c.Request().Context(), id)
	if err != nil {
		return bookingErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetUserBookings godoc
// @Summary ユーザーの予約一覧を取得
// @Description ログインユーザーの予約一覧を取得します
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 401 {object} map[string]string
// @Router /bookings [get]
func (h *BookingHandler) GetUserBookings(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.GetUserBookings(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return c.JSON(http.StatusOK, resp)
}
