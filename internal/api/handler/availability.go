package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/SUNR153/room-time/internal/domain/availability"
	"github.com/SUNR153/room-time/internal/domain/resource"
)

type AvailabilityHandler struct {
	service AvailabilityServiceInterface
}

func NewAvailabilityHandler(s AvailabilityServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: s}
}

// Get godoc
// @Summary リソースの空き状況を取得
// @Description 指定日のタイムスロット空き状況を返します（キャッシュあり）
// @Tags availability
// @Produce json
// @Param id path string true "リソースID"
// @Param date query string true "日付（YYYY-MM-DD）"
// @Success 200 {object} availability.Snapshot
// @Failure 400 {object} map[string]string "日付が不正または過去"
// @Failure 404 {object} map[string]string
// @Router /resources/{id}/availability [get]
func (h *AvailabilityHandler) Get(c echo.Context) error {
	resourceID := c.Param("id")
	dateStr := c.QueryParam("date")
	if dateStr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "日付の指定が必要です")
	}
	date, err := time.Parse(availability.DateFormat, dateStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "日付の形式が不正です（YYYY-MM-DD）")
	}
	// 照会日付はUTCの日付境界で判定する（ロックキー・キャッシュキーと同じ正規化）
	if date.Before(availability.Day(time.Now())) {
		return echo.NewHTTPError(http.StatusBadRequest, "過去の日付は照会できません")
	}

	snap, err := h.service.GetResourceAvailability(c.Request().Context(), resourceID, date)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

// CacheStats godoc
// @Summary 空き状況キャッシュの統計を取得
// @Description キャッシュ済みエントリ数をリソース別に返します
// @Tags availability
// @Produce json
// @Success 200 {object} redis.CacheStats
// @Router /resources/cache-stats [get]
func (h *AvailabilityHandler) CacheStats(c echo.Context) error {
	stats, err := h.service.CacheStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
