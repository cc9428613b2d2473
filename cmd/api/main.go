package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SUNR153/room-time/internal/api"
	"github.com/SUNR153/room-time/internal/api/handler"
	"github.com/SUNR153/room-time/internal/api/middleware"
	"github.com/SUNR153/room-time/internal/application"
	"github.com/SUNR153/room-time/internal/config"
	"github.com/SUNR153/room-time/internal/infrastructure/postgres"
	redisinfra "github.com/SUNR153/room-time/internal/infrastructure/redis"
	"github.com/SUNR153/room-time/internal/pkg/logger"
	"github.com/SUNR153/room-time/internal/pkg/metrics"
	"github.com/SUNR153/room-time/internal/worker"
)

func main() {
	cfg := config.Load()

	// ロガー初期化
	logger.Set(logger.NewLogger(os.Getenv("APP_ENV")))
	defer logger.Sync()

	// メトリクス初期化
	m := metrics.Init()

	// DB接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer db.Close()

	// マイグレーション実行
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
	}

	// Redis接続
	redisClient, err := redisinfra.NewClient(&redisinfra.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Redis接続に失敗しました", zap.Error(err))
	}
	defer redisClient.Close()

	// インフラ層
	lockManager := redisinfra.NewLockManager(redisClient)
	availabilityCache := redisinfra.NewAvailabilityCache(redisClient, cfg.Cache.MarkerTTL)

	bookingRepo := postgres.NewBookingRepository(db)
	slotRepo := postgres.NewSlotRepository(db)
	resourceRepo := postgres.NewResourceRepository(db)
	txManager := postgres.NewTxManager(db)

	// アプリケーション層
	dispatcher := application.NewInvalidationDispatcher(availabilityCache)
	bookingService := application.NewBookingService(
		txManager, bookingRepo, slotRepo, resourceRepo, lockManager, dispatcher, cfg.Booking,
	)
	availabilityService := application.NewAvailabilityService(
		slotRepo, resourceRepo, availabilityCache, cfg.Cache,
	)

	// 期限切れホールドのクリーンアップワーカー
	cleaner := worker.NewExpiredHoldCleaner(bookingService, cfg.Worker.CleanupInterval)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	go cleaner.Start(workerCtx)

	// ハンドラー
	bookingHandler := handler.NewBookingHandler(bookingService)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	healthHandler := handler.NewHealthHandler()

	// Echo セットアップ
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))

	// ルーティング
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth())

	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)

	v1.POST("/bookings/hold", bookingHandler.Hold)
	v1.POST("/bookings/confirm", bookingHandler.Confirm)
	v1.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	v1.GET("/bookings/:id", bookingHandler.GetByID)
	v1.GET("/bookings", bookingHandler.GetUserBookings)

	v1.GET("/resources/:id/availability", availabilityHandler.Get)
	v1.GET("/resources/cache-stats", availabilityHandler.CacheStats, middleware.MetricsBasicAuth())

	// サーバー起動
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// ワーカー停止
	workerCancel()
	cleaner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
