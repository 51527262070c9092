package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"invite_mall/internal/api"
	"invite_mall/internal/middleware"
	"invite_mall/internal/repository"
	"invite_mall/internal/service"
	"invite_mall/internal/worker"
	"invite_mall/pkg/auth"
	"invite_mall/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel, serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telegramAuth := auth.NewTelegramAuth(cfg.TelegramAuth.TelegramBotToken, cfg.TelegramAuth.DebugMode)

	feed := api.NewPayoutFeed()
	notifiers := service.Notifiers{feed}

	if token := telegramAuth.GetBotToken(); cfg.TelegramAuth.Notify && token != "" {
		tg, err := service.NewTelegramNotifier(token)
		if err != nil {
			zapLogger.Fatal("Failed to initialize telegram notifier", zap.Error(err))
		}
		go tg.Run(ctx)
		notifiers = append(notifiers, tg)
	}

	repo := repository.New()
	svc, err := service.NewService(repo, cfg.Promotion, service.WithNotifier(notifiers))
	if err != nil {
		zapLogger.Fatal("Failed to initialize services", zap.Error(err))
	}

	scheduler := worker.NewScheduler(svc.Orders, svc.Invites, cfg.Promotion, cfg.Scheduler.Interval, nil, logger.Named("scheduler"))
	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	} else {
		zapLogger.Info("Scheduler disabled")
	}

	authorization := middleware.NewAuthorization(cfg.Admin.Key)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
	}
	corsConfig.AllowHeaders = []string{"*"}
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(cors.New(corsConfig))

	a := router.Group("/api/v1")
	api.NewOrderRoutes(a, svc.Orders, telegramAuth)
	api.NewTaskRoutes(a, svc.Invites, telegramAuth)
	api.NewQuotaRoutes(a, svc.Quotas, telegramAuth)
	api.NewAdminRoutes(a, svc.Admin, svc.Orders, scheduler, feed, authorization)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("Failed to shut down server", zap.Error(err))
		}
	}()

	zapLogger.Info("Starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}
