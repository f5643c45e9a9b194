package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/waba-sync/internal/config"
	"github.com/jwalitptl/waba-sync/internal/email"
	"github.com/jwalitptl/waba-sync/internal/handler"
	webhookHandler "github.com/jwalitptl/waba-sync/internal/handler/webhook"
	"github.com/jwalitptl/waba-sync/internal/meta"
	"github.com/jwalitptl/waba-sync/internal/middleware"
	"github.com/jwalitptl/waba-sync/internal/repository/postgres"
	"github.com/jwalitptl/waba-sync/internal/router"
	webhookService "github.com/jwalitptl/waba-sync/internal/service/webhook"
	"github.com/jwalitptl/waba-sync/pkg/logger"
	"github.com/jwalitptl/waba-sync/pkg/messaging/redis"
	"github.com/jwalitptl/waba-sync/pkg/metrics"
	"github.com/jwalitptl/waba-sync/pkg/view"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	repos := webhookService.Repositories{
		Events:        postgres.NewWebhookEventRepository(base),
		Locks:         postgres.NewCycleLockRepository(base),
		Projects:      postgres.NewProjectRepository(base),
		Messages:      postgres.NewMessageRepository(base),
		Broadcasts:    postgres.NewBroadcastRepository(base),
		Templates:     postgres.NewTemplateRepository(base),
		Notifications: postgres.NewNotificationRepository(base),
		Chats:         postgres.NewChatRepository(base),
	}

	// View invalidation degrades to a no-op when Redis is down: stale
	// dashboards beat refusing webhooks.
	invalidator := view.Noop()
	if cfg.Redis.URL != "" {
		broker, err := redis.NewRedisBroker(redis.Config{URL: cfg.Redis.URL}, &log.Logger)
		if err != nil {
			appLogger.Error(err, "failed to connect to redis, view invalidation disabled")
		} else {
			defer broker.Close()
			invalidator = view.NewInvalidator(broker, appLogger)
		}
	}

	emailSvc := email.Noop()
	if cfg.Email.Enabled {
		emailSvc = email.NewService(cfg.Email)
	}

	svc := webhookService.NewService(
		repos,
		meta.NewClient(cfg.Meta),
		emailSvc,
		invalidator,
		appLogger,
		metrics.NewMetrics("waba_sync", "drain"),
		webhookService.Config{
			BatchSize:       cfg.Drain.BatchSize,
			LockLease:       cfg.Drain.LockLease,
			SystemUserToken: cfg.Meta.SystemUserToken,
		},
	)

	h := handler.NewHandler(db)
	webhookH := webhookHandler.NewHandler(repos.Events, svc, cfg.Meta.VerifyToken, appLogger)

	ingressRPS := cfg.Server.IngressRPS
	if ingressRPS <= 0 {
		ingressRPS = 100
	}
	ingressBurst := cfg.Server.IngressBurst
	if ingressBurst <= 0 {
		ingressBurst = 200
	}
	r := router.NewRouter(webhookH, h, router.RouterConfig{
		RateLimit:     rate.Limit(ingressRPS),
		RateBurst:     ingressBurst,
		CORSConfig:    middleware.DefaultCORSConfig(),
		MetricsPrefix: "waba_sync_http",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	appLogger.Info("ingress listening", "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}
