package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/waba-sync/internal/config"
	"github.com/jwalitptl/waba-sync/internal/email"
	"github.com/jwalitptl/waba-sync/internal/meta"
	"github.com/jwalitptl/waba-sync/internal/repository/postgres"
	webhookService "github.com/jwalitptl/waba-sync/internal/service/webhook"
	"github.com/jwalitptl/waba-sync/pkg/logger"
	"github.com/jwalitptl/waba-sync/pkg/messaging/redis"
	"github.com/jwalitptl/waba-sync/pkg/metrics"
	"github.com/jwalitptl/waba-sync/pkg/view"
)

// The worker polls the queue on a fixed interval. Multiple workers (or a
// worker plus a manual drain) are safe: the cycle lock serializes them.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

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

	base := postgres.NewBaseRepository(db)
	svc := webhookService.NewService(
		webhookService.Repositories{
			Events:        postgres.NewWebhookEventRepository(base),
			Locks:         postgres.NewCycleLockRepository(base),
			Projects:      postgres.NewProjectRepository(base),
			Messages:      postgres.NewMessageRepository(base),
			Broadcasts:    postgres.NewBroadcastRepository(base),
			Templates:     postgres.NewTemplateRepository(base),
			Notifications: postgres.NewNotificationRepository(base),
			Chats:         postgres.NewChatRepository(base),
		},
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

	setupOpsServer(appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("shutting down worker")
		cancel()
	}()

	runDrainLoop(ctx, svc, cfg.Drain.PollInterval, appLogger)
}

func runDrainLoop(ctx context.Context, svc *webhookService.Service, interval time.Duration, appLogger *logger.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	appLogger.Info("drain worker started", "poll_interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			appLogger.Info("drain worker stopped")
			return
		case <-ticker.C:
			result, err := svc.RunCycle(ctx)
			if err != nil {
				appLogger.Error(err, "drain cycle failed")
				continue
			}
			if result.AlreadyRunning || result.Processed == 0 {
				continue
			}
			appLogger.Info("drain cycle finished",
				"processed", result.Processed,
				"succeeded", result.Succeeded,
				"failed", result.Failed,
			)
		}
	}
}

func setupOpsServer(appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.Error(err, "ops server failed")
			os.Exit(1)
		}
	}()
	appLogger.Info("ops server listening", "addr", fmt.Sprintf(":%d", 8081))
}
