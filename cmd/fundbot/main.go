package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/api"
	"github.com/Kerhoff/FundboT/internal/config"
	"github.com/Kerhoff/FundboT/internal/handlers"
	"github.com/Kerhoff/FundboT/internal/lock"
	"github.com/Kerhoff/FundboT/internal/metrics"
	"github.com/Kerhoff/FundboT/internal/repository"
	"github.com/Kerhoff/FundboT/internal/repository/memory"
	"github.com/Kerhoff/FundboT/internal/repository/postgres"
	"github.com/Kerhoff/FundboT/internal/service"
	"github.com/Kerhoff/FundboT/internal/telegram"
	"github.com/Kerhoff/FundboT/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel)
	l.Info("Starting FundboT...")

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Storage
	store, closeStore := openStore(cfg, l)
	defer closeStore()

	// Cross-instance sweep lock
	var locker service.Locker
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			l.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, lock.DefaultExpiry, l)
		l.Info("Reconcile sweeps coordinated through Redis")
	}

	m := metrics.New()

	// Telegram bot is optional
	var bot *telegram.Bot
	var notifier service.Notifier
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, l)
		if err != nil {
			l.Fatalf("Failed to create Telegram bot: %v", err)
		}
		notifier = telegram.NewNotifier(bot, store, l)
	} else {
		l.Warn("TELEGRAM_TOKEN is not set, running the HTTP API only")
	}

	// Service layer
	svc := service.New(store, l, service.Options{
		ApprovalThreshold: cfg.ApprovalThreshold,
		Notifier:          notifier,
		Metrics:           m,
	})

	if bot != nil {
		registerCommands(bot, svc, l)
		go func() {
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()
	}

	// Background reconciliation of pending withdrawals
	reconciler := svc.NewReconciler(cfg.ReconcileInterval, locker)
	reconciler.Start()

	// HTTP API
	apiServer := api.NewServer(svc, l)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go serve(l, "HTTP API", httpServer)

	// Prometheus metrics
	metricsServer := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           metricsMux(m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go serve(l, "Metrics", metricsServer)

	l.WithFields(logrus.Fields{
		"storage":   cfg.Storage,
		"threshold": svc.Threshold().String(),
		"interval":  cfg.ReconcileInterval.String(),
	}).Info("FundboT started successfully")

	<-ctx.Done()
	l.Info("Received shutdown signal...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	l.Info("Shutting down HTTP servers...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("HTTP API shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("Metrics shutdown")
	}

	reconciler.Stop()

	l.Info("FundboT stopped")
}

func openStore(cfg *config.Config, l *logrus.Logger) (repository.Store, func()) {
	if cfg.Storage == config.StorageMemory {
		l.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), func() {}
	}

	db, err := config.NewDatabase(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		db.Close()
		l.Fatalf("Failed to run migrations: %v", err)
	}

	return postgres.NewStore(db.DB), func() {
		if err := db.Close(); err != nil {
			l.WithError(err).Warn("Failed to close database")
		}
	}
}

func registerCommands(bot *telegram.Bot, svc *service.Service, l *logrus.Logger) {
	bot.RegisterCommand("start", handlers.NewStartHandler(svc, l))
	bot.RegisterCommand("help", handlers.NewHelpHandler(l))

	// Fund handlers
	bot.RegisterCommand("fund", handlers.NewFundHandler(svc, l))
	bot.RegisterCommand("deposit", handlers.NewDepositHandler(svc, l))
	bot.RegisterCommand("history", handlers.NewHistoryHandler(svc, l))

	// Withdrawal handlers
	bot.RegisterCommand("withdraw", handlers.NewWithdrawHandler(svc, l))
	bot.RegisterCommand("pending", handlers.NewPendingHandler(svc, l))
	bot.RegisterCommand("yes", handlers.NewVoteHandler(svc, l, true))
	bot.RegisterCommand("no", handlers.NewVoteHandler(svc, l, false))
	bot.RegisterCommand("cancel", handlers.NewCancelHandler(svc, l))
	bot.RegisterCallback(telegram.VoteCallbackPrefix, handlers.NewVoteCallbackHandler(svc, l))

	// Admin handlers
	bot.RegisterCommand("approve", handlers.NewOverrideHandler(svc, l, true))
	bot.RegisterCommand("reject", handlers.NewOverrideHandler(svc, l, false))
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	return mux
}

func serve(l *logrus.Logger, name string, srv *http.Server) {
	l.Infof("%s listening on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Errorf("%s server error: %v", name, err)
	}
}
