package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbase/scheduler/internal/api/router"
	"github.com/clinicbase/scheduler/internal/appointments"
	appconfig "github.com/clinicbase/scheduler/internal/config"
	"github.com/clinicbase/scheduler/internal/http/handlers"
	"github.com/clinicbase/scheduler/internal/notify"
	"github.com/clinicbase/scheduler/internal/observability/metrics"
	"github.com/clinicbase/scheduler/internal/schedule"
	"github.com/clinicbase/scheduler/internal/sweeplock"
	"github.com/clinicbase/scheduler/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if cfg.SessionJWTSecret == "" {
		logger.Error("SESSION_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := pool.Ping(pingCtx); err != nil {
		pingCancel()
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}
	pingCancel()

	// Redis backs the sweep leader lock; without it the monitor runs
	// unguarded, which is fine for a single instance.
	var lock appointments.SweepLock
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, sweep lock disabled", "error", err)
		} else {
			lock = sweeplock.New(rdb, "scheduler:sweep", cfg.SweepLockTTL, logger)
		}
		pingCancel()
	}

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}
	notifier := notify.NewService(
		notify.NewLogSMSSender(logger),
		emailSender,
		notify.NewPostgresDirectory(pool),
		logger,
	)

	store := appointments.NewPostgresStore(pool)
	schedules := schedule.NewStore(pool)
	svc := appointments.NewService(store, schedules, notifier, nil, cfg.ConfirmationWindow, engineMetrics, logger)

	monitor := appointments.NewMonitor(store, notifier, nil, lock, cfg.ConfirmationWindow, cfg.SweepInterval, cfg.StoreTimeout, engineMetrics, logger.With("component", "monitor"))
	go monitor.Start(ctx)

	r := router.New(&router.Config{
		Logger:             logger,
		Appointments:       handlers.NewAppointmentsHandler(svc, logger),
		SessionJWTSecret:   cfg.SessionJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
