package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/scanorder/api/internal/bus"
	"github.com/scanorder/api/internal/config"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/handler"
	"github.com/scanorder/api/internal/logging"
	"github.com/scanorder/api/internal/metrics"
	"github.com/scanorder/api/internal/notify"
	"github.com/scanorder/api/internal/payment"
	"github.com/scanorder/api/internal/router"
	"github.com/scanorder/api/internal/service"
	"github.com/scanorder/api/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	queries := database.New(pool)

	metrics.Register(prometheus.DefaultRegisterer)

	// Change feed
	hub := bus.NewHub(logger)
	listener := bus.NewPGListener(cfg.DatabaseURL, hub, logger)

	// Server-side notification sinks; browsers get theirs on their own socket.
	sinks := []notify.Sink{notify.LogSink{Logger: logger.Named("notifications")}}
	if cfg.AMQPURL != "" {
		amqpSink, err := notify.DialAMQP(cfg.AMQPURL, logger)
		if err != nil {
			return err
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}
	watcher := notify.NewWatcher(hub, notify.NewDispatcher(logger, sinks...), logger)

	// Services
	settingsSvc := service.NewSettingsService(queries)
	orderSvc := service.NewOrderService(queries, settingsSvc, logger)
	bellSvc := service.NewBellService(queries)

	gateway := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.PaymentCurrency,
	})
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, card checkout disabled")
	}
	paymentSvc := service.NewPaymentService(orderSvc, queries, gateway, service.PaymentConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		Timeout:       cfg.PaymentTimeout,
	}, logger)

	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, staff login disabled")
	}

	r := router.New(cfg, router.Handlers{
		Auth:     handler.NewAuthHandler(cfg.AdminEmail, cfg.AdminPasswordHash, cfg.JWTSecret, logger),
		Orders:   handler.NewOrderHandler(orderSvc, logger),
		Payments: handler.NewPaymentHandler(paymentSvc, gateway, logger),
		Floor:    handler.NewFloorHandler(settingsSvc, bellSvc, queries, logger),
		Realtime: ws.NewHandler(orderSvc, bellSvc, hub, ws.Config{
			TrackerInterval: cfg.TrackerPollInterval,
			StaffInterval:   cfg.StaffPollInterval,
		}, logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
