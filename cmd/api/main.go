// Package main is the entry point for the Wayfarer API server.
//
// It loads configuration, connects the Postgres pool, wires the billing,
// auth and webhook services onto the core HTTP chassis, and runs the server
// alongside the event-log retention sweeper until a shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"wayfarer/internal/api/handlers"
	"wayfarer/internal/auth"
	"wayfarer/internal/billing"
	"wayfarer/internal/config"
	"wayfarer/internal/core"
	"wayfarer/internal/db"
	"wayfarer/internal/external"
	"wayfarer/internal/scheduler"
	"wayfarer/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("wayfarer API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	// Connect the database pool early; a bad DATABASE_URL should fail startup,
	// not the first request.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	// Repositories.
	accountRepo := db.NewAccountRepository(pool, logger)
	paymentRepo := db.NewPaymentRepository(pool)
	eventRepo := db.NewProcessedEventRepository(pool)

	// Stripe gateway. The HTTP client timeout bounds every outbound call so a
	// stalled Stripe API cannot pin request handlers.
	gateway := external.NewStripeClient(
		&http.Client{Timeout: cfg.Billing.GatewayTimeout},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey,
			Logger:    logger,
		},
	)

	// Billing services.
	prices := billing.NewPriceTable(cfg.Billing)
	checkoutSvc := billing.NewCheckoutService(accountRepo, gateway, prices, cfg.Server.DashboardURL, logger)
	reconciler := billing.NewReconciler(
		accountRepo,
		paymentRepo,
		eventRepo,
		&external.StripeVerifier{},
		gateway,
		cfg.Billing.StripeWebhookSecret,
		types.RealClock{},
		logger,
	)

	// Identity services.
	tokenSvc := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, types.RealClock{})
	authSvc := auth.NewService(auth.ServiceConfig{
		Accounts: accountRepo,
		Tokens:   tokenSvc,
		Logger:   logger,
	})

	// Build the server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Tokens = tokenSvc
	srv.HealthProbes = append(srv.HealthProbes, &dbProbe{pool: pool})
	srv.RegisterCloser(pool.Close)

	// Wire handlers.
	authHandler := handlers.NewAuthHandler(authSvc, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(checkoutSvc, accountRepo, paymentRepo, srv.Validator, logger)
	paidGate := srv.RequireTiers(accountRepo, types.PlanPro, types.PlanEnterprise)
	toolsHandler := handlers.NewToolsHandler(paidGate, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(reconciler, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		toolsHandler.RegisterRoutes,
	)
	srv.WebhookRegistrars = append(srv.WebhookRegistrars, func(r chi.Router) {
		webhookHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	sweeper := scheduler.NewSweeper(scheduler.SweeperConfig{
		Events:    eventRepo,
		Retention: cfg.Billing.EventRetention,
		Logger:    logger,
	})

	return serve(srv, sweeper, cfg, logger)
}

// serve runs the HTTP server and the retention sweeper until a shutdown
// signal arrives or either fails, then drains in-flight requests with a
// 10-second deadline.
func serve(srv *core.Server, sweeper *scheduler.Sweeper, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sweeper error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newPool builds the pgx connection pool from config and verifies
// connectivity with a ping.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// dbProbe reports database connectivity for GET /health.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
