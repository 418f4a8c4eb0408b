package main

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"saldo/internal/access"
	"saldo/internal/amqp"
	"saldo/internal/cli"
	apphttp "saldo/internal/http"
	"saldo/internal/identity"
	applog "saldo/internal/log"
	"saldo/internal/services"
)

func main() {
	// Load .env file for local development (ignored when missing)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger("info"), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting saldo")

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Database initialization failed", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(applog.NewContext(context.Background(), logger))
	defer cancel()

	// Events are optional; a nil publisher disables them.
	var (
		events services.Publisher
		stats  apphttp.EventStats
	)
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewPublisher(ctx, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without events", "error", err)
		} else {
			defer publisher.Close()
			events, stats = publisher, publisher
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	idp := identity.NewService(repo, identity.NewTokenIssuer([]byte(cfg.JWTSecret)), identity.Options{
		TokenTTL: cfg.AccessTokenTTL,
	})
	policy := access.NewPolicy(repo)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Identity:     idp,
		Policy:       policy,
		Profiles:     services.NewProfileService(idp, policy, events),
		Categories:   services.NewCategoryService(events),
		Transactions: services.NewTransactionService(events),
		Summary:      services.NewSummaryService(),
		Store:        repo,
		Events:       stats,
	}, apphttp.Options{
		Logger:             logger,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMin,
		TrustedProxies:     cfg.TrustedProxies,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to create HTTP server", err)
	}

	sweeper := services.NewSessionSweeper(idp, services.SessionSweeperConfig{Interval: cfg.SessionSweepInterval})
	if err := sweeper.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start session sweeper", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return cli.WaitForSignal(gctx, logger)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		if err := cli.ShutdownWithTimeout(cfg.ShutdownTimeout, sweeper.Stop); err != nil {
			logger.Warn("Session sweeper shutdown error", "error", err)
		}
		return cli.ShutdownWithTimeout(cfg.ShutdownTimeout, srv.Shutdown)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, cli.ErrShutdownSignal) {
		logger.Error("Server stopped with error", "error", err)
		return
	}
	logger.Info("Server stopped gracefully")
}
