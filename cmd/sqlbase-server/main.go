package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ColdranAI/sqlbase/internal/adapter/crypto"
	"github.com/ColdranAI/sqlbase/internal/adapter/httpserver"
	"github.com/ColdranAI/sqlbase/internal/adapter/postgres"
	"github.com/ColdranAI/sqlbase/internal/adapter/sshtunnel"
	"github.com/ColdranAI/sqlbase/internal/adapter/store"
	"github.com/ColdranAI/sqlbase/internal/adapter/usage"
	"github.com/ColdranAI/sqlbase/internal/config"
	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/service"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting sqlbase-server",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("listen_addr", cfg.ListenAddr),
		slog.Int("max_tenants", cfg.MaxTenants),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to control-plane database: %w", err)
	}
	defer db.Close()

	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database migrations applied")

	cipher, err := crypto.NewConfigCipher(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("creating config cipher: %w", err)
	}

	ports := sshtunnel.NewPortAllocator(cfg.TunnelPortBase, cfg.TunnelPortCapacity)
	dialer := sshtunnel.NewDialer(ports, logger)

	configRepo := store.NewConfigRepository(db.Pool)
	usageRepo := store.NewUsageRepository(db.Pool)

	broker, err := service.NewBroker(configRepo, cipher, dialer, postgres.NewUserPool, cfg.MaxTenants, logger)
	if err != nil {
		return fmt.Errorf("creating connection broker: %w", err)
	}
	defer broker.Close()

	recorder := usage.NewRecorder(usageRepo, logger)
	defer recorder.Close()

	configSvc := service.NewConfigService(configRepo, cipher, broker, logger)
	querySvc := service.NewQueryService(domain.NewQueryValidator(), broker, postgres.NewExecutor(), recorder, usageRepo, logger)
	schemaSvc := service.NewSchemaService(broker, postgres.NewIntrospector(logger), logger)

	srv := httpserver.New(httpserver.Config{
		ListenAddr:         cfg.ListenAddr,
		CORSOrigin:         cfg.CORSOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ReadHeaderTimeout:  cfg.ReadHeaderTimeout,
		IdleTimeout:        cfg.IdleTimeout,
	}, configSvc, broker, querySvc, schemaSvc, logger)

	// Second signal during shutdown = hard exit.
	go func() {
		<-ctx.Done()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		logger.Warn("forced shutdown", slog.String("signal", sig.String()))
		os.Exit(1)
	}()

	g, ctx := errgroup.WithContext(ctx)

	// Component: HTTP server.
	g.Go(func() error {
		return srv.ListenAndServe()
	})

	// Shutdown trigger: when ctx is cancelled (signal or component failure),
	// gracefully stop the HTTP server.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Wait for all goroutines. The first non-nil error cancels ctx,
	// which triggers the shutdown goroutine.
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
