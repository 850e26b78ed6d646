package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/auth"
	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/config"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.ShutdownContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	tokens, err := auth.ParseTokens(cfg.AuthTokens)
	if err != nil {
		return err
	}
	if tokens.Len() == 0 {
		logger.Warn("AUTH_TOKENS is empty, every API request will be rejected")
	}

	publisher := res.Publisher()
	categories := services.NewCategoryService(res.Repository, publisher, time.Now)
	expenses := services.NewExpenseService(res.Repository, categories, services.ExpenseOptions{
		Publisher:   publisher,
		Now:         time.Now,
		StrictDates: cfg.StrictDates,
	})
	ledger := services.NewLedgerService(expenses, categories, time.Now, cfg.PageSize)

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerMinute = cfg.RateLimitRequestsPerMinute

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Expenses:   expenses,
		Categories: categories,
		Ledger:     ledger,
		Auth:       tokens,
		Ready:      res.Repository.Ping,
		RateLimit:  limits,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"users", tokens.Len(),
			"amqp", res.AMQP != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
