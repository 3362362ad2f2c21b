package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/backend"
	"conti/internal/cli"
	apphttp "conti/internal/http"
	clog "conti/internal/log"
	"conti/internal/services"
)

func main() {
	cfg, logger := cli.LoadConfig(clog.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	_, backendCfg, res := cli.InitBackend(ctx, logger, cfg, nil)
	defer cli.Close(logger, res)

	ledgerSvc := services.NewLedgerService(res.Store, res.Publisher, cfg.TransferMaxRetries)
	circleSvc := services.NewCircleService(res.Store, res.Publisher, cfg.TransferMaxRetries)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Accounts:       res.Store,
		Ledger:         ledgerSvc,
		Circles:        circleSvc,
		Ready:          res.Ready,
		Logger:         logger,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	// A memory store is private to this process, so its limit windows are
	// rolled over here rather than by the worker.
	if backendCfg.Type == backend.MemoryBackend {
		resets := services.NewLimitResetProcessor(res.Store, services.LimitResetConfig{
			Interval: cfg.LimitResetInterval,
			Location: cfg.ResetLocation(),
		})
		if err := resets.Start(gctx); err != nil {
			logger.Error("Failed to start limit reset processor", clog.FieldError, err)
			os.Exit(1)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return resets.Stop(stopCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting conti server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", clog.FieldOperation, clog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", clog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
