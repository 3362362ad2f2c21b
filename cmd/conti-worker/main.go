package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	"conti/internal/ledger"
	clog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig(clog.ComponentWorker)
	logger.Info("Starting conti-worker", clog.FieldOperation, clog.OpStartup)

	ctx, stop := cli.SignalContext()
	defer stop()

	// The worker consumes settlement events; it never publishes them.
	factory, backendCfg, res := cli.InitBackend(ctx, logger, cfg, func(c *backend.Config) { c.AMQPURL = "" })
	defer cli.Close(logger, res)

	journal, err := factory.CreateJournal(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize journal", clog.FieldError, err)
		os.Exit(1)
	}

	journalWorker := worker.NewJournalWorker(journal, res.Store, cfg.JournalTimeout)
	if cfg.JournalBackfill > 0 {
		if err := backfill(ctx, journalWorker, res.Store, cfg.JournalBackfill); err != nil {
			// New events are still journaled.
			logger.Error("Journal backfill failed", clog.FieldError, err)
		}
	}

	resets := services.NewLimitResetProcessor(res.Store, services.LimitResetConfig{
		Interval: cfg.LimitResetInterval,
		Location: cfg.ResetLocation(),
	})

	g, gctx := errgroup.WithContext(ctx)

	if err := resets.Start(gctx); err != nil {
		logger.Error("Failed to start limit reset processor", clog.FieldError, err)
		os.Exit(1)
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return resets.Stop(stopCtx)
	})

	if cfg.AMQPURL != "" {
		consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", clog.FieldError, err)
			os.Exit(1)
		}
		defer consumer.Close()

		g.Go(func() error {
			err := consumer.ConsumeTransferSettled(gctx, journalWorker.HandleTransferSettled)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled - settlement events will not be journaled")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", clog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func backfill(ctx context.Context, w *worker.JournalWorker, store ledger.AccountStore, perAccount int) error {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	keys := make([]ledger.AccountKey, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, ledger.KeyOf(a))
	}
	_, err = w.Backfill(ctx, keys, perAccount)
	return err
}
