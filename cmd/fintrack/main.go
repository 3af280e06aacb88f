package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/state"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting fintrack", "port", cfg.Port, "sqlite_db", cfg.SQLiteDBPath)

	store := cli.OpenStore(context.Background(), logger, cfg.SQLiteDBPath)

	st := state.New(state.FromStore(store),
		state.WithLogger(logger),
		state.WithTransactionLimit(cfg.TransactionLoadLimit))
	if err := st.Initialize(context.Background()); err != nil {
		logger.Error("Failed to load application state", log.FieldError, err)
		store.Close()
		os.Exit(1)
	}

	ledgerOpts := []services.LedgerOption{services.WithLedgerLogger(logger)}
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, events will not be published", log.FieldError, err)
			amqpClient = nil
		} else {
			ledgerOpts = append(ledgerOpts, services.WithPublisher(amqpClient))
			logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - transaction events will not be published")
	}

	ledger := services.NewLedger(st, store.Transactions(), ledgerOpts...)
	processor := services.NewRecurringProcessor(store.Recurring(), store.Transactions(), ledger, logger)
	scheduler := services.NewRecurringScheduler(processor, services.SchedulerConfig{
		Interval: cfg.RecurringInterval,
	}, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		State:              st,
		Ledger:             ledger,
		Processor:          processor,
		Transactions:       store.Transactions(),
		DB:                 store,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := scheduler.Stop(ctx); err != nil {
			logger.Error("Scheduler shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Error("Store close error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = scheduler.Stop(context.Background())
		store.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
