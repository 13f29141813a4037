package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", cfg.ContractAddress().Hex()),
		zap.Uint64("lookback", cfg.SyncLookback),
		zap.Uint64("batch_size", cfg.SyncBatchSize),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.String("store", cfg.Store),
		zap.String("archive", cfg.Archive),
	)

	report, err := a.engine.Sync(ctx, cfg.SyncLookback)
	if err != nil {
		return err
	}

	logger.Info("sync complete",
		zap.Uint64("from", report.From),
		zap.Uint64("to", report.To),
		zap.Int("batches", report.Batches),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("wallets", report.Wallets),
	)
	return nil
}
