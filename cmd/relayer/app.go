package main

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/chain"
	"github.com/dablocksplug-source/theblock-sub000/internal/config"
	"github.com/dablocksplug-source/theblock-sub000/internal/contract"
	"github.com/dablocksplug-source/theblock-sub000/internal/indexer"
	"github.com/dablocksplug-source/theblock-sub000/internal/storage"
	"github.com/dablocksplug-source/theblock-sub000/internal/storage/memory"
	"github.com/dablocksplug-source/theblock-sub000/internal/storage/postgres"
)

// app holds the components shared by every command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	chain   *chain.Client
	chainID *big.Int
	store   storage.LedgerStore
	market  *contract.Market
	engine  *indexer.Engine

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.WithRateLimit(cfg.RPCRPS, int(cfg.RPCRPS)+1))
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.chain = chainClient
	a.closers = append(a.closers, chainClient.Close)

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		a.Close()
		return nil, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	a.chainID = chainID

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	market, err := contract.NewMarket(cfg.ContractAddress(), chainClient, chainClient.Backend())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.market = market

	decoder, err := contract.NewDecoder()
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []indexer.Option
	if cfg.Archive != "" {
		archive := storage.NewJsonlArchive(cfg.Archive)
		a.closers = append(a.closers, func() {
			if err := archive.Close(); err != nil {
				logger.Warn("close archive", zap.Error(err))
			}
		})
		opts = append(opts, indexer.WithArchive(archive))
	}
	engine, err := indexer.NewEngine(indexer.Config{
		ChainID:       chainID.Uint64(),
		Contract:      cfg.ContractAddress(),
		Lookback:      cfg.SyncLookback,
		BatchSize:     cfg.SyncBatchSize,
		Confirmations: cfg.Confirmations,
		StartBlock:    cfg.StartBlock,
		Interval:      cfg.SyncInterval,
		WarmDelay:     cfg.WarmDelay,
		RPCRetry:      cfg.RPCRetry(),
		StoreRetry:    cfg.StoreRetry(),
	}, chainClient, a.store, decoder, logger.Named("indexer"), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		a.store = pg
	default:
		a.logger.Warn("using in-memory ledger store, state is lost on restart")
		a.store = memory.NewStore()
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
