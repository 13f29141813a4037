package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/contract"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
	"github.com/dablocksplug-source/theblock-sub000/internal/storage"
)

// State of the sync engine.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateFailed  State = "failed"
)

// LogSource is the part of the chain client the engine reads from.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error)
}

// Config holds runtime settings for the engine.
type Config struct {
	ChainID       uint64
	Contract      common.Address
	Lookback      uint64
	BatchSize     uint64
	Confirmations uint64
	StartBlock    uint64
	Interval      time.Duration
	WarmDelay     time.Duration
	RPCRetry      retry.Policy
	StoreRetry    retry.Policy
}

// Status is a snapshot of the engine for diagnostics.
type Status struct {
	State     State     `json:"state"`
	Cursor    uint64    `json:"last_synced_block"`
	HasCursor bool      `json:"has_cursor"`
	Head      uint64    `json:"head"`
	LastError string    `json:"last_error,omitempty"`
	LastRun   time.Time `json:"last_run"`
}

// Report summarizes one sync pass.
type Report struct {
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
	Batches  int    `json:"batches"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Wallets  int    `json:"wallets"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithArchive hands every newly ingested event to sink.
func WithArchive(sink storage.Sink) Option {
	return func(e *Engine) { e.archive = sink }
}

// Engine pulls Purchase and Redemption logs in bounded sub-ranges and commits
// them to the ledger store together with the cursor. At most one pass runs at
// a time.
type Engine struct {
	cfg     Config
	source  LogSource
	store   storage.LedgerStore
	decoder *contract.Decoder
	archive storage.Sink
	logger  *zap.Logger

	running atomic.Bool

	mu     sync.Mutex
	status Status

	ctx    context.Context
	cancel context.CancelFunc
	warms  sync.WaitGroup
}

// NewEngine builds an Engine with its dependencies.
func NewEngine(cfg Config, source LogSource, store storage.LedgerStore, decoder *contract.Decoder, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("log source is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:     cfg,
		source:  source,
		store:   store,
		decoder: decoder,
		logger:  logger,
		status:  Status{State: StateIdle},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Scope returns the ledger scope the engine writes to.
func (e *Engine) Scope() model.Scope {
	return model.Scope{ChainID: e.cfg.ChainID, Contract: e.cfg.Contract.Hex()}
}

// Status returns a copy of the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Close cancels pending warm syncs and waits for them to return.
func (e *Engine) Close() {
	e.cancel()
	e.warms.Wait()
}

// Sync runs one pass over [max(cursor+1, head-lookback), head-confirmations].
// A call while another pass is running fails with an AlreadyRunning error.
func (e *Engine) Sync(ctx context.Context, lookback uint64) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{}, apperr.New(apperr.KindAlreadyRunning, "indexer.sync", "sync already running")
	}
	defer e.running.Store(false)

	e.mu.Lock()
	e.status.State = StateRunning
	e.mu.Unlock()

	report, err := e.sync(ctx, lookback)

	e.mu.Lock()
	e.status.LastRun = time.Now().UTC()
	if err != nil {
		e.status.State = StateFailed
		e.status.LastError = err.Error()
	} else {
		e.status.State = StateIdle
		e.status.LastError = ""
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("sync failed", zap.Error(err), zap.Uint64("from", report.From), zap.Uint64("to", report.To))
		return report, err
	}
	return report, nil
}

func (e *Engine) sync(ctx context.Context, lookback uint64) (Report, error) {
	var report Report
	scope := e.Scope()

	head, err := e.latestBlock(ctx)
	if err != nil {
		return report, apperr.Wrap(apperr.KindTransient, "indexer.head", err)
	}
	e.mu.Lock()
	e.status.Head = head
	e.mu.Unlock()

	cursor, hasCursor, err := e.loadCursor(ctx, scope)
	if err != nil {
		return report, apperr.Wrap(apperr.KindTransient, "indexer.cursor", err)
	}
	if hasCursor {
		e.setCursor(cursor)
	}

	from, to, ok := syncWindow(head, lookback, e.cfg.Confirmations, e.cfg.StartBlock, cursor, hasCursor)
	report.From, report.To = from, to
	if !ok {
		e.logger.Debug("nothing to sync", zap.Uint64("head", head), zap.Uint64("cursor", cursor))
		return report, nil
	}

	ranges, err := SplitRange(from, to, e.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		logs, err := e.filterLogs(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return report, apperr.Wrap(apperr.KindTransient, "indexer.logs", fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err))
		}

		events, err := e.buildEvents(ctx, logs)
		if err != nil {
			return report, apperr.Wrap(apperr.KindTransient, "indexer.events", err)
		}

		result, err := e.apply(ctx, model.Batch{Scope: scope, Events: events, Cursor: blockRange.To})
		if err != nil {
			return report, apperr.Wrap(apperr.KindTransient, "indexer.apply", fmt.Errorf("apply %d-%d: %w", blockRange.From, blockRange.To, err))
		}
		e.setCursor(blockRange.To)

		report.Batches++
		report.Inserted += result.Inserted
		report.Skipped += result.Skipped
		report.Wallets += result.Wallets

		if e.archive != nil && len(result.Added) > 0 {
			if err := e.archive.PutEventBatch(result.Added); err != nil {
				e.logger.Warn("archive batch failed", zap.Error(err), zap.Uint64("to", blockRange.To))
			}
		}

		e.logger.Info("batch complete",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Uint64("blocks", blockRange.Len()),
			zap.Int("logs", len(logs)),
			zap.Int("inserted", result.Inserted),
			zap.Int("skipped", result.Skipped),
			zap.Int("wallets", result.Wallets),
		)
	}

	return report, nil
}

// syncWindow computes the inclusive block range of one pass. ok is false
// when there is nothing to do.
func syncWindow(head, lookback, confirmations, startBlock, cursor uint64, hasCursor bool) (from, to uint64, ok bool) {
	if head < confirmations {
		return 0, 0, false
	}
	to = head - confirmations

	if head > lookback {
		from = head - lookback
	}
	if hasCursor && cursor+1 > from {
		from = cursor + 1
	}
	if startBlock > from {
		from = startBlock
	}
	return from, to, from <= to
}

func (e *Engine) setCursor(cursor uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.HasCursor || cursor > e.status.Cursor {
		e.status.Cursor = cursor
	}
	e.status.HasCursor = true
}

func (e *Engine) latestBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := retry.Do(ctx, e.cfg.RPCRetry, func(ctx context.Context) error {
		var err error
		head, err = e.source.LatestBlockNumber(ctx)
		if err != nil {
			e.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	return head, err
}

func (e *Engine) loadCursor(ctx context.Context, scope model.Scope) (uint64, bool, error) {
	var (
		cursor uint64
		ok     bool
	)
	err := retry.Do(ctx, e.cfg.StoreRetry, func(ctx context.Context) error {
		var err error
		cursor, ok, err = e.store.LoadCursor(ctx, scope)
		return err
	})
	return cursor, ok, err
}

func (e *Engine) filterLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, e.cfg.RPCRetry, func(ctx context.Context) error {
		var err error
		logs, err = e.source.FilterLogs(ctx, fromBlock, toBlock, []common.Address{e.cfg.Contract}, e.decoder.Topics())
		if err != nil {
			e.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (e *Engine) apply(ctx context.Context, batch model.Batch) (model.BatchResult, error) {
	var result model.BatchResult
	err := retry.Do(ctx, e.cfg.StoreRetry, func(ctx context.Context) error {
		var err error
		result, err = e.store.ApplyBatch(ctx, batch)
		if err != nil {
			e.logger.Warn("apply batch failed", zap.Error(err), zap.Uint64("cursor", batch.Cursor))
		}
		return err
	})
	return result, err
}

// Run syncs once immediately and then on every tick until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	e.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if _, err := e.Sync(ctx, e.cfg.Lookback); err != nil && apperr.Is(err, apperr.KindAlreadyRunning) {
		e.logger.Debug("scheduled sync skipped, pass in progress")
	}
}

// Warm schedules a best-effort pass over the last window blocks after the
// configured delay. Failures are only logged.
func (e *Engine) Warm(window uint64) {
	e.warms.Add(1)
	go func() {
		defer e.warms.Done()

		timer := time.NewTimer(e.cfg.WarmDelay)
		defer timer.Stop()
		select {
		case <-e.ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := e.Sync(e.ctx, window); err != nil {
			e.logger.Info("warm sync not applied", zap.Error(err), zap.Uint64("window", window))
		}
	}()
}
