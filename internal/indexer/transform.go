package indexer

import (
	"context"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

// buildEvents decodes logs into ChainEvents and fills block timestamps. Logs
// that cannot be decoded are logged and skipped; they never block the cursor.
func (e *Engine) buildEvents(ctx context.Context, logs []types.Log) ([]model.ChainEvent, error) {
	events := make([]model.ChainEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed || !e.decoder.CanDecode(log) {
			continue
		}

		event, err := e.decoder.Decode(e.cfg.ChainID, log)
		if err != nil {
			var decodeErr model.DecodeError
			if errors.As(err, &decodeErr) {
				e.logger.Warn("skip undecodable log",
					zap.String("tx_hash", decodeErr.TxHash),
					zap.Uint64("log_index", decodeErr.LogIndex),
					zap.String("reason", decodeErr.Err),
				)
				continue
			}
			return nil, err
		}

		ts, err := e.blockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return nil, err
		}
		event.Timestamp = ts
		events = append(events, event)
	}

	sortEvents(events)
	return events, nil
}

func (e *Engine) blockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := retry.Do(ctx, e.cfg.RPCRetry, func(ctx context.Context) error {
		var err error
		ts, err = e.source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			e.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

// sortEvents orders events the way they were emitted so that deltas apply in
// chain order.
func sortEvents(events []model.ChainEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}
