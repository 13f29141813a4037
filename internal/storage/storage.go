package storage

import (
	"context"
	"math/big"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

// LedgerStore owns ChainEvent rows, HolderBalance rows and the sync cursor.
//
// ApplyBatch is atomic: events are inserted idempotently by their identity
// key, balance deltas are applied only for newly inserted events in batch
// order (floored at zero at each step), and the cursor is advanced in the same
// transaction.
type LedgerStore interface {
	ApplyBatch(ctx context.Context, batch model.Batch) (model.BatchResult, error)
	LoadCursor(ctx context.Context, scope model.Scope) (uint64, bool, error)
	RecentEvents(ctx context.Context, scope model.Scope, limit, offset int) ([]model.ChainEvent, error)
	TopHolders(ctx context.Context, scope model.Scope, limit, offset int) ([]model.HolderBalance, error)
	Balance(ctx context.Context, scope model.Scope, wallet string) (*big.Int, error)
	Ping(ctx context.Context) error
}

// Sink receives every newly ingested batch of events, e.g. for archiving.
type Sink interface {
	PutEventBatch(events []model.ChainEvent) error
}
