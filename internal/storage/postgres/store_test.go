package postgres

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

// newTestStore connects to RELAYER_TEST_PG_DSN and isolates the test under a
// fresh contract scope.
func newTestStore(t *testing.T) (*Store, model.Scope) {
	t.Helper()
	dsn := os.Getenv("RELAYER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("RELAYER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	scope := model.Scope{ChainID: 31337, Contract: fmt.Sprintf("0x%040x", time.Now().UnixNano())}
	return store, scope
}

func event(scope model.Scope, kind model.EventKind, wallet string, amount int64, block, index uint64) model.ChainEvent {
	return model.ChainEvent{
		ChainID:     scope.ChainID,
		Contract:    scope.Contract,
		Kind:        kind,
		Wallet:      wallet,
		Amount:      big.NewInt(amount),
		Settlement:  big.NewInt(amount * 2),
		BlockNumber: block,
		Timestamp:   1_700_000_000 + block,
		TxHash:      fmt.Sprintf("0x%064x", block),
		LogIndex:    index,
	}
}

func mustApply(t *testing.T, store *Store, batch model.Batch) model.BatchResult {
	t.Helper()
	result, err := store.ApplyBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("apply batch up to %d: %v", batch.Cursor, err)
	}
	return result
}

func mustCursor(t *testing.T, store *Store, scope model.Scope) (uint64, bool) {
	t.Helper()
	cursor, ok, err := store.LoadCursor(context.Background(), scope)
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	return cursor, ok
}

func TestApplyBatchIdempotentReplay(t *testing.T) {
	store, scope := newTestStore(t)
	ctx := context.Background()

	batch := model.Batch{
		Scope: scope,
		Events: []model.ChainEvent{
			event(scope, model.EventPurchase, "0xa", 100, 10, 0),
			event(scope, model.EventPurchase, "0xa", 50, 11, 0),
			event(scope, model.EventRedemption, "0xa", 30, 12, 0),
		},
		Cursor: 12,
	}
	first := mustApply(t, store, batch)
	if first.Inserted != 3 || first.Wallets != 1 {
		t.Fatalf("first apply result: %+v", first)
	}

	second := mustApply(t, store, batch)
	if second.Inserted != 0 || second.Skipped != 3 || len(second.Added) != 0 {
		t.Fatalf("replay must be a no-op: %+v", second)
	}

	balance, err := store.Balance(ctx, scope, "0xa")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.String() != "120" {
		t.Fatalf("balance mismatch: got %s want 120", balance)
	}

	if cursor, ok := mustCursor(t, store, scope); !ok || cursor != 12 {
		t.Fatalf("cursor mismatch: got %d (%v) want 12", cursor, ok)
	}
}

func TestApplyBatchFloorsAndKeepsCursorMonotonic(t *testing.T) {
	store, scope := newTestStore(t)
	ctx := context.Background()

	mustApply(t, store, model.Batch{
		Scope:  scope,
		Events: []model.ChainEvent{event(scope, model.EventRedemption, "0xb", 40, 20, 0)},
		Cursor: 20,
	})

	balance, err := store.Balance(ctx, scope, "0xb")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("balance must floor at zero, got %s", balance)
	}

	mustApply(t, store, model.Batch{Scope: scope, Cursor: 15})
	if cursor, _ := mustCursor(t, store, scope); cursor != 20 {
		t.Fatalf("cursor moved backwards: got %d want 20", cursor)
	}
}

func TestFeedQueries(t *testing.T) {
	store, scope := newTestStore(t)
	ctx := context.Background()

	mustApply(t, store, model.Batch{
		Scope: scope,
		Events: []model.ChainEvent{
			event(scope, model.EventPurchase, "0xa", 500, 1, 0),
			event(scope, model.EventPurchase, "0xb", 500, 2, 0),
			event(scope, model.EventPurchase, "0xc", 200, 3, 0),
			event(scope, model.EventRedemption, "0xb", 500, 4, 0),
		},
		Cursor: 4,
	})

	holders, err := store.TopHolders(ctx, scope, 10, 0)
	if err != nil {
		t.Fatalf("top holders: %v", err)
	}
	if len(holders) != 2 || holders[0].Wallet != "0xa" || holders[1].Wallet != "0xc" {
		t.Fatalf("unexpected ranking: %+v", holders)
	}

	events, err := store.RecentEvents(ctx, scope, 2, 1)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].BlockNumber != 3 || events[0].Kind != model.EventPurchase || events[0].Timestamp != 1_700_000_003 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}

	if _, ok := mustCursor(t, store, model.Scope{ChainID: 1, Contract: "0xnone"}); ok {
		t.Fatalf("unknown scope must have no cursor")
	}
}
