// Package memory is an in-process LedgerStore for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

type walletKey struct {
	scope  model.Scope
	wallet string
}

// Store keeps ledger state in maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	events   map[model.EventKey]model.ChainEvent
	balances map[walletKey]*big.Int
	cursors  map[model.Scope]uint64
}

func NewStore() *Store {
	return &Store{
		events:   make(map[model.EventKey]model.ChainEvent),
		balances: make(map[walletKey]*big.Int),
		cursors:  make(map[model.Scope]uint64),
	}
}

// ApplyBatch inserts new events, applies their deltas and advances the cursor.
func (s *Store) ApplyBatch(_ context.Context, batch model.Batch) (model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result model.BatchResult
	touched := make(map[string]struct{})
	for _, event := range batch.Events {
		key := event.Key()
		if _, ok := s.events[key]; ok {
			result.Skipped++
			continue
		}
		s.events[key] = event
		result.Inserted++
		result.Added = append(result.Added, event)

		wk := walletKey{scope: batch.Scope, wallet: event.Wallet}
		s.balances[wk] = model.ApplyDelta(s.balances[wk], event.Delta())
		touched[event.Wallet] = struct{}{}
	}
	result.Wallets = len(touched)

	if current, ok := s.cursors[batch.Scope]; !ok || batch.Cursor > current {
		s.cursors[batch.Scope] = batch.Cursor
	}
	return result, nil
}

// LoadCursor returns the last committed block for scope.
func (s *Store) LoadCursor(_ context.Context, scope model.Scope) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[scope]
	return cursor, ok, nil
}

// RecentEvents returns events newest first by block, then log index.
func (s *Store) RecentEvents(_ context.Context, scope model.Scope, limit, offset int) ([]model.ChainEvent, error) {
	s.mu.RLock()
	events := make([]model.ChainEvent, 0, len(s.events))
	for key, event := range s.events {
		if key.ChainID == scope.ChainID && key.Contract == scope.Contract {
			events = append(events, event)
		}
	}
	s.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber > events[j].BlockNumber
		}
		return events[i].LogIndex > events[j].LogIndex
	})
	return page(events, limit, offset), nil
}

// TopHolders returns non-zero balances, largest first.
func (s *Store) TopHolders(_ context.Context, scope model.Scope, limit, offset int) ([]model.HolderBalance, error) {
	s.mu.RLock()
	holders := make([]model.HolderBalance, 0, len(s.balances))
	for key, balance := range s.balances {
		if key.scope != scope || balance.Sign() == 0 {
			continue
		}
		holders = append(holders, model.HolderBalance{
			ChainID:  scope.ChainID,
			Contract: scope.Contract,
			Wallet:   key.wallet,
			Balance:  new(big.Int).Set(balance),
		})
	}
	s.mu.RUnlock()

	sort.Slice(holders, func(i, j int) bool {
		if c := holders[i].Balance.Cmp(holders[j].Balance); c != 0 {
			return c > 0
		}
		return holders[i].Wallet < holders[j].Wallet
	})
	return page(holders, limit, offset), nil
}

// Balance returns the wallet's balance, zero if unknown.
func (s *Store) Balance(_ context.Context, scope model.Scope, wallet string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if balance, ok := s.balances[walletKey{scope: scope, wallet: wallet}]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
