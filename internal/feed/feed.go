// Package feed serves the activity feed and holder ranking from the ledger.
package feed

import (
	"context"
	"fmt"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/storage"
)

const DefaultLimit = 20

// Page selects a slice of a listing.
type Page struct {
	Limit  int
	Offset int
}

// Service reads one contract scope of the ledger.
type Service struct {
	store    storage.LedgerStore
	scope    model.Scope
	maxLimit int
}

func NewService(store storage.LedgerStore, scope model.Scope, maxLimit int) *Service {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Service{store: store, scope: scope, maxLimit: maxLimit}
}

// Normalize fills the default limit and rejects out-of-range values.
func (s *Service) Normalize(page Page) (Page, error) {
	if page.Limit == 0 {
		page.Limit = DefaultLimit
	}
	if page.Limit < 0 || page.Limit > s.maxLimit {
		return page, apperr.New(apperr.KindInputValidation, "feed page", fmt.Sprintf("limit must be between 1 and %d", s.maxLimit))
	}
	if page.Offset < 0 {
		return page, apperr.New(apperr.KindInputValidation, "feed page", "offset must not be negative")
	}
	return page, nil
}

// Activity returns events newest first.
func (s *Service) Activity(ctx context.Context, page Page) ([]model.ChainEvent, error) {
	page, err := s.Normalize(page)
	if err != nil {
		return nil, err
	}
	events, err := s.store.RecentEvents(ctx, s.scope, page.Limit, page.Offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "feed activity", err)
	}
	return events, nil
}

// Holders returns wallets with a positive balance, largest first.
func (s *Service) Holders(ctx context.Context, page Page) ([]model.HolderBalance, error) {
	page, err := s.Normalize(page)
	if err != nil {
		return nil, err
	}
	holders, err := s.store.TopHolders(ctx, s.scope, page.Limit, page.Offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "feed holders", err)
	}
	return holders, nil
}
