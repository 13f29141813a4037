package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for the ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CursorName is the indexer_state key of a scope's sync cursor.
func CursorName(scope model.Scope) string {
	return fmt.Sprintf("sync:%d:%s", scope.ChainID, scope.Contract)
}

// ApplyBatch inserts events, applies balance deltas for the newly inserted
// ones and advances the cursor in one transaction.
func (s *Store) ApplyBatch(ctx context.Context, b model.Batch) (model.BatchResult, error) {
	var result model.BatchResult

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := insertEvents(ctx, tx, b.Events)
	if err != nil {
		return result, err
	}

	touched := make(map[string]struct{})
	if len(inserted) > 0 {
		batch := &pgx.Batch{}
		for _, event := range inserted {
			batch.Queue(`
				INSERT INTO holder_balances (chain_id, contract, wallet, balance, updated_at)
				VALUES ($1, $2, $3, GREATEST($4::numeric, 0), now())
				ON CONFLICT (chain_id, contract, wallet)
				DO UPDATE SET
					balance = GREATEST(holder_balances.balance + $4::numeric, 0),
					updated_at = now()
			`,
				int64(b.Scope.ChainID),
				b.Scope.Contract,
				event.Wallet,
				event.Delta().String(),
			)
			touched[event.Wallet] = struct{}{}
		}
		if err := execBatch(ctx, tx, batch); err != nil {
			return result, fmt.Errorf("apply balances: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = GREATEST(indexer_state.last_processed_block, EXCLUDED.last_processed_block),
			updated_at = now()
	`, CursorName(b.Scope), int64(b.Cursor)); err != nil {
		return result, fmt.Errorf("save cursor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	result.Inserted = len(inserted)
	result.Skipped = len(b.Events) - len(inserted)
	result.Wallets = len(touched)
	result.Added = inserted
	return result, nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []model.ChainEvent) ([]model.ChainEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			INSERT INTO chain_events (
				chain_id, contract, tx_hash, log_index, kind, wallet, amount, settlement, block_number, block_ts, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10, now())
			ON CONFLICT (chain_id, contract, tx_hash, log_index) DO NOTHING
			RETURNING log_index
		`,
			int64(event.ChainID),
			event.Contract,
			event.TxHash,
			int64(event.LogIndex),
			string(event.Kind),
			event.Wallet,
			bigText(event.Amount),
			bigText(event.Settlement),
			int64(event.BlockNumber),
			int64(event.Timestamp),
		)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := make([]model.ChainEvent, 0, len(events))
	for _, event := range events {
		var idx int64
		err := br.QueryRow().Scan(&idx)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			br.Close()
			return nil, fmt.Errorf("insert event %s:%d: %w", event.TxHash, event.LogIndex, err)
		}
		inserted = append(inserted, event)
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("insert events: %w", err)
	}
	return inserted, nil
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

// LoadCursor returns last_processed_block for a scope.
func (s *Store) LoadCursor(ctx context.Context, scope model.Scope) (uint64, bool, error) {
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, CursorName(scope))
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// RecentEvents returns events newest first by block, then log index.
func (s *Store) RecentEvents(ctx context.Context, scope model.Scope, limit, offset int) ([]model.ChainEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, contract, tx_hash, log_index, kind, wallet, amount::text, settlement::text, block_number, block_ts
		FROM chain_events
		WHERE chain_id = $1 AND contract = $2
		ORDER BY block_number DESC, log_index DESC
		LIMIT $3 OFFSET $4
	`, int64(scope.ChainID), scope.Contract, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]model.ChainEvent, 0, limit)
	for rows.Next() {
		var (
			chainID, logIndex, block, ts int64
			kind, amount, settlement     string
			event                        model.ChainEvent
		)
		if err := rows.Scan(&chainID, &event.Contract, &event.TxHash, &logIndex, &kind, &event.Wallet, &amount, &settlement, &block, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.ChainID = uint64(chainID)
		event.LogIndex = uint64(logIndex)
		event.BlockNumber = uint64(block)
		event.Timestamp = uint64(ts)
		event.Kind = model.EventKind(kind)
		if event.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if event.Settlement, err = parseNumeric(settlement); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// TopHolders returns non-zero balances, largest first.
func (s *Store) TopHolders(ctx context.Context, scope model.Scope, limit, offset int) ([]model.HolderBalance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, balance::text
		FROM holder_balances
		WHERE chain_id = $1 AND contract = $2 AND balance > 0
		ORDER BY balance DESC, wallet ASC
		LIMIT $3 OFFSET $4
	`, int64(scope.ChainID), scope.Contract, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query holders: %w", err)
	}
	defer rows.Close()

	holders := make([]model.HolderBalance, 0, limit)
	for rows.Next() {
		var wallet, balance string
		if err := rows.Scan(&wallet, &balance); err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		value, err := parseNumeric(balance)
		if err != nil {
			return nil, err
		}
		holders = append(holders, model.HolderBalance{
			ChainID:  scope.ChainID,
			Contract: scope.Contract,
			Wallet:   wallet,
			Balance:  value,
		})
	}
	return holders, rows.Err()
}

// Balance returns the wallet's balance, zero if unknown.
func (s *Store) Balance(ctx context.Context, scope model.Scope, wallet string) (*big.Int, error) {
	var balance string
	row := s.pool.QueryRow(ctx, `
		SELECT balance::text FROM holder_balances WHERE chain_id = $1 AND contract = $2 AND wallet = $3
	`, int64(scope.ChainID), scope.Contract, wallet)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return parseNumeric(balance)
}

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric: %s", s)
	}
	return v, nil
}
