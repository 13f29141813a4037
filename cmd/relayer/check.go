package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/dablocksplug-source/theblock-sub000/internal/relay"
)

type checkReport struct {
	ChainID  uint64         `json:"chain_id"`
	Head     uint64         `json:"head"`
	Identity relay.Identity `json:"identity"`
	Store    string         `json:"store"`
	Cursor   *uint64        `json:"last_synced_block"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	key, err := cfg.RelayerKey()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.RPCTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report := checkReport{ChainID: a.chainID.Uint64(), Store: "ok"}

	head, err := a.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}
	report.Head = head

	guard := relay.NewIdentityGuard(a.market, crypto.PubkeyToAddress(key.PublicKey), cfg.RPCRetry(), logger)
	report.Identity, err = guard.Inspect(ctx)
	if err != nil {
		return err
	}

	var failures []string
	if err := a.store.Ping(ctx); err != nil {
		report.Store = err.Error()
		failures = append(failures, "store unreachable")
	} else if cursor, ok, err := a.store.LoadCursor(ctx, a.engine.Scope()); err == nil && ok {
		report.Cursor = &cursor
	}
	if !report.Identity.Match {
		failures = append(failures, "relayer identity mismatch")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if len(failures) > 0 {
		return fmt.Errorf("check failed: %v", failures)
	}
	return nil
}
