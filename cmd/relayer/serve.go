package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/api"
	"github.com/dablocksplug-source/theblock-sub000/internal/authz"
	"github.com/dablocksplug-source/theblock-sub000/internal/contract"
	"github.com/dablocksplug-source/theblock-sub000/internal/feed"
	"github.com/dablocksplug-source/theblock-sub000/internal/ratelimit"
	"github.com/dablocksplug-source/theblock-sub000/internal/relay"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	key, err := cfg.RelayerKey()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	submitterCfg := relay.SubmitterConfig{
		Key:         key,
		ChainID:     a.chainID,
		SendTimeout: 2 * cfg.RPCTimeout,
		WarmWindow:  cfg.WarmWindow,
	}
	guard := relay.NewIdentityGuard(a.market, crypto.PubkeyToAddress(key.PublicKey), cfg.RPCRetry(), logger.Named("guard"))
	if err := guard.Check(ctx); err != nil {
		return fmt.Errorf("startup identity check: %w", err)
	}

	verifier := authz.NewVerifier(authz.Config{
		DomainTag: cfg.DomainTag,
		Contract:  cfg.ContractAddress(),
		ChainID:   a.chainID,
		Retry:     cfg.RPCRetry(),
	}, a.market, logger.Named("authz"))

	var permits relay.PermitVerifier
	if tokenAddr, ok := cfg.TokenAddress(); ok {
		permitVerifier, err := newPermitVerifier(ctx, a, tokenAddr)
		if err != nil {
			return err
		}
		permits = permitVerifier
	}

	submitter, err := relay.NewSubmitter(submitterCfg, a.market, guard, logger.Named("relay"), relay.WithWarmer(a.engine))
	if err != nil {
		return err
	}

	limiter, closeLimiter := newLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RateLimitWindow, cfg.RateLimitMax)
	defer closeLimiter()

	server := api.NewServer(api.Config{
		AdminToken:      cfg.AdminToken,
		DefaultLookback: cfg.SyncLookback,
		StoreTimeout:    cfg.StoreTimeout,
		TrustedProxies:  cfg.TrustedProxies,
	}, api.Deps{
		Relay:   relay.NewService(verifier, permits, submitter),
		Feed:    feed.NewService(a.store, a.engine.Scope(), cfg.FeedMaxLimit),
		Sync:    a.engine,
		Guard:   guard,
		Store:   a.store,
		Limiter: limiter,
	}, logger.Named("http"))

	logger.Info("relayer start",
		zap.String("listen", cfg.Listen),
		zap.String("contract", cfg.ContractAddress().Hex()),
		zap.String("relayer", submitter.Address().Hex()),
		zap.Uint64("chain_id", a.chainID.Uint64()),
		zap.String("store", cfg.Store),
		zap.Bool("permit_flow", permits != nil),
		zap.Bool("redis_rate_limit", cfg.RedisAddr != ""),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sync loop stopped", zap.Error(err))
		}
	}()

	err = server.Run(ctx, cfg.Listen)
	stop()
	wg.Wait()
	return err
}

func newPermitVerifier(ctx context.Context, a *app, tokenAddr common.Address) (*authz.PermitVerifier, error) {
	token, err := contract.NewPermitToken(tokenAddr, a.chain)
	if err != nil {
		return nil, err
	}

	name := a.cfg.TokenName
	if name == "" {
		name, err = token.Name(ctx)
		if err != nil {
			return nil, fmt.Errorf("read token name: %w", err)
		}
	}
	domain := authz.PermitDomain{
		Name:    name,
		Version: a.cfg.TokenVer,
		ChainID: a.chainID,
		Token:   tokenAddr,
	}

	expected, err := domain.DomainSeparator()
	if err != nil {
		return nil, err
	}
	if onChain, err := token.DomainSeparator(ctx); err != nil {
		a.logger.Warn("token domain separator unavailable", zap.Error(err))
	} else if onChain != expected {
		return nil, fmt.Errorf("token domain separator mismatch: chain %s, configured %s", onChain.Hex(), expected.Hex())
	}

	return authz.NewPermitVerifier(domain, a.cfg.ContractAddress(), token, a.cfg.RPCRetry(), a.logger.Named("permit")), nil
}

func newLimiter(addr, password string, db int, window time.Duration, max int) (ratelimit.Limiter, func()) {
	if addr == "" {
		return ratelimit.NewMemoryLimiter(window, max, nil), func() {}
	}
	client := ratelimit.NewRedisClient(addr, password, db)
	return ratelimit.NewRedisLimiter(client, "", window, max), func() { _ = client.Close() }
}
