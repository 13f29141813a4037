package relay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

// RelayerReader reads the relayer address the contract trusts.
type RelayerReader interface {
	TrustedRelayer(ctx context.Context) (common.Address, error)
}

// Identity compares the configured signer with the contract's relayer.
type Identity struct {
	Configured common.Address `json:"configured_relayer"`
	OnChain    common.Address `json:"onchain_relayer"`
	Match      bool           `json:"match"`
}

// IdentityGuard is the single place that decides whether this process may
// relay. It is consulted at startup, by the health endpoint and before every
// submission.
type IdentityGuard struct {
	reader   RelayerReader
	expected common.Address
	policy   retry.Policy
	logger   *zap.Logger
}

func NewIdentityGuard(reader RelayerReader, expected common.Address, policy retry.Policy, logger *zap.Logger) *IdentityGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityGuard{reader: reader, expected: expected, policy: policy, logger: logger}
}

// Inspect reads the on-chain relayer without judging it.
func (g *IdentityGuard) Inspect(ctx context.Context) (Identity, error) {
	id := Identity{Configured: g.expected}
	if g.reader == nil {
		return id, fmt.Errorf("relayer reader is nil")
	}
	err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		onChain, err := g.reader.TrustedRelayer(ctx)
		if err != nil {
			return err
		}
		id.OnChain = onChain
		return nil
	})
	if err != nil {
		return id, apperr.Wrap(apperr.KindTransient, "read relayer", err)
	}
	id.Match = id.OnChain == g.expected
	return id, nil
}

// Check fails with a RelayerMismatch error when the contract does not trust
// the configured signer.
func (g *IdentityGuard) Check(ctx context.Context) error {
	id, err := g.Inspect(ctx)
	if err != nil {
		return err
	}
	if !id.Match {
		g.logger.Error("relayer identity mismatch",
			zap.String("configured", id.Configured.Hex()),
			zap.String("onchain", id.OnChain.Hex()),
		)
		return apperr.New(apperr.KindRelayerMismatch, "relayer guard",
			fmt.Sprintf("contract trusts %s, service signs as %s", id.OnChain.Hex(), id.Configured.Hex()))
	}
	return nil
}
