package relay

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/authz"
	"github.com/dablocksplug-source/theblock-sub000/internal/contract"
)

// Transactor sends the two relayed call shapes. *contract.Market satisfies it.
type Transactor interface {
	BuyWithSig(opts *bind.TransactOpts, args contract.BuyWithSigArgs) (*types.Transaction, error)
	BuyWithPermitAndSig(opts *bind.TransactOpts, args contract.BuyWithSigArgs, permit contract.PermitArgs) (*types.Transaction, error)
}

// Guard decides whether the service may relay.
type Guard interface {
	Check(ctx context.Context) error
}

// Warmer schedules a best-effort sync over the most recent blocks.
type Warmer interface {
	Warm(window uint64)
}

// Request is a verified authorization, optionally accompanied by a verified
// permit for the combined flow.
type Request struct {
	Authorization authz.VerifiedAuthorization
	Permit        *authz.VerifiedPermit
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash  common.Hash
	Nonce uint64
}

// SubmitterConfig holds the service signing key and submission settings.
type SubmitterConfig struct {
	Key         *ecdsa.PrivateKey
	ChainID     *big.Int
	SendTimeout time.Duration
	WarmWindow  uint64
}

// Submitter turns verified requests into transactions signed by the service
// key. Sends are never retried.
type Submitter struct {
	cfg    SubmitterConfig
	from   common.Address
	market Transactor
	guard  Guard
	warmer Warmer
	now    func() time.Time
	logger *zap.Logger
}

// SubmitterOption customizes a Submitter.
type SubmitterOption func(*Submitter)

// WithWarmer attaches the sync engine to warm after each submission.
func WithWarmer(w Warmer) SubmitterOption {
	return func(s *Submitter) { s.warmer = w }
}

// WithSubmitterClock overrides the clock used for deadline checks.
func WithSubmitterClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) { s.now = now }
}

func NewSubmitter(cfg SubmitterConfig, market Transactor, guard Guard, logger *zap.Logger, opts ...SubmitterOption) (*Submitter, error) {
	if cfg.Key == nil {
		return nil, fmt.Errorf("relayer key is required")
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if market == nil {
		return nil, fmt.Errorf("market transactor is nil")
	}
	if guard == nil {
		return nil, fmt.Errorf("identity guard is nil")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Submitter{
		cfg:    cfg,
		from:   crypto.PubkeyToAddress(cfg.Key.PublicKey),
		market: market,
		guard:  guard,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address returns the service signer address.
func (s *Submitter) Address() common.Address {
	return s.from
}

// Submit checks relayer identity and deadlines, then sends the transaction.
// Once the send starts it is not tied to ctx cancellation.
func (s *Submitter) Submit(ctx context.Context, req Request) (TxHandle, error) {
	if err := s.guard.Check(ctx); err != nil {
		return TxHandle{}, err
	}

	action := req.Authorization.Action
	if s.expired(action.Expiry) {
		return TxHandle{}, apperr.New(apperr.KindExpired, "relay submit", "authorization expired")
	}
	if req.Permit != nil {
		if s.expired(req.Permit.Permit.Deadline) {
			return TxHandle{}, apperr.New(apperr.KindExpired, "relay submit", "permit expired")
		}
		if req.Permit.Permit.Owner != action.Actor {
			return TxHandle{}, apperr.New(apperr.KindInputValidation, "relay submit", "permit owner must be the actor")
		}
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
	defer cancel()

	opts, err := bind.NewKeyedTransactorWithChainID(s.cfg.Key, s.cfg.ChainID)
	if err != nil {
		return TxHandle{}, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = sendCtx

	sig := req.Authorization.Signature
	args := contract.BuyWithSigArgs{
		Buyer:    action.Actor,
		Amount:   action.Amount,
		Deadline: new(big.Int).SetUint64(action.Expiry),
		V:        sig.V,
		R:        sig.R,
		S:        sig.S,
	}

	var tx *types.Transaction
	if req.Permit == nil {
		tx, err = s.market.BuyWithSig(opts, args)
	} else {
		permitSig := req.Permit.Signature
		tx, err = s.market.BuyWithPermitAndSig(opts, args, contract.PermitArgs{
			Value:    req.Permit.Permit.Value,
			Deadline: new(big.Int).SetUint64(req.Permit.Permit.Deadline),
			V:        permitSig.V,
			R:        permitSig.R,
			S:        permitSig.S,
		})
	}
	if err != nil {
		if isRevert(err) {
			s.logger.Info("relay rejected by contract", zap.String("actor", action.Actor.Hex()), zap.Error(err))
			return TxHandle{}, apperr.Wrap(apperr.KindReverted, "relay submit", err)
		}
		s.logger.Error("relay send failed", zap.String("actor", action.Actor.Hex()), zap.Error(err))
		return TxHandle{}, apperr.Wrap(apperr.KindTransient, "relay submit", err)
	}

	handle := TxHandle{Hash: tx.Hash(), Nonce: tx.Nonce()}
	s.logger.Info("relay submitted",
		zap.String("actor", action.Actor.Hex()),
		zap.String("amount", action.Amount.String()),
		zap.String("tx_hash", handle.Hash.Hex()),
		zap.Uint64("tx_nonce", handle.Nonce),
		zap.Bool("permit", req.Permit != nil),
	)

	if s.warmer != nil {
		s.warmer.Warm(s.cfg.WarmWindow)
	}
	return handle, nil
}

func (s *Submitter) expired(deadline uint64) bool {
	return int64(deadline) < s.now().Unix()
}

// isRevert reports whether a send failed because the contract rejected the
// call during gas estimation.
func isRevert(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "vm execution error")
}
