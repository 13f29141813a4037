package authz

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

const DefaultDomainTag = "PURCHASE"

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NonceSource reads the authoritative replay-protection nonce of an account.
type NonceSource interface {
	Nonce(ctx context.Context, account common.Address) (*big.Int, error)
}

// Config binds signatures to one contract deployment.
type Config struct {
	DomainTag string
	Contract  common.Address
	ChainID   *big.Int
	Retry     retry.Policy
}

// VerifiedAuthorization is an action whose signature matched its actor under
// the ledger nonce current at verification time.
type VerifiedAuthorization struct {
	Action    model.SignedAction
	Signature Signature
	Digest    common.Hash
}

// Verifier checks purchase authorizations.
type Verifier struct {
	cfg    Config
	nonces NonceSource
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Verifier or PermitVerifier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewVerifier builds a Verifier.
func NewVerifier(cfg Config, nonces NonceSource, logger *zap.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DomainTag == "" {
		cfg.DomainTag = DefaultDomainTag
	}
	o := buildOptions(opts)
	return &Verifier{cfg: cfg, nonces: nonces, now: o.now, logger: logger}
}

// Expired reports whether a unix-seconds deadline is already in the past.
func (v *Verifier) Expired(deadline uint64) bool {
	return expired(v.now, deadline)
}

func expired(now func() time.Time, deadline uint64) bool {
	return int64(deadline) < now().Unix()
}

// Verify checks expiry, reads the actor's nonce from the ledger and checks the
// signature against it. The nonce is read on every call so two requests for
// the same actor never validate against a cached value.
func (v *Verifier) Verify(ctx context.Context, action model.SignedAction, sig Signature) (VerifiedAuthorization, error) {
	if err := validateAction(action); err != nil {
		return VerifiedAuthorization{}, err
	}
	if v.Expired(action.Expiry) {
		return VerifiedAuthorization{}, apperr.New(apperr.KindExpired, "verify authorization", "authorization expired")
	}
	if v.nonces == nil {
		return VerifiedAuthorization{}, fmt.Errorf("nonce source is nil")
	}

	var nonce *big.Int
	err := retry.Do(ctx, v.cfg.Retry, func(ctx context.Context) error {
		var err error
		nonce, err = v.nonces.Nonce(ctx, action.Actor)
		if err != nil {
			v.logger.Warn("nonce fetch failed", zap.String("actor", action.Actor.Hex()), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return VerifiedAuthorization{}, apperr.Wrap(apperr.KindTransient, "fetch nonce", err)
	}

	return v.VerifyWithNonce(action, sig, nonce)
}

// VerifyWithNonce checks expiry and the signature against the given nonce.
func (v *Verifier) VerifyWithNonce(action model.SignedAction, sig Signature, nonce *big.Int) (VerifiedAuthorization, error) {
	if err := validateAction(action); err != nil {
		return VerifiedAuthorization{}, err
	}
	if nonce == nil {
		return VerifiedAuthorization{}, apperr.New(apperr.KindInputValidation, "verify authorization", "nonce is required")
	}
	if v.Expired(action.Expiry) {
		return VerifiedAuthorization{}, apperr.New(apperr.KindExpired, "verify authorization", "authorization expired")
	}

	action.Nonce = new(big.Int).Set(nonce)
	digest := ActionDigest(v.cfg.DomainTag, action, v.cfg.Contract, v.cfg.ChainID)

	signer, err := recoverSigner(accounts.TextHash(digest.Bytes()), sig)
	if err != nil {
		v.logger.Warn("signature recovery failed", zap.String("actor", action.Actor.Hex()), zap.Error(err))
		return VerifiedAuthorization{}, apperr.Wrap(apperr.KindBadSignature, "verify authorization", err)
	}
	if signer != action.Actor {
		v.logger.Warn("signature mismatch",
			zap.String("actor", action.Actor.Hex()),
			zap.String("recovered", signer.Hex()),
			zap.String("nonce", nonce.String()),
		)
		return VerifiedAuthorization{}, apperr.New(apperr.KindBadSignature, "verify authorization", "signature does not match actor")
	}

	return VerifiedAuthorization{Action: action, Signature: sig, Digest: digest}, nil
}

// ActionDigest is keccak256(abi.encodePacked(tag, actor, amount, nonce, expiry,
// contract, chainId)). Signers sign it as a personal message.
func ActionDigest(tag string, action model.SignedAction, contract common.Address, chainID *big.Int) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(tag),
		action.Actor.Bytes(),
		word(action.Amount),
		word(action.Nonce),
		word(new(big.Int).SetUint64(action.Expiry)),
		contract.Bytes(),
		word(chainID),
	)
}

func word(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

func recoverSigner(hash []byte, sig Signature) (common.Address, error) {
	pub, err := crypto.SigToPub(hash, sig.recoveryBytes())
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func validateAction(action model.SignedAction) error {
	if action.Kind != "" && action.Kind != model.ActionPurchase {
		return apperr.New(apperr.KindInputValidation, "verify authorization", fmt.Sprintf("unsupported action %q", action.Kind))
	}
	if action.Actor == (common.Address{}) {
		return apperr.New(apperr.KindInputValidation, "verify authorization", "actor is required")
	}
	if action.Amount == nil || action.Amount.Sign() <= 0 || action.Amount.Cmp(maxUint256) > 0 {
		return apperr.New(apperr.KindInputValidation, "verify authorization", "amount must be a positive uint256")
	}
	if action.Expiry == 0 {
		return apperr.New(apperr.KindInputValidation, "verify authorization", "expiry is required")
	}
	return nil
}
