package authz

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

// PermitDomain is the EIP-712 domain of the settlement token.
type PermitDomain struct {
	Name    string
	Version string
	ChainID *big.Int
	Token   common.Address
}

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Permit": {
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

func (d PermitDomain) typedData(message apitypes.TypedDataMessage) apitypes.TypedData {
	chainID := new(big.Int)
	if d.ChainID != nil {
		chainID.Set(d.ChainID)
	}
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: d.Token.Hex(),
		},
		Message: message,
	}
}

// DomainSeparator computes the EIP-712 domain separator of the token.
func (d PermitDomain) DomainSeparator() (common.Hash, error) {
	td := d.typedData(nil)
	sep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash permit domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}

// PermitDigest returns the EIP-712 digest the owner signs for a permit.
func PermitDigest(domain PermitDomain, permit model.SignedPermit, nonce *big.Int) (common.Hash, error) {
	if permit.Value == nil || nonce == nil {
		return common.Hash{}, fmt.Errorf("permit value and nonce are required")
	}
	td := domain.typedData(apitypes.TypedDataMessage{
		"owner":    permit.Owner.Hex(),
		"spender":  permit.Spender.Hex(),
		"value":    permit.Value.String(),
		"nonce":    nonce.String(),
		"deadline": strconv.FormatUint(permit.Deadline, 10),
	})

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash permit domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash permit message: %w", err)
	}

	prefixed := []byte{0x19, 0x01}
	prefixed = append(prefixed, domainSeparator...)
	prefixed = append(prefixed, messageHash...)
	return crypto.Keccak256Hash(prefixed), nil
}

// VerifiedPermit is a permit whose signature matched its owner under the
// token nonce current at verification time.
type VerifiedPermit struct {
	Permit    model.SignedPermit
	Nonce     *big.Int
	Signature Signature
}

// PermitVerifier pre-checks permits before they are relayed. The token
// contract stays the final authority on their validity.
type PermitVerifier struct {
	domain  PermitDomain
	spender common.Address
	nonces  NonceSource
	policy  retry.Policy
	now     func() time.Time
	logger  *zap.Logger
}

// NewPermitVerifier builds a PermitVerifier. spender is the contract that
// will consume the allowance.
func NewPermitVerifier(domain PermitDomain, spender common.Address, nonces NonceSource, policy retry.Policy, logger *zap.Logger, opts ...Option) *PermitVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions(opts)
	return &PermitVerifier{
		domain:  domain,
		spender: spender,
		nonces:  nonces,
		policy:  policy,
		now:     o.now,
		logger:  logger,
	}
}

// Expired reports whether a unix-seconds deadline is already in the past.
func (p *PermitVerifier) Expired(deadline uint64) bool {
	return expired(p.now, deadline)
}

// Verify checks the permit deadline, spender and signature against the
// owner's current token nonce.
func (p *PermitVerifier) Verify(ctx context.Context, permit model.SignedPermit, sig Signature) (VerifiedPermit, error) {
	if permit.Owner == (common.Address{}) {
		return VerifiedPermit{}, apperr.New(apperr.KindInputValidation, "verify permit", "owner is required")
	}
	if permit.Spender != p.spender {
		return VerifiedPermit{}, apperr.New(apperr.KindInputValidation, "verify permit", "spender must be the market contract")
	}
	if permit.Value == nil || permit.Value.Sign() <= 0 || permit.Value.Cmp(maxUint256) > 0 {
		return VerifiedPermit{}, apperr.New(apperr.KindInputValidation, "verify permit", "value must be a positive uint256")
	}
	if p.Expired(permit.Deadline) {
		return VerifiedPermit{}, apperr.New(apperr.KindExpired, "verify permit", "permit expired")
	}
	if p.nonces == nil {
		return VerifiedPermit{}, fmt.Errorf("permit nonce source is nil")
	}

	var nonce *big.Int
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		var err error
		nonce, err = p.nonces.Nonce(ctx, permit.Owner)
		return err
	})
	if err != nil {
		return VerifiedPermit{}, apperr.Wrap(apperr.KindTransient, "fetch permit nonce", err)
	}

	digest, err := PermitDigest(p.domain, permit, nonce)
	if err != nil {
		return VerifiedPermit{}, apperr.Wrap(apperr.KindInputValidation, "verify permit", err)
	}
	signer, err := recoverSigner(digest.Bytes(), sig)
	if err != nil {
		return VerifiedPermit{}, apperr.Wrap(apperr.KindBadSignature, "verify permit", err)
	}
	if signer != permit.Owner {
		p.logger.Warn("permit signature mismatch",
			zap.String("owner", permit.Owner.Hex()),
			zap.String("recovered", signer.Hex()),
		)
		return VerifiedPermit{}, apperr.New(apperr.KindBadSignature, "verify permit", "permit signature does not match owner")
	}

	return VerifiedPermit{Permit: permit, Nonce: nonce, Signature: sig}, nil
}
