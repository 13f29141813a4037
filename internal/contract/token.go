package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PermitToken reads EIP-2612 state from the settlement token.
type PermitToken struct {
	address common.Address
	caller  Caller
	abi     abi.ABI
}

// NewPermitToken binds the token contract for reads.
func NewPermitToken(address common.Address, caller Caller) (*PermitToken, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	parsed, err := permitTokenABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	return &PermitToken{address: address, caller: caller, abi: parsed}, nil
}

// Address returns the token address.
func (t *PermitToken) Address() common.Address {
	return t.address
}

// Nonce returns the owner's permit nonce.
func (t *PermitToken) Nonce(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "nonces", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Name returns the token name used in its EIP-712 domain.
func (t *PermitToken) Name(ctx context.Context) (string, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "name")
	if err != nil {
		return "", err
	}
	name, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unsupported name type %T", values[0])
	}
	return name, nil
}

// DomainSeparator returns the token's on-chain EIP-712 domain separator.
func (t *PermitToken) DomainSeparator(ctx context.Context) (common.Hash, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "DOMAIN_SEPARATOR")
	if err != nil {
		return common.Hash{}, err
	}
	switch v := values[0].(type) {
	case [32]byte:
		return common.Hash(v), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported bytes32 type %T", values[0])
	}
}
