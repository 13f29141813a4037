package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind tags the relayed call shape.
type ActionKind string

const ActionPurchase ActionKind = "purchase"

// SignedAction is a gasless authorization as received from a client. Nonce is
// filled in from the ledger, never from the request.
type SignedAction struct {
	Kind   ActionKind
	Actor  common.Address
	Amount *big.Int
	Nonce  *big.Int
	Expiry uint64
}

// SignedPermit is an EIP-2612 approval that accompanies a SignedAction in the
// combined flow. Its nonce lives in the token contract.
type SignedPermit struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Deadline uint64
}
