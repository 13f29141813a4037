package model

import "math/big"

// HolderBalance is the running principal balance of a wallet.
type HolderBalance struct {
	ChainID  uint64
	Contract string
	Wallet   string
	Balance  *big.Int
}

// Scope selects the rows of one contract deployment.
type Scope struct {
	ChainID  uint64
	Contract string
}

// ApplyDelta adds delta to balance and floors the result at zero.
func ApplyDelta(balance, delta *big.Int) *big.Int {
	out := new(big.Int)
	if balance != nil {
		out.Set(balance)
	}
	if delta != nil {
		out.Add(out, delta)
	}
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}
