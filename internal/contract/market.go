package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

// Caller performs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Market reads from and transacts against the market contract.
type Market struct {
	address common.Address
	caller  Caller
	abi     abi.ABI
	bound   *bind.BoundContract
}

// NewMarket binds the market contract. backend may be nil for read-only use.
func NewMarket(address common.Address, caller Caller, backend bind.ContractBackend) (*Market, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	parsed, err := MarketABI()
	if err != nil {
		return nil, fmt.Errorf("parse market abi: %w", err)
	}
	m := &Market{address: address, caller: caller, abi: parsed}
	if backend != nil {
		m.bound = bind.NewBoundContract(address, parsed, backend, backend, backend)
	}
	return m, nil
}

// Address returns the contract address.
func (m *Market) Address() common.Address {
	return m.address
}

// Nonce returns the actor's current meta-transaction nonce.
func (m *Market) Nonce(ctx context.Context, actor common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, m.caller, m.address, m.abi, "nonces", actor)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// TrustedRelayer returns the relayer address the contract accepts calls from.
func (m *Market) TrustedRelayer(ctx context.Context) (common.Address, error) {
	values, err := callMethod(ctx, m.caller, m.address, m.abi, "relayer")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// BuyWithSigArgs are the arguments of buyWithSig.
type BuyWithSigArgs struct {
	Buyer    common.Address
	Amount   *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// PermitArgs are the permit arguments of buyWithPermitAndSig.
type PermitArgs struct {
	Value    *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// BuyWithSig submits buyWithSig under opts.
func (m *Market) BuyWithSig(opts *bind.TransactOpts, args BuyWithSigArgs) (*types.Transaction, error) {
	if m.bound == nil {
		return nil, fmt.Errorf("market is read-only")
	}
	return m.bound.Transact(opts, "buyWithSig", args.Buyer, args.Amount, args.Deadline, args.V, args.R, args.S)
}

// BuyWithPermitAndSig submits buyWithPermitAndSig under opts.
func (m *Market) BuyWithPermitAndSig(opts *bind.TransactOpts, args BuyWithSigArgs, permit PermitArgs) (*types.Transaction, error) {
	if m.bound == nil {
		return nil, fmt.Errorf("market is read-only")
	}
	return m.bound.Transact(opts, "buyWithPermitAndSig",
		args.Buyer, args.Amount, args.Deadline, args.V, args.R, args.S,
		permit.Value, permit.Deadline, permit.V, permit.R, permit.S,
	)
}

func callMethod(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	// A reply that does not decode means the address holds no such contract;
	// asking again will not change that.
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("unpack %s: %w", method, err))
	}
	if len(values) == 0 {
		return nil, retry.Permanent(fmt.Errorf("unpack %s: empty result", method))
	}
	return values, nil
}
