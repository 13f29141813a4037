package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

// Decoder turns market contract logs into ChainEvents.
type Decoder struct {
	marketABI abi.ABI
	topicKind map[common.Hash]model.EventKind
}

// NewDecoder builds a Decoder for the Purchase and Redemption events.
func NewDecoder() (*Decoder, error) {
	marketABI, err := MarketABI()
	if err != nil {
		return nil, err
	}

	return &Decoder{
		marketABI: marketABI,
		topicKind: map[common.Hash]model.EventKind{
			marketABI.Events["Purchase"].ID:   model.EventPurchase,
			marketABI.Events["Redemption"].ID: model.EventRedemption,
		},
	}, nil
}

// Topics returns the topic0 values of both event kinds.
func (d *Decoder) Topics() []common.Hash {
	return []common.Hash{
		d.marketABI.Events["Purchase"].ID,
		d.marketABI.Events["Redemption"].ID,
	}
}

// CanDecode checks if the log's topic0 is one of the two event kinds.
func (d *Decoder) CanDecode(log types.Log) bool {
	if len(log.Topics) == 0 {
		return false
	}
	_, ok := d.topicKind[log.Topics[0]]
	return ok
}

// Decode converts a raw log into a ChainEvent. The block timestamp is left to
// the caller.
func (d *Decoder) Decode(chainID uint64, log types.Log) (model.ChainEvent, error) {
	if len(log.Topics) == 0 {
		return model.ChainEvent{}, decodeError(chainID, log, fmt.Errorf("missing topics"))
	}
	kind, ok := d.topicKind[log.Topics[0]]
	if !ok {
		return model.ChainEvent{}, decodeError(chainID, log, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex()))
	}

	event := d.marketABI.Events[string(kind)]
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return model.ChainEvent{}, decodeError(chainID, log, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics)))
	}

	var wallet struct {
		Wallet common.Address
	}
	walletArgs := abi.Arguments{indexed[0]}
	walletArgs[0].Name = "wallet"
	if err := abi.ParseTopics(&wallet, walletArgs, log.Topics[1:]); err != nil {
		return model.ChainEvent{}, decodeError(chainID, log, fmt.Errorf("parse topics: %w", err))
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.ChainEvent{}, decodeError(chainID, log, fmt.Errorf("unpack %s: %w", event.Name, err))
	}
	if len(values) != 2 {
		return model.ChainEvent{}, decodeError(chainID, log, fmt.Errorf("unexpected %s values: %d", event.Name, len(values)))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.ChainEvent{}, decodeError(chainID, log, err)
	}
	settlement, err := asBigInt(values[1])
	if err != nil {
		return model.ChainEvent{}, decodeError(chainID, log, err)
	}

	return model.ChainEvent{
		ChainID:     chainID,
		Contract:    log.Address.Hex(),
		Kind:        kind,
		Wallet:      wallet.Wallet.Hex(),
		Amount:      amount,
		Settlement:  settlement,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
	}, nil
}

func decodeError(chainID uint64, log types.Log, err error) model.DecodeError {
	topic0 := ""
	if len(log.Topics) > 0 {
		topic0 = log.Topics[0].Hex()
	}
	return model.DecodeError{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topic0:      topic0,
		Err:         err.Error(),
	}
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
