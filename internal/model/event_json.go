package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

type chainEventJSON struct {
	ChainID     uint64    `json:"chain_id"`
	Contract    string    `json:"contract"`
	Kind        EventKind `json:"kind"`
	Wallet      string    `json:"wallet"`
	Amount      string    `json:"amount"`
	Settlement  string    `json:"settlement"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   uint64    `json:"timestamp"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint64    `json:"log_index"`
}

// MarshalJSON encodes uint256 quantities as decimal strings.
func (e ChainEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(chainEventJSON{
		ChainID:     e.ChainID,
		Contract:    e.Contract,
		Kind:        e.Kind,
		Wallet:      e.Wallet,
		Amount:      bigString(e.Amount),
		Settlement:  bigString(e.Settlement),
		BlockNumber: e.BlockNumber,
		Timestamp:   e.Timestamp,
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
	})
}

// UnmarshalJSON decodes a ChainEvent written by MarshalJSON.
func (e *ChainEvent) UnmarshalJSON(data []byte) error {
	var raw chainEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := parseBig(raw.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	settlement, err := parseBig(raw.Settlement)
	if err != nil {
		return fmt.Errorf("settlement: %w", err)
	}
	*e = ChainEvent{
		ChainID:     raw.ChainID,
		Contract:    raw.Contract,
		Kind:        raw.Kind,
		Wallet:      raw.Wallet,
		Amount:      amount,
		Settlement:  settlement,
		BlockNumber: raw.BlockNumber,
		Timestamp:   raw.Timestamp,
		TxHash:      raw.TxHash,
		LogIndex:    raw.LogIndex,
	}
	return nil
}

// MarshalJSON encodes the balance as a decimal string.
func (h HolderBalance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChainID  uint64 `json:"chain_id"`
		Contract string `json:"contract"`
		Wallet   string `json:"wallet"`
		Balance  string `json:"balance"`
	}{h.ChainID, h.Contract, h.Wallet, bigString(h.Balance)})
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", s)
	}
	return v, nil
}
