package model

import "fmt"

// DecodeError records a log the indexer could not turn into a ChainEvent.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Err         string `json:"error"`
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("decode log %s:%d in block %d: %s", e.TxHash, e.LogIndex, e.BlockNumber, e.Err)
}
