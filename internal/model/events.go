package model

import "math/big"

// EventKind names the two contract events the indexer consumes.
type EventKind string

const (
	EventPurchase   EventKind = "Purchase"
	EventRedemption EventKind = "Redemption"
)

// EventKey is the identity of a ChainEvent. Re-ingesting a log with the same
// key is a no-op.
type EventKey struct {
	ChainID  uint64
	Contract string
	TxHash   string
	LogIndex uint64
}

// ChainEvent is the normalized representation of a Purchase or Redemption log.
type ChainEvent struct {
	ChainID     uint64
	Contract    string
	Kind        EventKind
	Wallet      string
	Amount      *big.Int
	Settlement  *big.Int
	BlockNumber uint64
	Timestamp   uint64
	TxHash      string
	LogIndex    uint64
}

// Key returns the identity key of the event.
func (e ChainEvent) Key() EventKey {
	return EventKey{
		ChainID:  e.ChainID,
		Contract: e.Contract,
		TxHash:   e.TxHash,
		LogIndex: e.LogIndex,
	}
}

// Delta returns the signed balance change this event applies to its wallet.
func (e ChainEvent) Delta() *big.Int {
	if e.Amount == nil {
		return big.NewInt(0)
	}
	switch e.Kind {
	case EventPurchase:
		return new(big.Int).Set(e.Amount)
	case EventRedemption:
		return new(big.Int).Neg(e.Amount)
	default:
		return big.NewInt(0)
	}
}
