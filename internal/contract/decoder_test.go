package contract

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

func TestDecoderPurchase(t *testing.T) {
	marketABI, err := MarketABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	market := common.HexToAddress("0x1111111111111111111111111111111111111111")
	buyer := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := marketABI.Events["Purchase"].Inputs.NonIndexed().Pack(big.NewInt(100), big.NewInt(2500))
	if err != nil {
		t.Fatalf("pack purchase: %v", err)
	}

	log := types.Log{
		Address:     market,
		Topics:      []common.Hash{marketABI.Events["Purchase"].ID, common.BytesToHash(buyer.Bytes())},
		Data:        data,
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xdeadbeef"),
		Index:       3,
	}

	if !decoder.CanDecode(log) {
		t.Fatalf("purchase topic should be decodable")
	}

	event, err := decoder.Decode(8453, log)
	if err != nil {
		t.Fatalf("decode purchase: %v", err)
	}

	if event.Kind != model.EventPurchase {
		t.Fatalf("kind mismatch: %s", event.Kind)
	}
	if event.Wallet != buyer.Hex() {
		t.Fatalf("wallet mismatch: %s", event.Wallet)
	}
	if event.Amount.Int64() != 100 || event.Settlement.Int64() != 2500 {
		t.Fatalf("amounts mismatch: %+v", event)
	}
	if event.ChainID != 8453 || event.BlockNumber != 42 || event.LogIndex != 3 || event.Contract != market.Hex() {
		t.Fatalf("location mismatch: %+v", event)
	}
}

func TestDecoderRedemption(t *testing.T) {
	marketABI, err := MarketABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	seller := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := marketABI.Events["Redemption"].Inputs.NonIndexed().Pack(big.NewInt(7), big.NewInt(70))
	if err != nil {
		t.Fatalf("pack redemption: %v", err)
	}

	event, err := decoder.Decode(1, types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:  []common.Hash{marketABI.Events["Redemption"].ID, common.BytesToHash(seller.Bytes())},
		Data:    data,
	})
	if err != nil {
		t.Fatalf("decode redemption: %v", err)
	}
	if event.Kind != model.EventRedemption || event.Wallet != seller.Hex() || event.Delta().Int64() != -7 {
		t.Fatalf("redemption mismatch: %+v", event)
	}
}

func TestDecoderRejectsUnknownTopic(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	log := types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}
	if decoder.CanDecode(log) {
		t.Fatalf("unknown topic should not be decodable")
	}

	_, err = decoder.Decode(1, log)
	var decodeErr model.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
