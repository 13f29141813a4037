package storage

import (
	"bufio"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

func TestJsonlArchiveAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "events.jsonl")
	sink := NewJsonlArchive(path)

	first := []model.ChainEvent{{Kind: model.EventPurchase, Wallet: "0xa", Amount: big.NewInt(1), Settlement: big.NewInt(2), TxHash: "0x1"}}
	second := []model.ChainEvent{{Kind: model.EventRedemption, Wallet: "0xb", Amount: big.NewInt(3), Settlement: big.NewInt(4), TxHash: "0x2"}}

	if err := sink.PutEventBatch(first); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := sink.PutEventBatch(second); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if err := sink.PutEventBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened := NewJsonlArchive(path)
	if err := reopened.PutEventBatch(first); err != nil {
		t.Fatalf("reopen batch: %v", err)
	}
	if err := reopened.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.ChainEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event model.ChainEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, event)
	}
	if len(got) != 3 || got[0].TxHash != "0x1" || got[1].Amount.Int64() != 3 || got[2].TxHash != "0x1" {
		t.Fatalf("archive mismatch: %+v", got)
	}
}
