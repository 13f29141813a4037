package authz

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

var testDomain = PermitDomain{
	Name:    "Settlement USD",
	Version: "1",
	ChainID: testChainID,
	Token:   common.HexToAddress("0x5555555555555555555555555555555555555555"),
}

func TestPermitVerify(t *testing.T) {
	key, owner := newActor(t)
	nonces := &fakeNonces{values: map[common.Address]*big.Int{owner: big.NewInt(3)}}
	verifier := NewPermitVerifier(testDomain, testContract, nonces, retry.Policy{}, nil, WithClock(func() time.Time { return testNow }))

	permit := model.SignedPermit{
		Owner:    owner,
		Spender:  testContract,
		Value:    big.NewInt(1_000_000),
		Deadline: uint64(testNow.Add(time.Hour).Unix()),
	}
	digest, err := PermitDigest(testDomain, permit, big.NewInt(3))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	raw, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig, err := ParseSignature(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	verified, err := verifier.Verify(context.Background(), permit, sig)
	if err != nil {
		t.Fatalf("verify permit: %v", err)
	}
	if verified.Nonce.Int64() != 3 {
		t.Fatalf("nonce mismatch: %s", verified.Nonce)
	}

	nonces.bump(owner)
	if _, err := verifier.Verify(context.Background(), permit, sig); !apperr.Is(err, apperr.KindBadSignature) {
		t.Fatalf("permit with consumed nonce should fail, got %v", err)
	}
}

func TestPermitVerifyChecksDeadlineAndSpender(t *testing.T) {
	_, owner := newActor(t)
	verifier := NewPermitVerifier(testDomain, testContract, &fakeNonces{values: map[common.Address]*big.Int{}}, retry.Policy{}, nil, WithClock(func() time.Time { return testNow }))

	expiredPermit := model.SignedPermit{Owner: owner, Spender: testContract, Value: big.NewInt(1), Deadline: uint64(testNow.Add(-time.Second).Unix())}
	if _, err := verifier.Verify(context.Background(), expiredPermit, Signature{}); !apperr.Is(err, apperr.KindExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	zeroValue := model.SignedPermit{Owner: owner, Spender: testContract, Value: big.NewInt(0), Deadline: uint64(testNow.Add(time.Hour).Unix())}
	if _, err := verifier.Verify(context.Background(), zeroValue, Signature{}); !apperr.Is(err, apperr.KindInputValidation) {
		t.Fatalf("zero permit value should be rejected, got %v", err)
	}

	wrongSpender := model.SignedPermit{Owner: owner, Spender: common.HexToAddress("0x09"), Value: big.NewInt(1), Deadline: uint64(testNow.Add(time.Hour).Unix())}
	if _, err := verifier.Verify(context.Background(), wrongSpender, Signature{}); !apperr.Is(err, apperr.KindInputValidation) {
		t.Fatalf("expected input validation, got %v", err)
	}
}

func TestPermitDomainSeparatorDependsOnToken(t *testing.T) {
	a, err := testDomain.DomainSeparator()
	if err != nil {
		t.Fatalf("separator: %v", err)
	}
	other := testDomain
	other.Token = common.HexToAddress("0x06")
	b, err := other.DomainSeparator()
	if err != nil {
		t.Fatalf("separator: %v", err)
	}
	if a == b {
		t.Fatalf("separator must depend on token address")
	}
}
